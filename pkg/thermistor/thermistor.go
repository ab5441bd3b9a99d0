// Package thermistor converts ADC codes read across an NTC voltage divider
// into temperatures using the Beta equation.
//
// The divider is wired supply -> series resistor -> measurement node ->
// thermistor -> ground, so the node voltage rises with the thermistor
// resistance.
package thermistor

import (
	"errors"
	"fmt"
	"math"
)

const kelvinOffset = 273.15

var ErrOutOfRange = errors.New("thermistor: raw code out of range")

// OutOfRangeError reports a code for which the divider equation has no
// finite positive resistance.
type OutOfRangeError struct {
	Raw     float64
	MaxCode int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("thermistor: raw code %g outside (0, %d)", e.Raw, e.MaxCode)
}

func (e *OutOfRangeError) Is(target error) bool { return target == ErrOutOfRange }

// Params describes the divider and the thermistor's Beta model.
type Params struct {
	VSupply     float64 `json:"v_supply" yaml:"v_supply"`
	RSeries     float64 `json:"r_series" yaml:"r_series"`
	RReference  float64 `json:"r_reference" yaml:"r_reference"`
	TReferenceC float64 `json:"t_reference_c" yaml:"t_reference_c"`
	Beta        float64 `json:"beta" yaml:"beta"`
}

// DefaultParams matches a 10k/3950 NTC behind a 10k series resistor on 3.3 V.
func DefaultParams() Params {
	return Params{
		VSupply:     3.3,
		RSeries:     10000.0,
		RReference:  10000.0,
		TReferenceC: 25.0,
		Beta:        3950.0,
	}
}

func (p Params) Validate() error {
	if p.VSupply <= 0 || p.RSeries <= 0 || p.RReference <= 0 || p.Beta == 0 {
		return fmt.Errorf("thermistor: invalid params %+v", p)
	}
	if p.TReferenceC+kelvinOffset <= 0 {
		return fmt.Errorf("thermistor: reference temperature %g below absolute zero", p.TReferenceC)
	}
	return nil
}

// Resistance returns the thermistor resistance in ohms for an averaged code.
func (p Params) Resistance(raw float64, maxCode int) (float64, error) {
	if maxCode <= 0 || raw <= 0 || raw >= float64(maxCode) {
		return 0, &OutOfRangeError{Raw: raw, MaxCode: maxCode}
	}
	v := raw / float64(maxCode) * p.VSupply
	r := p.RSeries * v / (p.VSupply - v)
	if r <= 0 || math.IsInf(r, 0) || math.IsNaN(r) {
		return 0, &OutOfRangeError{Raw: raw, MaxCode: maxCode}
	}
	return r, nil
}

// Celsius converts an averaged code into degrees Celsius.
func (p Params) Celsius(raw float64, maxCode int) (float64, error) {
	r, err := p.Resistance(raw, maxCode)
	if err != nil {
		return 0, err
	}
	inv := 1/(p.TReferenceC+kelvinOffset) + math.Log(r/p.RReference)/p.Beta
	c := 1/inv - kelvinOffset
	if math.IsInf(c, 0) || math.IsNaN(c) {
		return 0, &OutOfRangeError{Raw: raw, MaxCode: maxCode}
	}
	return c, nil
}

// RawFor returns the code at which the divider sees the given thermistor
// resistance.
func (p Params) RawFor(resistance float64, maxCode int) float64 {
	return resistance / (p.RSeries + resistance) * float64(maxCode)
}

// Celsius converts with DefaultParams.
func Celsius(raw float64, maxCode int) (float64, error) {
	return DefaultParams().Celsius(raw, maxCode)
}

// Converter binds Params to a converter resolution.
type Converter struct {
	Params  Params
	MaxCode int
}

func NewConverter(p Params, maxCode int) (*Converter, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if maxCode <= 0 {
		return nil, fmt.Errorf("thermistor: max code %d must be > 0", maxCode)
	}
	return &Converter{Params: p, MaxCode: maxCode}, nil
}

func (c *Converter) Convert(raw int) (float64, error) {
	return c.Params.Celsius(float64(raw), c.MaxCode)
}

func (c *Converter) Unit() string { return "°C" }
