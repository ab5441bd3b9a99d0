package adc

import (
	"fmt"

	"go.uber.org/multierr"
	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/pin/pinreg"
	"periph.io/x/host/v3"
)

// PinUnit exposes periph analog pins as an ADC unit, one pin per channel.
// Pin samples are rescaled from the pin's own range to the configured width.
type PinUnit struct {
	pins     map[Channel]analog.PinADC
	maxCodes map[Channel]int
}

func NewPinUnit(pins map[Channel]analog.PinADC) *PinUnit {
	return &PinUnit{pins: pins, maxCodes: map[Channel]int{}}
}

// OpenPins initialises the host drivers and binds each channel to the analog
// input of that name.
func OpenPins(names map[Channel]string) (*PinUnit, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	pins, err := LookupPins(names)
	if err != nil {
		return nil, err
	}
	return NewPinUnit(pins), nil
}

// LookupPins resolves pin names against the headers registered in pinreg.
// Only pins that can convert analog input are considered.
func LookupPins(names map[Channel]string) (map[Channel]analog.PinADC, error) {
	adcs := map[string]analog.PinADC{}
	for _, header := range pinreg.All() {
		for _, row := range header {
			for _, p := range row {
				if a, ok := p.(analog.PinADC); ok {
					adcs[a.Name()] = a
				}
			}
		}
	}
	pins := make(map[Channel]analog.PinADC, len(names))
	for ch, name := range names {
		p, ok := adcs[name]
		if !ok {
			return nil, fmt.Errorf("no analog pin %q for channel %d", name, ch)
		}
		pins[ch] = p
	}
	return pins, nil
}

func (u *PinUnit) ConfigureChannel(ch Channel, width BitWidth, _ Attenuation) error {
	if _, ok := u.pins[ch]; !ok {
		return fmt.Errorf("no analog pin for channel %d", ch)
	}
	u.maxCodes[ch] = width.MaxCode()
	return nil
}

func (u *PinUnit) ReadRaw(ch Channel) (int, error) {
	p, ok := u.pins[ch]
	if !ok {
		return 0, fmt.Errorf("no analog pin for channel %d", ch)
	}
	maxCode, ok := u.maxCodes[ch]
	if !ok {
		return 0, ErrNotInitialized
	}
	s, err := p.Read()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", p, err)
	}
	low, high := p.Range()
	return rescale(int(s.Raw-low.Raw), int(high.Raw-low.Raw), maxCode), nil
}

// Close halts every pin.
func (u *PinUnit) Close() error {
	var err error
	for _, p := range u.pins {
		err = multierr.Append(err, p.Halt())
	}
	return err
}
