package adc

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Channel identifies one analog input line of the ADC unit.
type Channel int

// BitWidth is the conversion resolution in bits.
type BitWidth int

const (
	MinBitWidth     BitWidth = 9
	MaxBitWidth     BitWidth = 16
	DefaultBitWidth BitWidth = 12
)

// MaxCode returns the largest code a conversion of this width can produce.
func (w BitWidth) MaxCode() int { return 1<<uint(w) - 1 }

func (w BitWidth) Valid() bool { return w >= MinBitWidth && w <= MaxBitWidth }

// Attenuation selects the input voltage range of a channel.
type Attenuation string

const (
	Atten0dB   Attenuation = "0db"
	Atten2_5dB Attenuation = "2.5db"
	Atten6dB   Attenuation = "6db"
	Atten12dB  Attenuation = "12db"
)

// FullScale returns the input voltage mapped to the maximum code.
func (a Attenuation) FullScale() (float64, error) {
	switch Attenuation(strings.ToLower(string(a))) {
	case Atten0dB:
		return 1.1, nil
	case Atten2_5dB:
		return 1.5, nil
	case Atten6dB:
		return 2.2, nil
	case Atten12dB:
		return 3.3, nil
	}
	return 0, fmt.Errorf("unknown attenuation %q", string(a))
}

var (
	ErrNotInitialized    = errors.New("adc: not initialized")
	ErrAlreadyConfigured = errors.New("adc: already configured")
)

// HardwareReadError reports a failed conversion inside an averaging call.
type HardwareReadError struct {
	Channel Channel
	Sample  int
	Err     error
}

func (e *HardwareReadError) Error() string {
	return fmt.Sprintf("adc: read channel %d sample %d: %v", e.Channel, e.Sample, e.Err)
}

func (e *HardwareReadError) Unwrap() error { return e.Err }

// Unit is a hardware ADC unit. Implementations are not safe for concurrent
// use; the Sampler owning a Unit serializes every call.
type Unit interface {
	ConfigureChannel(ch Channel, width BitWidth, atten Attenuation) error
	ReadRaw(ch Channel) (int, error)
	Close() error
}

// Reading is one persisted acquisition result.
type Reading struct {
	Channel   Channel   `json:"channel"`
	Name      string    `json:"name"`
	Index     int       `json:"index"`
	Raw       int       `json:"raw"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
