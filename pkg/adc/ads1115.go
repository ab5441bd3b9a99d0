package adc

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

const (
	pointerConv   = 0x00
	pointerConfig = 0x01

	DefaultADS1115Address = 0x48
)

// pgaSteps lists the ADS1115 programmable gain settings, narrowest first.
var pgaSteps = []struct {
	bits byte
	fs   float64
}{
	{0x5, 0.256},
	{0x4, 0.512},
	{0x3, 1.024},
	{0x2, 2.048},
	{0x1, 4.096},
	{0x0, 6.144},
}

type ads1115Channel struct {
	pga       byte
	pgaFS     float64
	fullScale float64
	maxCode   int
}

// ADS1115 drives a TI ADS1115 over I²C as an ADC unit. Channels 0-3 are the
// single-ended inputs A0-A3.
type ADS1115 struct {
	dev        *i2c.Dev
	bus        i2c.BusCloser
	sampleRate int
	channels   map[Channel]ads1115Channel
	clock      clock.Clock
}

func NewADS1115(busName string, address uint16, sampleRate int) (*ADS1115, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open i2c: %w", err)
	}
	return newADS1115(bus, address, sampleRate), nil
}

func newADS1115(bus i2c.BusCloser, address uint16, sampleRate int) *ADS1115 {
	if address == 0 {
		address = DefaultADS1115Address
	}
	return &ADS1115{
		dev:        &i2c.Dev{Addr: address, Bus: bus},
		bus:        bus,
		sampleRate: sampleRate,
		channels:   map[Channel]ads1115Channel{},
		clock:      clock.New(),
	}
}

func (s *ADS1115) setClock(c clock.Clock) { s.clock = c }

func (s *ADS1115) Close() error {
	if s.bus != nil {
		return s.bus.Close()
	}
	return nil
}

func (s *ADS1115) ConfigureChannel(ch Channel, width BitWidth, atten Attenuation) error {
	if ch < 0 || ch > 3 {
		return fmt.Errorf("invalid channel %d", ch)
	}
	fs, err := atten.FullScale()
	if err != nil {
		return err
	}
	bits, pgaFS := pgaFor(fs)
	s.channels[ch] = ads1115Channel{pga: bits, pgaFS: pgaFS, fullScale: fs, maxCode: width.MaxCode()}
	return nil
}

func (s *ADS1115) ReadRaw(ch Channel) (int, error) {
	cc, ok := s.channels[ch]
	if !ok {
		return 0, ErrNotInitialized
	}
	msb, lsb, err := s.configForChannel(int(ch), cc.pga)
	if err != nil {
		return 0, err
	}
	if err := s.dev.Tx([]byte{pointerConfig, msb, lsb}, nil); err != nil {
		return 0, fmt.Errorf("write config: %w", err)
	}
	s.clock.Sleep(s.conversionDelay())
	readBuf := make([]byte, 2)
	if err := s.dev.Tx([]byte{pointerConv}, readBuf); err != nil {
		return 0, fmt.Errorf("read conv: %w", err)
	}
	raw := int16(readBuf[0])<<8 | int16(readBuf[1])
	volts := float64(raw) * cc.pgaFS / 32768.0
	return voltsToCode(volts, cc.fullScale, cc.maxCode), nil
}

// conversionDelay is one conversion period at the configured data rate plus
// a 2 ms margin.
func (s *ADS1115) conversionDelay() time.Duration {
	return time.Duration(1000/s.rate()+2) * time.Millisecond
}

func (s *ADS1115) rate() int {
	if s.sampleRate <= 0 {
		return 128
	}
	return s.sampleRate
}

// pgaFor picks the narrowest gain whose full-scale range covers fs volts.
func pgaFor(fs float64) (byte, float64) {
	for _, p := range pgaSteps {
		if p.fs >= fs {
			return p.bits, p.fs
		}
	}
	last := pgaSteps[len(pgaSteps)-1]
	return last.bits, last.fs
}

func (s *ADS1115) configForChannel(channel int, pga byte) (byte, byte, error) {
	var mux byte
	switch channel {
	case 0:
		mux = 0x4
	case 1:
		mux = 0x5
	case 2:
		mux = 0x6
	case 3:
		mux = 0x7
	default:
		return 0, 0, fmt.Errorf("invalid channel %d", channel)
	}
	var dr byte
	switch s.rate() {
	case 8:
		dr = 0x0
	case 16:
		dr = 0x1
	case 32:
		dr = 0x2
	case 64:
		dr = 0x3
	case 128:
		dr = 0x4
	case 250:
		dr = 0x5
	case 475:
		dr = 0x6
	case 860:
		dr = 0x7
	default:
		dr = 0x4
	}
	var config uint16 = 0x8000 // OS = 1 (start single conversion)
	config |= uint16(mux) << 12
	config |= uint16(pga&0x7) << 9
	config |= 1 << 8 // single-shot mode
	config |= uint16(dr) << 5
	// comparator default: disabled (bits 1:0 = 11)
	config |= 0x3
	return byte(config >> 8), byte(config & 0xFF), nil
}
