package adc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// DefaultSettle is the pause between two conversions of one averaging call.
const DefaultSettle = 2 * time.Millisecond

// Sampler owns a Unit for the lifetime of the process and turns channel
// reads into averaged codes. All calls on a Sampler are serialized.
type Sampler struct {
	mu         sync.Mutex
	unit       Unit
	clock      clock.Clock
	settle     time.Duration
	log        zerolog.Logger
	width      BitWidth
	configured map[Channel]bool
}

type Option func(*Sampler)

func WithClock(c clock.Clock) Option { return func(s *Sampler) { s.clock = c } }

// WithSettle overrides the inter-conversion delay. Zero disables it.
func WithSettle(d time.Duration) Option { return func(s *Sampler) { s.settle = d } }

func WithLogger(l zerolog.Logger) Option { return func(s *Sampler) { s.log = l } }

func NewSampler(unit Unit, opts ...Option) *Sampler {
	s := &Sampler{
		unit:   unit,
		clock:  clock.New(),
		settle: DefaultSettle,
		log:    zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	if cu, ok := unit.(clockUser); ok {
		cu.setClock(s.clock)
	}
	return s
}

// clockUser is a unit that times its own conversions.
type clockUser interface {
	setClock(clock.Clock)
}

// Configure sets up every channel with the same width and attenuation. It
// may be called only once.
func (s *Sampler) Configure(channels []Channel, width BitWidth, atten Attenuation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.configured != nil {
		return ErrAlreadyConfigured
	}
	if !width.Valid() {
		return fmt.Errorf("adc: bit width %d out of range [%d, %d]", width, MinBitWidth, MaxBitWidth)
	}
	if _, err := atten.FullScale(); err != nil {
		return fmt.Errorf("adc: %w", err)
	}
	configured := make(map[Channel]bool)
	for _, ch := range lo.Uniq(channels) {
		if err := s.unit.ConfigureChannel(ch, width, atten); err != nil {
			return fmt.Errorf("adc: configure channel %d: %w", ch, err)
		}
		configured[ch] = true
	}
	s.width = width
	s.configured = configured
	s.log.Debug().
		Ints("channels", lo.Map(channels, func(c Channel, _ int) int { return int(c) })).
		Int("bit_width", int(width)).
		Str("attenuation", string(atten)).
		Msg("adc configured")
	return nil
}

// MaxCode returns the largest averaged value, or 0 before Configure.
func (s *Sampler) MaxCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.configured == nil {
		return 0
	}
	return s.width.MaxCode()
}

// ReadAveraged performs count conversions on ch and returns their truncated
// mean. The first failing conversion aborts the call.
func (s *Sampler) ReadAveraged(ctx context.Context, ch Channel, count int) (int, error) {
	if count < 1 {
		return 0, fmt.Errorf("adc: sample count %d must be >= 1", count)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.configured == nil || !s.configured[ch] {
		return 0, ErrNotInitialized
	}
	maxCode := s.width.MaxCode()
	var sum int64
	for i := 0; i < count; i++ {
		if i > 0 {
			if err := s.wait(ctx); err != nil {
				return 0, err
			}
		}
		raw, err := s.unit.ReadRaw(ch)
		if err != nil {
			return 0, &HardwareReadError{Channel: ch, Sample: i, Err: err}
		}
		if raw < 0 || raw > maxCode {
			return 0, &HardwareReadError{Channel: ch, Sample: i, Err: fmt.Errorf("code %d outside [0, %d]", raw, maxCode)}
		}
		sum += int64(raw)
	}
	return int(sum / int64(count)), nil
}

func (s *Sampler) wait(ctx context.Context) error {
	if s.settle <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.clock.After(s.settle):
		return nil
	}
}

func (s *Sampler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unit.Close()
}
