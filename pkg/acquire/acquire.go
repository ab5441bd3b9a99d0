// Package acquire runs bounded, periodic acquisition runs: read an averaged
// code, optionally convert it, append it as one CSV row and wait.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/ericogr/adclogger/pkg/adc"
	"github.com/ericogr/adclogger/pkg/csvlog"
	"github.com/ericogr/adclogger/pkg/output"
)

// Reader produces averaged codes. *adc.Sampler implements it.
type Reader interface {
	ReadAveraged(ctx context.Context, ch adc.Channel, count int) (int, error)
}

// Appender persists rows. *csvlog.Log implements it.
type Appender interface {
	AppendRows(path string, schema csvlog.Schema, rows []csvlog.Row, flushEach bool) (int, error)
}

// Converter turns an averaged code into a physical value.
type Converter interface {
	Convert(raw int) (float64, error)
	Unit() string
}

// Recorder observes acquisition progress.
type Recorder interface {
	Sampled(channel string, value float64)
	Failed(kind string)
}

// Plan describes one acquisition run.
type Plan struct {
	Name       string
	Path       string
	Samples    int
	Period     time.Duration
	Channel    adc.Channel
	Oversample int
	// Converter is nil for raw pass-through.
	Converter Converter
	Schema    csvlog.Schema
	FlushEach bool
}

// PotPlan logs raw averaged codes as "index,value" rows.
func PotPlan(path string, ch adc.Channel, samples int, period time.Duration, oversample int) Plan {
	return Plan{
		Name:       "pot",
		Path:       path,
		Samples:    samples,
		Period:     period,
		Channel:    ch,
		Oversample: oversample,
		Schema:     csvlog.PotSchema,
	}
}

// ThermistorPlan logs temperatures, syncing the store after every row.
func ThermistorPlan(path string, ch adc.Channel, samples int, period time.Duration, oversample int, conv Converter) Plan {
	return Plan{
		Name:       "thermistor",
		Path:       path,
		Samples:    samples,
		Period:     period,
		Channel:    ch,
		Oversample: oversample,
		Converter:  conv,
		Schema:     csvlog.ThermistorSchema,
		FlushEach:  true,
	}
}

func (p Plan) Validate() error {
	switch {
	case p.Path == "":
		return errors.New("acquire: empty path")
	case p.Samples < 0:
		return fmt.Errorf("acquire: samples %d must be >= 0", p.Samples)
	case p.Period < 0:
		return fmt.Errorf("acquire: period %s must be >= 0", p.Period)
	case p.Oversample < 1:
		return fmt.Errorf("acquire: oversample %d must be >= 1", p.Oversample)
	}
	return nil
}

type Result struct {
	Rows  int
	State State
}

type Loop struct {
	reader   Reader
	appender Appender
	outputs  []output.Output
	clock    clock.Clock
	log      zerolog.Logger
	recorder Recorder

	mu    sync.Mutex
	state State
}

type Option func(*Loop)

func WithClock(c clock.Clock) Option { return func(l *Loop) { l.clock = c } }

func WithOutputs(outs ...output.Output) Option {
	return func(l *Loop) { l.outputs = append(l.outputs, outs...) }
}

func WithRecorder(r Recorder) Option { return func(l *Loop) { l.recorder = r } }

func NewLoop(r Reader, a Appender, logger zerolog.Logger, opts ...Option) *Loop {
	l := &Loop{reader: r, appender: a, clock: clock.New(), log: logger}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// Run executes the plan. It stops at the first sampling, conversion or
// store error; rows appended before the error are kept.
func (l *Loop) Run(ctx context.Context, p Plan) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{State: l.State()}, err
	}
	log := l.log.With().Str("plan", p.Name).Str("path", p.Path).Logger()
	log.Info().Int("samples", p.Samples).Dur("period", p.Period).Msg("appending rows")

	res := Result{}
	fail := func(kind string, err error) (Result, error) {
		l.setState(Failed)
		res.State = Failed
		if l.recorder != nil {
			l.recorder.Failed(kind)
		}
		log.Error().Err(err).Int("rows", res.Rows).Msg("acquisition aborted")
		return res, err
	}

	for i := 0; i < p.Samples; i++ {
		log.Info().Msgf("Collecting sample %d of %d...", i+1, p.Samples)

		l.setState(Sampling)
		raw, err := l.reader.ReadAveraged(ctx, p.Channel, p.Oversample)
		if err != nil {
			return fail(errorKind(err), err)
		}

		value := float64(raw)
		row := csvlog.IntRow(i, raw)
		unit := ""
		if p.Converter != nil {
			l.setState(Converting)
			value, err = p.Converter.Convert(raw)
			if err != nil {
				return fail("convert", err)
			}
			row = csvlog.FloatRow(i, value)
			unit = p.Converter.Unit()
		}

		l.setState(Persisting)
		if _, err := l.appender.AppendRows(p.Path, p.Schema, []csvlog.Row{row}, p.FlushEach); err != nil {
			return fail(errorKind(err), err)
		}
		res.Rows++
		if l.recorder != nil {
			l.recorder.Sampled(p.Name, value)
		}
		l.publish(log, adc.Reading{
			Channel:   p.Channel,
			Name:      p.Name,
			Index:     i,
			Raw:       raw,
			Value:     value,
			Unit:      unit,
			Timestamp: l.clock.Now(),
		})

		if i < p.Samples-1 {
			if err := l.sleep(ctx, p.Period); err != nil {
				return fail("cancelled", err)
			}
		}
	}

	l.setState(Done)
	res.State = Done
	log.Info().Int("rows", res.Rows).Msg("acquisition done")
	return res, nil
}

func (l *Loop) publish(log zerolog.Logger, r adc.Reading) {
	for _, o := range l.outputs {
		if err := o.Publish([]adc.Reading{r}); err != nil {
			log.Warn().Err(err).Msg("output publish failed")
		}
	}
}

// sleep suspends the run without holding the processor.
func (l *Loop) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.clock.After(d):
		return nil
	}
}

func errorKind(err error) string {
	var hw *adc.HardwareReadError
	switch {
	case errors.As(err, &hw):
		return "hardware"
	case errors.Is(err, adc.ErrNotInitialized):
		return "not_initialized"
	case errors.Is(err, csvlog.ErrStoreUnavailable):
		return "store"
	case errors.Is(err, csvlog.ErrSchemaMismatch):
		return "schema"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "other"
}
