package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
	"go.bug.st/serial"

	"github.com/ericogr/adclogger/pkg/acquire"
	"github.com/ericogr/adclogger/pkg/adc"
	"github.com/ericogr/adclogger/pkg/config"
	"github.com/ericogr/adclogger/pkg/csvlog"
	"github.com/ericogr/adclogger/pkg/export"
	"github.com/ericogr/adclogger/pkg/logging"
	"github.com/ericogr/adclogger/pkg/metrics"
	"github.com/ericogr/adclogger/pkg/output"
	"github.com/ericogr/adclogger/pkg/output/console"
	"github.com/ericogr/adclogger/pkg/output/mqtt"
	"github.com/ericogr/adclogger/pkg/store"
	"github.com/ericogr/adclogger/pkg/thermistor"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "adclogger",
		Usage: "sample a potentiometer or thermistor and log it as CSV",
		Flags: config.Flags(),
		Commands: []*cli.Command{
			{Name: "log-pot", Usage: "append averaged potentiometer codes", Action: withEnv(runPot)},
			{Name: "log-thermistor", Usage: "append thermistor temperatures", Action: withEnv(runThermistor)},
			{
				Name:      "log-sample",
				Usage:     "append synthetic t,angle,sensor rows",
				ArgsUsage: "[path]",
				Flags:     []cli.Flag{&cli.IntFlag{Name: "rows", Value: 10, Usage: "rows to append"}},
				Action:    withEnv(runSample),
			},
			{
				Name:      "export",
				Usage:     "stream a log file verbatim to stdout or a serial port",
				ArgsUsage: "[path]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "serial", Usage: "serial port to export to instead of stdout"},
					&cli.IntFlag{Name: "baud", Usage: "serial baud rate"},
				},
				Action: withEnv(runExport),
			},
			{Name: "dump", Usage: "print a log file for debugging", ArgsUsage: "[path]", Action: withEnv(runDump)},
			{Name: "demo", Usage: "log potentiometer samples, then export and dump them", Action: withEnv(runDemo)},
		},
	}
}

// env carries everything a command needs.
type env struct {
	cfg     config.Config
	log     zerolog.Logger
	fs      afero.Fs
	metrics *metrics.Metrics
	stdout  io.Writer
}

func withEnv(run func(*cli.Context, *env) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := config.FromContext(c)
		if err != nil {
			return err
		}
		logger, cleanup, err := logging.Setup(cfg.Logging, os.Stderr)
		if err != nil {
			return err
		}
		defer cleanup()

		fs, info, err := store.Mount(cfg.Store)
		if err != nil {
			logger.Error().Err(err).Msg("mount failed")
			return fmt.Errorf("mount store: %w", err)
		}
		logger.Info().Str("root", info.Root).Int("files", info.Files).Int64("used", info.Used).Msg("store mounted")

		reg := prometheus.NewRegistry()
		e := &env{cfg: cfg, log: logger, fs: fs, metrics: metrics.New(reg), stdout: c.App.Writer}
		if cfg.Metrics.Listen != "" {
			srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: metrics.Handler(reg), ReadHeaderTimeout: 5 * time.Second}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error().Err(err).Msg("metrics server")
				}
			}()
			defer srv.Close()
		}
		return run(c, e)
	}
}

func newUnit(cfg config.ADCConfig) (adc.Unit, error) {
	switch cfg.Backend {
	case "ads1115":
		return adc.NewADS1115(cfg.I2CBus, uint16(cfg.I2CAddress), cfg.SampleRate)
	case "pin":
		return adc.OpenPins(lo.MapKeys(cfg.Pins, func(_ string, ch int) adc.Channel { return adc.Channel(ch) }))
	case "simulation":
		return adc.NewSim(time.Now().UnixNano(), cfg.SimNoise), nil
	}
	return nil, fmt.Errorf("unknown adc backend %q", cfg.Backend)
}

// newSampler builds and configures the sampler for both logged channels.
func newSampler(cfg config.Config, unit adc.Unit, logger zerolog.Logger) (*adc.Sampler, error) {
	s := adc.NewSampler(unit,
		adc.WithSettle(time.Duration(cfg.ADC.SettleMs)*time.Millisecond),
		adc.WithLogger(logger))
	channels := []adc.Channel{adc.Channel(cfg.Channels.Pot), adc.Channel(cfg.Channels.Thermistor)}
	if err := s.Configure(channels, adc.BitWidth(cfg.ADC.BitWidth), adc.Attenuation(cfg.ADC.Attenuation)); err != nil {
		return nil, err
	}
	return s, nil
}

func initOutputs(cfg *config.Config, logger zerolog.Logger) ([]output.Output, error) {
	entries := make([]output.Output, 0, len(cfg.Outputs))
	for _, o := range cfg.Outputs {
		switch strings.ToLower(o.Type) {
		case "console":
			entries = append(entries, console.NewConsole(os.Stderr))
		case "mqtt":
			mcfg := config.MQTTConfig{}
			if o.MQTT != nil {
				mcfg = *o.MQTT
			}
			channels := []mqtt.Channel{{Name: "pot"}, {Name: "thermistor", Unit: "°C"}}
			m, err := mqtt.NewMQTT(mcfg, channels, logger)
			if err != nil {
				closeOutputs(entries)
				return nil, err
			}
			entries = append(entries, m)
		default:
			closeOutputs(entries)
			return nil, fmt.Errorf("unknown output type %q", o.Type)
		}
	}
	return entries, nil
}

func closeOutputs(outs []output.Output) {
	for _, o := range outs {
		_ = o.Close()
	}
}

func potPlan(cfg config.Config) acquire.Plan {
	a := cfg.Acquisition
	return acquire.PotPlan(a.PotPath, adc.Channel(cfg.Channels.Pot), a.Samples,
		time.Duration(a.PeriodMs)*time.Millisecond, a.Oversample)
}

func thermistorPlan(cfg config.Config, maxCode int) (acquire.Plan, error) {
	conv, err := thermistor.NewConverter(cfg.Thermistor, maxCode)
	if err != nil {
		return acquire.Plan{}, err
	}
	a := cfg.Acquisition
	return acquire.ThermistorPlan(a.ThermistorPath, adc.Channel(cfg.Channels.Thermistor), a.Samples,
		time.Duration(a.PeriodMs)*time.Millisecond, a.Oversample, conv), nil
}

// acquisition wires sampler, log and outputs, runs fn and releases them.
func (e *env) acquisition(c *cli.Context, fn func(ctx context.Context, loop *acquire.Loop, s *adc.Sampler) error) error {
	unit, err := newUnit(e.cfg.ADC)
	if err != nil {
		return err
	}
	sampler, err := newSampler(e.cfg, unit, e.log)
	if err != nil {
		_ = unit.Close()
		e.log.Error().Err(err).Msg("adc setup failed")
		return fmt.Errorf("adc setup: %w", err)
	}
	defer sampler.Close()

	outs, err := initOutputs(&e.cfg, e.log)
	if err != nil {
		return err
	}
	defer closeOutputs(outs)

	csv := csvlog.New(e.fs, e.log).WithRecorder(e.metrics)
	loop := acquire.NewLoop(sampler, csv, e.log, acquire.WithOutputs(outs...), acquire.WithRecorder(e.metrics))

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx, loop, sampler)
}

// runLogged runs a plan; acquisition failures are reported and the command
// still succeeds, as the rows written so far remain valid.
func (e *env) runLogged(ctx context.Context, loop *acquire.Loop, p acquire.Plan) {
	res, err := loop.Run(ctx, p)
	if err != nil {
		e.log.Error().Err(err).Int("rows", res.Rows).Str("state", res.State.String()).Msg("run aborted")
	}
}

func runPot(c *cli.Context, e *env) error {
	return e.acquisition(c, func(ctx context.Context, loop *acquire.Loop, _ *adc.Sampler) error {
		e.runLogged(ctx, loop, potPlan(e.cfg))
		return nil
	})
}

func runThermistor(c *cli.Context, e *env) error {
	return e.acquisition(c, func(ctx context.Context, loop *acquire.Loop, s *adc.Sampler) error {
		p, err := thermistorPlan(e.cfg, s.MaxCode())
		if err != nil {
			return err
		}
		e.runLogged(ctx, loop, p)
		return nil
	})
}

func runSample(c *cli.Context, e *env) error {
	path := pathArg(c, e.cfg.Acquisition.SamplePath)
	rows := c.Int("rows")
	e.log.Info().Int("rows", rows).Str("path", path).Msg("appending sample rows")
	_, err := csvlog.New(e.fs, e.log).WithRecorder(e.metrics).AppendRows(path, csvlog.SampleSchema, csvlog.SampleRows(rows), false)
	return err
}

func pathArg(c *cli.Context, def string) string {
	if c.Args().Present() {
		return c.Args().First()
	}
	return def
}

func runExport(c *cli.Context, e *env) error {
	sink := e.stdout
	port := c.String("serial")
	if port == "" {
		port = e.cfg.Export.SerialPort
	}
	if port != "" {
		baud := c.Int("baud")
		if baud == 0 {
			baud = e.cfg.Export.BaudRate
		}
		p, err := serial.Open(port, &serial.Mode{BaudRate: baud})
		if err != nil {
			return fmt.Errorf("open serial %s: %w", port, err)
		}
		defer p.Close()
		sink = p
	}
	return export.New(e.fs, e.log).StreamFile(pathArg(c, e.cfg.Acquisition.PotPath), sink)
}

func runDump(c *cli.Context, e *env) error {
	return export.New(e.fs, e.log).Dump(pathArg(c, e.cfg.Acquisition.PotPath), e.stdout)
}

// runDemo mirrors the bench sequence: wait for the operator to start a
// capture, log the potentiometer, then export and dump the file.
func runDemo(c *cli.Context, e *env) error {
	return e.acquisition(c, func(ctx context.Context, loop *acquire.Loop, _ *adc.Sampler) error {
		if d := time.Duration(e.cfg.Acquisition.StartDelayMs) * time.Millisecond; d > 0 {
			e.log.Info().Dur("delay", d).Msg("waiting before logging")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
			}
		}
		e.runLogged(ctx, loop, potPlan(e.cfg))
		exp := export.New(e.fs, e.log)
		if err := exp.StreamFile(e.cfg.Acquisition.PotPath, e.stdout); err != nil {
			return err
		}
		return exp.Dump(e.cfg.Acquisition.PotPath, e.stdout)
	})
}
