package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/pin"
	"periph.io/x/conn/v3/pin/pinreg"

	"github.com/ericogr/adclogger/pkg/adc"
	"github.com/ericogr/adclogger/pkg/config"
	"github.com/ericogr/adclogger/pkg/csvlog"
)

func TestInitOutputs(t *testing.T) {
	cfg := config.Config{Outputs: []config.OutputConfig{{Type: "console"}}}
	entries, err := initOutputs(&cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	cfg.Outputs = []config.OutputConfig{{Type: "console"}, {Type: "pager"}}
	_, err = initOutputs(&cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestNewSamplerConfiguresBothChannels(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ADC.Backend = "simulation"
	unit, err := newUnit(cfg.ADC)
	require.NoError(t, err)
	s, err := newSampler(cfg, unit, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 4095, s.MaxCode())

	_, err = newUnit(config.ADCConfig{Backend: "esp32"})
	assert.Error(t, err)
}

func TestPlansFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	p := potPlan(cfg)
	assert.Equal(t, "/potdata.csv", p.Path)
	assert.Equal(t, adc.Channel(3), p.Channel)
	assert.Equal(t, 8, p.Oversample)
	assert.Equal(t, csvlog.PotSchema.Name, p.Schema.Name)
	assert.False(t, p.FlushEach)

	tp, err := thermistorPlan(cfg, 4095)
	require.NoError(t, err)
	assert.Equal(t, "/thermdata.csv", tp.Path)
	assert.True(t, tp.FlushEach)
	assert.NotNil(t, tp.Converter)

	cfg.Thermistor.Beta = 0
	_, err = thermistorPlan(cfg, 4095)
	assert.Error(t, err)
}

func runApp(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	require.NoError(t, app.Run(append([]string{"adclogger"}, args...)))
	return out.String()
}

func TestLogPotThenExport(t *testing.T) {
	root := t.TempDir()
	common := []string{"--adc", "simulation", "--store-path", root, "--samples", "4", "--period-ms", "0", "--oversample", "2", "--log-level", "error"}

	runApp(t, append(common, "log-pot")...)
	runApp(t, append(common, "log-pot")...)

	b, err := os.ReadFile(filepath.Join(root, "potdata.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
	require.Len(t, lines, 8)
	assert.True(t, strings.HasPrefix(lines[0], "0,"))
	assert.True(t, strings.HasPrefix(lines[7], "3,"))

	exported := runApp(t, append(common, "export")...)
	assert.Equal(t, string(b), exported)

	missing := runApp(t, append(common, "export", "/nothing.csv")...)
	assert.Equal(t, "error,message\r\n,Could not open file\r\n", missing)
}

func TestLogSample(t *testing.T) {
	root := t.TempDir()
	common := []string{"--adc", "simulation", "--store-path", root, "--log-level", "error"}
	runApp(t, append(common, "log-sample", "--rows", "3")...)
	runApp(t, append(common, "log-sample", "--rows", "3")...)

	b, err := os.ReadFile(filepath.Join(root, "data.csv"))
	require.NoError(t, err)
	assert.Equal(t, "0,0,100\n1,15,103\n2,30,106\n0,0,100\n1,15,103\n2,30,106\n", string(b))
}

// headerPin is an analog input with a fixed reading.
type headerPin struct {
	name string
	raw  int32
}

func (p *headerPin) String() string   { return p.name }
func (p *headerPin) Name() string     { return p.name }
func (p *headerPin) Number() int      { return -1 }
func (p *headerPin) Function() string { return "ADC" }
func (p *headerPin) Halt() error      { return nil }

func (p *headerPin) Range() (analog.Sample, analog.Sample) {
	return analog.Sample{}, analog.Sample{Raw: 1023}
}

func (p *headerPin) Read() (analog.Sample, error) { return analog.Sample{Raw: p.raw}, nil }

func TestLogPotFromHeaderPins(t *testing.T) {
	require.NoError(t, pinreg.Register("MAINTEST", [][]pin.Pin{{
		&headerPin{name: "MAINTEST_AIN0", raw: 1023},
		&headerPin{name: "MAINTEST_AIN1"},
	}}))
	t.Cleanup(func() { _ = pinreg.Unregister("MAINTEST") })

	root := t.TempDir()
	common := []string{"--adc", "pin", "--store-path", root, "--samples", "2", "--period-ms", "0", "--log-level", "error"}
	runApp(t, append(common, "--pins", "3=MAINTEST_AIN0,2=MAINTEST_AIN1", "log-pot")...)

	b, err := os.ReadFile(filepath.Join(root, "potdata.csv"))
	require.NoError(t, err)
	assert.Equal(t, "0,4095\n1,4095\n", string(b))

	// the thermistor channel has no pin, so configuring the sampler fails
	app := newApp()
	app.Writer = &bytes.Buffer{}
	err = app.Run(append([]string{"adclogger"}, append(common, "--pins", "3=MAINTEST_AIN0", "log-pot")...))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "adc setup")
}

func TestMountFailureReturnsErrorAndKeepsLog(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	logFile := filepath.Join(root, "adclogger.log")

	app := newApp()
	app.Writer = &bytes.Buffer{}
	err := app.Run([]string{"adclogger", "--adc", "simulation", "--store-path", filepath.Join(blocker, "spiffs"),
		"--log-format", "json", "--log-file", logFile, "log-pot"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mount store")

	b, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(b), "mount failed")
}

func TestLogThermistor(t *testing.T) {
	root := t.TempDir()
	runApp(t, "--adc", "simulation", "--store-path", root, "--samples", "2", "--period-ms", "0", "--log-level", "error", "log-thermistor")

	b, err := os.ReadFile(filepath.Join(root, "thermdata.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "index,temperature_C", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "#0, "))
	assert.True(t, strings.HasSuffix(lines[2], "°C"))
}

func TestDemo(t *testing.T) {
	root := t.TempDir()
	out := runApp(t, "--adc", "simulation", "--store-path", root, "--samples", "2", "--period-ms", "0", "--log-level", "error", "demo")

	b, err := os.ReadFile(filepath.Join(root, "potdata.csv"))
	require.NoError(t, err)
	want := string(b) + "[*] contents of /potdata.csv:\n" + string(b) + "\n"
	assert.Equal(t, want, out)
}
