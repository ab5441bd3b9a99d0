package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func TestParseIntOrHex(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"72", 72, true},
		{"0x48", 0x48, true},
		{"0X49", 0x49, true},
		{"zz", 0, false},
	}
	for _, tt := range tests {
		got, err := parseIntOrHex(tt.in)
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestParseChannels(t *testing.T) {
	tests := []struct {
		in   string
		want ChannelConfig
		ok   bool
	}{
		{"", ChannelConfig{Pot: 3, Thermistor: 2}, true},
		{"pot=1", ChannelConfig{Pot: 1, Thermistor: 2}, true},
		{" pot = 0 , thermistor = 1", ChannelConfig{Pot: 0, Thermistor: 1}, true},
		{"bad", ChannelConfig{}, false},
		{"fan=2", ChannelConfig{}, false},
		{"pot=x", ChannelConfig{}, false},
	}
	for _, tt := range tests {
		got := ChannelConfig{Pot: 3, Thermistor: 2}
		err := parseChannels(tt.in, &got)
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParsePins(t *testing.T) {
	got, err := parsePins(" 3 = AIN0 ,2=AIN1")
	require.NoError(t, err)
	assert.Equal(t, map[int]string{3: "AIN0", 2: "AIN1"}, got)

	for _, in := range []string{"AIN0", "x=AIN0", "3="} {
		_, err := parsePins(in)
		assert.Error(t, err, in)
	}
}

func TestFromContextPinBackend(t *testing.T) {
	cfg, err := runWithFlags(t, "--adc", "pin", "--pins", "3=AIN0,2=AIN1")
	require.NoError(t, err)
	assert.Equal(t, "pin", cfg.ADC.Backend)
	assert.Equal(t, map[int]string{3: "AIN0", 2: "AIN1"}, cfg.ADC.Pins)

	_, err = runWithFlags(t, "--adc", "pin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "adc.pins")
}

func TestParseCSV(t *testing.T) {
	assert.Equal(t, []string{"console", "mqtt"}, parseCSV(" console, ,mqtt "))
	assert.Empty(t, parseCSV(""))
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 12, cfg.ADC.BitWidth)
	assert.Equal(t, 8, cfg.Acquisition.Oversample)
	assert.Equal(t, 2000, cfg.Acquisition.PeriodMs)
	assert.Equal(t, "/potdata.csv", cfg.Acquisition.PotPath)
	assert.Equal(t, "/data.csv", cfg.Acquisition.SamplePath)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ADC.Backend = "esp32"
	cfg.Acquisition.Oversample = 0
	cfg.Acquisition.Samples = -1
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "esp32")
	assert.Contains(t, err.Error(), "oversample")
	assert.Contains(t, err.Error(), "samples")
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	yml := `
adc:
  backend: simulation
  attenuation: 6db
acquisition:
  samples: 5
  period_ms: 0
thermistor:
  beta: 3435
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "simulation", cfg.ADC.Backend)
	assert.Equal(t, "6db", cfg.ADC.Attenuation)
	assert.Equal(t, 5, cfg.Acquisition.Samples)
	assert.Equal(t, 0, cfg.Acquisition.PeriodMs)
	assert.Equal(t, 3435.0, cfg.Thermistor.Beta)
	// untouched keys keep defaults
	assert.Equal(t, 3.3, cfg.Thermistor.VSupply)
	assert.Equal(t, 8, cfg.Acquisition.Oversample)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func runWithFlags(t *testing.T, args ...string) (Config, error) {
	t.Helper()
	var cfg Config
	var cfgErr error
	app := &cli.App{
		Name:  "test",
		Flags: Flags(),
		Action: func(c *cli.Context) error {
			cfg, cfgErr = FromContext(c)
			return nil
		},
	}
	require.NoError(t, app.Run(append([]string{"test"}, args...)))
	return cfg, cfgErr
}

func TestFromContextOverrides(t *testing.T) {
	cfg, err := runWithFlags(t,
		"--adc", "simulation",
		"--i2c-address", "0x49",
		"--channels", "pot=0,thermistor=1",
		"--samples", "3",
		"--period-ms", "0",
		"--oversample", "1",
		"--outputs", "console,mqtt",
		"--mqtt-server", "tcp://broker:1883",
		"--log-level", "debug",
	)
	require.NoError(t, err)
	assert.Equal(t, "simulation", cfg.ADC.Backend)
	assert.Equal(t, 0x49, cfg.ADC.I2CAddress)
	assert.Equal(t, ChannelConfig{Pot: 0, Thermistor: 1}, cfg.Channels)
	assert.Equal(t, 3, cfg.Acquisition.Samples)
	assert.Equal(t, 0, cfg.Acquisition.PeriodMs)
	assert.Equal(t, 1, cfg.Acquisition.Oversample)
	require.Len(t, cfg.Outputs, 2)
	require.NotNil(t, cfg.Outputs[1].MQTT)
	assert.Equal(t, "tcp://broker:1883", cfg.Outputs[1].MQTT.Server)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestFromContextMQTTServerAddsOutput(t *testing.T) {
	cfg, err := runWithFlags(t, "--mqtt-server", "tcp://b:1883")
	require.NoError(t, err)
	require.Len(t, cfg.Outputs, 1)
	assert.Equal(t, "mqtt", cfg.Outputs[0].Type)
}

func TestFromContextRejectsInvalid(t *testing.T) {
	_, err := runWithFlags(t, "--oversample", "0")
	assert.Error(t, err)
}
