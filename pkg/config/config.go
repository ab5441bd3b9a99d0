package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/ericogr/adclogger/pkg/thermistor"
)

type MQTTConfig struct {
	Server            string `json:"server" yaml:"server"`
	Username          string `json:"username" yaml:"username"`
	Password          string `json:"password" yaml:"password"`
	ClientID          string `json:"client_id" yaml:"client_id"`
	StateTopic        string `json:"state_topic" yaml:"state_topic"`
	DiscoveryTopic    string `json:"discovery_topic" yaml:"discovery_topic"`
	DiscoveryName     string `json:"discovery_name" yaml:"discovery_name"`
	DiscoveryUniqueID string `json:"discovery_unique_id" yaml:"discovery_unique_id"`
}

type OutputConfig struct {
	Type string      `json:"type" yaml:"type"`
	MQTT *MQTTConfig `json:"mqtt,omitempty" yaml:"mqtt,omitempty"`
}

type StoreConfig struct {
	// Backend is "os" or "memory".
	Backend  string `json:"backend" yaml:"backend"`
	BasePath string `json:"base_path" yaml:"base_path"`
}

type ADCConfig struct {
	// Backend is "ads1115", "pin" or "simulation".
	Backend     string `json:"backend" yaml:"backend"`
	I2CBus      string `json:"i2c_bus" yaml:"i2c_bus"`
	I2CAddress  int    `json:"i2c_address" yaml:"i2c_address"`
	SampleRate  int    `json:"sample_rate" yaml:"sample_rate"`
	BitWidth    int    `json:"bit_width" yaml:"bit_width"`
	Attenuation string `json:"attenuation" yaml:"attenuation"`
	SettleMs    int    `json:"settle_ms" yaml:"settle_ms"`
	// SimNoise is the noise amplitude of the simulation backend, in codes.
	SimNoise int `json:"sim_noise" yaml:"sim_noise"`
	// Pins maps channel numbers to periph analog pin names for the pin backend.
	Pins map[int]string `json:"pins,omitempty" yaml:"pins,omitempty"`
}

type ChannelConfig struct {
	Pot        int `json:"pot" yaml:"pot"`
	Thermistor int `json:"thermistor" yaml:"thermistor"`
}

type AcquisitionConfig struct {
	Samples        int    `json:"samples" yaml:"samples"`
	PeriodMs       int    `json:"period_ms" yaml:"period_ms"`
	Oversample     int    `json:"oversample" yaml:"oversample"`
	PotPath        string `json:"pot_path" yaml:"pot_path"`
	ThermistorPath string `json:"thermistor_path" yaml:"thermistor_path"`
	SamplePath     string `json:"sample_path" yaml:"sample_path"`
	StartDelayMs   int    `json:"start_delay_ms" yaml:"start_delay_ms"`
}

type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
	// File, when set, receives a copy of the diagnostics with rotation.
	File       string `json:"file" yaml:"file"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
}

type ExportConfig struct {
	SerialPort string `json:"serial_port" yaml:"serial_port"`
	BaudRate   int    `json:"baud_rate" yaml:"baud_rate"`
}

type MetricsConfig struct {
	Listen string `json:"listen" yaml:"listen"`
}

type Config struct {
	Store       StoreConfig       `json:"store" yaml:"store"`
	ADC         ADCConfig         `json:"adc" yaml:"adc"`
	Channels    ChannelConfig     `json:"channels" yaml:"channels"`
	Acquisition AcquisitionConfig `json:"acquisition" yaml:"acquisition"`
	Thermistor  thermistor.Params `json:"thermistor" yaml:"thermistor"`
	Outputs     []OutputConfig    `json:"outputs" yaml:"outputs"`
	Logging     LoggingConfig     `json:"logging" yaml:"logging"`
	Export      ExportConfig      `json:"export" yaml:"export"`
	Metrics     MetricsConfig     `json:"metrics" yaml:"metrics"`
}

func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{Backend: "os", BasePath: "./spiffs"},
		ADC: ADCConfig{
			Backend:     "ads1115",
			I2CBus:      "2",
			I2CAddress:  0x48,
			SampleRate:  128,
			BitWidth:    12,
			Attenuation: "12db",
			SettleMs:    2,
			SimNoise:    8,
		},
		Channels: ChannelConfig{Pot: 3, Thermistor: 2},
		Acquisition: AcquisitionConfig{
			Samples:        20,
			PeriodMs:       2000,
			Oversample:     8,
			PotPath:        "/potdata.csv",
			ThermistorPath: "/thermdata.csv",
			SamplePath:     "/data.csv",
		},
		Thermistor: thermistor.DefaultParams(),
		Logging:    LoggingConfig{Level: "info", Format: "text", MaxSizeMB: 10, MaxBackups: 3},
		Export:     ExportConfig{BaudRate: 115200},
	}
}

// Load reads a JSON or YAML (by extension) config file over the defaults.
// An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	default:
		err = json.Unmarshal(b, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Flags returns the command line overrides understood by FromContext.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Usage: "Path to JSON or YAML config file"},
		&cli.StringFlag{Name: "store-path", Usage: "Directory backing the persistent store"},
		&cli.StringFlag{Name: "adc", Usage: "ADC backend: ads1115|pin|simulation"},
		&cli.StringFlag{Name: "pins", Usage: "Analog pins for the pin backend e.g. 3=AIN0,2=AIN1"},
		&cli.StringFlag{Name: "i2c-bus", Usage: "I2C bus (e.g., '2' -> /dev/i2c-2)"},
		&cli.StringFlag{Name: "i2c-address", Usage: "I2C address (decimal or 0x hex)"},
		&cli.StringFlag{Name: "channels", Usage: "Channel mapping e.g. pot=3,thermistor=2"},
		&cli.IntFlag{Name: "samples", Value: -1, Usage: "Rows to log per run"},
		&cli.IntFlag{Name: "period-ms", Value: -1, Usage: "Delay between rows in ms"},
		&cli.IntFlag{Name: "oversample", Value: -1, Usage: "Conversions averaged per row"},
		&cli.StringFlag{Name: "outputs", Usage: "Comma-separated outputs (console,mqtt)"},
		&cli.StringFlag{Name: "mqtt-server", Usage: "MQTT server (tcp://host:port)"},
		&cli.StringFlag{Name: "log-level", Usage: "Log level"},
		&cli.StringFlag{Name: "log-format", Usage: "Log format: text|json"},
		&cli.StringFlag{Name: "log-file", Usage: "Rotated diagnostic log file"},
		&cli.StringFlag{Name: "metrics-listen", Usage: "Address serving /metrics"},
	}
}

// FromContext loads the config file named by --config and applies flag
// overrides on top of it.
func FromContext(c *cli.Context) (Config, error) {
	cfg, err := Load(c.String("config"))
	if err != nil {
		return cfg, err
	}
	if v := c.String("store-path"); v != "" {
		cfg.Store.BasePath = v
	}
	if v := c.String("adc"); v != "" {
		cfg.ADC.Backend = v
	}
	if v := c.String("pins"); v != "" {
		pins, err := parsePins(v)
		if err != nil {
			return cfg, err
		}
		cfg.ADC.Pins = pins
	}
	if v := c.String("i2c-bus"); v != "" {
		cfg.ADC.I2CBus = v
	}
	if v := c.String("i2c-address"); v != "" {
		addr, err := parseIntOrHex(v)
		if err != nil {
			return cfg, fmt.Errorf("i2c-address: %w", err)
		}
		cfg.ADC.I2CAddress = addr
	}
	if v := c.String("channels"); v != "" {
		if err := parseChannels(v, &cfg.Channels); err != nil {
			return cfg, err
		}
	}
	if v := c.Int("samples"); v != -1 {
		cfg.Acquisition.Samples = v
	}
	if v := c.Int("period-ms"); v != -1 {
		cfg.Acquisition.PeriodMs = v
	}
	if v := c.Int("oversample"); v != -1 {
		cfg.Acquisition.Oversample = v
	}
	if v := c.String("outputs"); v != "" {
		parts := parseCSV(v)
		outs := make([]OutputConfig, 0, len(parts))
		for _, p := range parts {
			outs = append(outs, OutputConfig{Type: p})
		}
		cfg.Outputs = outs
	}
	if v := c.String("mqtt-server"); v != "" {
		applied := false
		for i := range cfg.Outputs {
			if strings.EqualFold(cfg.Outputs[i].Type, "mqtt") {
				if cfg.Outputs[i].MQTT == nil {
					cfg.Outputs[i].MQTT = &MQTTConfig{}
				}
				cfg.Outputs[i].MQTT.Server = v
				applied = true
			}
		}
		if !applied {
			cfg.Outputs = append(cfg.Outputs, OutputConfig{Type: "mqtt", MQTT: &MQTTConfig{Server: v}})
		}
	}
	if v := c.String("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if v := c.String("log-format"); v != "" {
		cfg.Logging.Format = v
	}
	if v := c.String("log-file"); v != "" {
		cfg.Logging.File = v
	}
	if v := c.String("metrics-listen"); v != "" {
		cfg.Metrics.Listen = v
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case "os", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	switch c.ADC.Backend {
	case "ads1115", "simulation":
	case "pin":
		if len(c.ADC.Pins) == 0 {
			errs = append(errs, errors.New("pin backend needs adc.pins"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown adc backend %q", c.ADC.Backend))
	}
	if c.ADC.BitWidth < 9 || c.ADC.BitWidth > 16 {
		errs = append(errs, fmt.Errorf("bit_width %d must be in [9, 16]", c.ADC.BitWidth))
	}
	switch strings.ToLower(c.ADC.Attenuation) {
	case "0db", "2.5db", "6db", "12db":
	default:
		errs = append(errs, fmt.Errorf("unknown attenuation %q", c.ADC.Attenuation))
	}
	if c.Acquisition.Samples < 0 {
		errs = append(errs, errors.New("samples must be >= 0"))
	}
	if c.Acquisition.PeriodMs < 0 {
		errs = append(errs, errors.New("period_ms must be >= 0"))
	}
	if c.Acquisition.Oversample < 1 {
		errs = append(errs, errors.New("oversample must be >= 1"))
	}
	if err := c.Thermistor.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func parseIntOrHex(s string) (int, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseInt(s[2:], 16, 0)
		return int(v), err
	}
	v, err := strconv.Atoi(s)
	return v, err
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// parseChannels applies "pot=3,thermistor=2" style assignments.
func parseChannels(s string, ch *ChannelConfig) error {
	for _, p := range parseCSV(s) {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			return fmt.Errorf("invalid channel mapping '%s'", p)
		}
		v, err := strconv.Atoi(strings.TrimSpace(kv[1]))
		if err != nil {
			return fmt.Errorf("invalid channel '%s': %w", p, err)
		}
		switch strings.TrimSpace(kv[0]) {
		case "pot":
			ch.Pot = v
		case "thermistor":
			ch.Thermistor = v
		default:
			return fmt.Errorf("unknown channel name '%s'", kv[0])
		}
	}
	return nil
}

// parsePins reads "3=AIN0,2=AIN1" style channel to pin name assignments.
func parsePins(s string) (map[int]string, error) {
	pins := map[int]string{}
	for _, p := range parseCSV(s) {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 || strings.TrimSpace(kv[1]) == "" {
			return nil, fmt.Errorf("invalid pin mapping '%s'", p)
		}
		ch, err := strconv.Atoi(strings.TrimSpace(kv[0]))
		if err != nil {
			return nil, fmt.Errorf("invalid pin channel '%s': %w", p, err)
		}
		pins[ch] = strings.TrimSpace(kv[1])
	}
	return pins, nil
}
