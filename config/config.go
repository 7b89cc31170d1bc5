// Package config loads gsend settings from a YAML file, the environment
// (including a .env file) and command line flags, in increasing order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mastercactapus/gsend/analysis"
	"github.com/mastercactapus/gsend/machine"
	"github.com/mastercactapus/gsend/shuttle"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no config file is given. It may be absent.
const DefaultPath = "gsend.yml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GSEND_"

type Limits struct {
	// Feed is the X, Y, Z maximum rate in mm/min.
	Feed [3]float64 `yaml:"feed"`
	// Accel is the X, Y, Z acceleration in mm/s².
	Accel [3]float64 `yaml:"accel"`
}

type Shuttle struct {
	FeedrateMin float64 `yaml:"feedrateMin"`
	FeedrateMax float64 `yaml:"feedrateMax"`
	Hertz       float64 `yaml:"hertz"`
	Overshoot   float64 `yaml:"overshoot"`
	MaxZone     int     `yaml:"maxZone"`
}

type Config struct {
	Firmware string `yaml:"firmware"`

	// Port is opened directly unless SPJS is set, in which case the
	// server opens it.
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
	SPJS string `yaml:"spjs"`

	Addr     string `yaml:"addr"`
	WatchDir string `yaml:"watchDir"`

	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`

	Limits  Limits  `yaml:"limits"`
	Shuttle Shuttle `yaml:"shuttle"`
	JogStep float64 `yaml:"jogStep"`

	ShowLineWarnings bool `yaml:"showLineWarnings"`
}

// Default returns the built-in configuration.
func Default() Config {
	a := analysis.DefaultConfig()
	s := shuttle.DefaultConfig()
	return Config{
		Firmware:  "grbl",
		Baud:      115200,
		Addr:      ":8000",
		LogLevel:  "info",
		LogFormat: "auto",
		Limits: Limits{
			Feed:  a.FeedLimits,
			Accel: a.AccelLimits,
		},
		Shuttle: Shuttle{
			FeedrateMin: s.FeedrateMin,
			FeedrateMax: s.FeedrateMax,
			Hertz:       s.Hertz,
			Overshoot:   s.Overshoot,
			MaxZone:     s.MaxZone,
		},
		JogStep:          s.StepDistance,
		ShowLineWarnings: true,
	}
}

// Load reads the config file at path over the defaults and applies
// environment overrides. An empty path reads DefaultPath if it exists.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		err = yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg)
		if err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return cfg, fmt.Errorf("read config: %w", err)
	}

	// a missing .env is fine
	err = godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	err = cfg.applyEnv()
	if err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func parseTriple(s string) (res [3]float64, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return res, errors.New("expected 3 comma separated values")
	}
	for i, p := range parts {
		res[i], err = strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"FIRMWARE":   &c.Firmware,
		"PORT":       &c.Port,
		"SPJS":       &c.SPJS,
		"ADDR":       &c.Addr,
		"WATCH_DIR":  &c.WatchDir,
		"LOG_LEVEL":  &c.LogLevel,
		"LOG_FORMAT": &c.LogFormat,
	}
	for name, dst := range strs {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}

	var err error
	if v, ok := lookup("BAUD"); ok {
		if c.Baud, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("%sBAUD: %w", EnvPrefix, err)
		}
	}
	if v, ok := lookup("JOG_STEP"); ok {
		if c.JogStep, err = strconv.ParseFloat(v, 64); err != nil {
			return fmt.Errorf("%sJOG_STEP: %w", EnvPrefix, err)
		}
	}
	if v, ok := lookup("SHOW_LINE_WARNINGS"); ok {
		if c.ShowLineWarnings, err = strconv.ParseBool(v); err != nil {
			return fmt.Errorf("%sSHOW_LINE_WARNINGS: %w", EnvPrefix, err)
		}
	}
	if v, ok := lookup("FEED_LIMITS"); ok {
		if c.Limits.Feed, err = parseTriple(v); err != nil {
			return fmt.Errorf("%sFEED_LIMITS: %w", EnvPrefix, err)
		}
	}
	if v, ok := lookup("ACCEL_LIMITS"); ok {
		if c.Limits.Accel, err = parseTriple(v); err != nil {
			return fmt.Errorf("%sACCEL_LIMITS: %w", EnvPrefix, err)
		}
	}

	return nil
}

// Validate checks the configuration for values the sender cannot use.
func (c Config) Validate() error {
	if c.FirmwareKind() == machine.Unknown {
		return fmt.Errorf("unknown firmware %q", c.Firmware)
	}
	if c.Baud <= 0 {
		return fmt.Errorf("invalid baud %d", c.Baud)
	}
	for i := 0; i < 3; i++ {
		if c.Limits.Feed[i] <= 0 || c.Limits.Accel[i] <= 0 {
			return errors.New("limits must be positive")
		}
	}
	if c.Shuttle.Hertz <= 0 || c.Shuttle.FeedrateMax < c.Shuttle.FeedrateMin {
		return errors.New("invalid shuttle settings")
	}
	return nil
}

// FirmwareKind returns the configured firmware.
func (c Config) FirmwareKind() machine.FirmwareKind {
	return machine.ParseFirmwareKind(c.Firmware)
}

// Analysis returns the program analysis settings.
func (c Config) Analysis() analysis.Config {
	return analysis.Config{
		FeedLimits:  c.Limits.Feed,
		AccelLimits: c.Limits.Accel,
		Firmware:    c.FirmwareKind(),
	}
}

// ShuttleConfig returns the jog wheel settings.
func (c Config) ShuttleConfig() shuttle.Config {
	return shuttle.Config{
		FeedrateMin:  c.Shuttle.FeedrateMin,
		FeedrateMax:  c.Shuttle.FeedrateMax,
		Hertz:        c.Shuttle.Hertz,
		Overshoot:    c.Shuttle.Overshoot,
		MaxZone:      c.Shuttle.MaxZone,
		StepDistance: c.JogStep,
	}
}
