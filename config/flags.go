package config

import (
	"github.com/spf13/pflag"
)

// BindFlags registers the command line overrides.
func BindFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.StringP("config", "c", "", "config file (default "+DefaultPath+" if present)")
	fs.String("firmware", d.Firmware, "controller firmware: grbl, marlin, smoothie or tinyg")
	fs.StringP("port", "p", d.Port, "serial port of the controller")
	fs.IntP("baud", "b", d.Baud, "serial baud rate")
	fs.String("spjs", d.SPJS, "serial-port-json-server websocket URL, e.g. ws://localhost:8989/ws")
	fs.StringP("addr", "a", d.Addr, "HTTP listen address")
	fs.String("watch-dir", d.WatchDir, "load programs written to this directory")
	fs.String("log-level", d.LogLevel, "log level")
	fs.String("log-format", d.LogFormat, "log format: text, json or auto")
	fs.Float64("jog-step", d.JogStep, "jog wheel speed scale (0-1]")
	fs.Bool("show-line-warnings", d.ShowLineWarnings, "pause on lines rejected by the controller")
}

// ConfigPath returns the --config flag value.
func ConfigPath(fs *pflag.FlagSet) string {
	p, _ := fs.GetString("config")
	return p
}

// ApplyFlags copies flags set on the command line into c.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	strs := map[string]*string{
		"firmware":   &c.Firmware,
		"port":       &c.Port,
		"spjs":       &c.SPJS,
		"addr":       &c.Addr,
		"watch-dir":  &c.WatchDir,
		"log-level":  &c.LogLevel,
		"log-format": &c.LogFormat,
	}
	var err error
	for name, dst := range strs {
		if !fs.Changed(name) {
			continue
		}
		if *dst, err = fs.GetString(name); err != nil {
			return err
		}
	}
	if fs.Changed("baud") {
		if c.Baud, err = fs.GetInt("baud"); err != nil {
			return err
		}
	}
	if fs.Changed("jog-step") {
		if c.JogStep, err = fs.GetFloat64("jog-step"); err != nil {
			return err
		}
	}
	if fs.Changed("show-line-warnings") {
		if c.ShowLineWarnings, err = fs.GetBool("show-line-warnings"); err != nil {
			return err
		}
	}

	return c.Validate()
}
