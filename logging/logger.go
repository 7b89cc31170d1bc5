// Package logging provides component loggers sharing one configurable
// logrus logger.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// LevelEnv overrides the configured log level when set.
const LevelEnv = "GSEND_LOG_LEVEL"

var (
	root = newRoot()

	loggers   = make(map[string]*logrus.Entry)
	loggersMu sync.Mutex
)

func newRoot() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	level, err := logrus.ParseLevel(os.Getenv(LevelEnv))
	if err == nil {
		l.SetLevel(level)
	}
	return l
}

// NewLogger returns the logger for a component. Loggers are cached, so
// repeated calls with the same name return the same entry.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if logger, ok := loggers[component]; ok {
		return logger
	}

	entry := root.WithField("component", component)
	loggers[component] = entry
	return entry
}

// Configure sets the level and format of all component loggers. Format is
// "text", "json" or "auto" (text on a terminal, json otherwise). The
// GSEND_LOG_LEVEL environment variable takes precedence over level.
func Configure(level, format string) error {
	if env := os.Getenv(LevelEnv); env != "" {
		level = env
	}
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	root.SetLevel(lvl)
	root.SetFormatter(formatter(format, root.Out))

	return nil
}

// SetOutput redirects all component loggers.
func SetOutput(w io.Writer) { root.SetOutput(w) }

func formatter(format string, out io.Writer) logrus.Formatter {
	switch format {
	case "json":
		return &logrus.JSONFormatter{}
	case "text":
		return &logrus.TextFormatter{FullTimestamp: true}
	}

	if f, ok := out.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return &logrus.TextFormatter{FullTimestamp: true}
	}
	return &logrus.JSONFormatter{}
}
