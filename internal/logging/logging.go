// Package logging configures the logrus logger shared by all components.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/richinex/docqa/config"
)

// Setup builds a logger writing to out with the configured level and
// format. Debug forces the debug level regardless of cfg.Level.
func Setup(cfg config.LogConfig, out io.Writer, debug bool) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(out)

	if cfg.Level != "" {
		lvl, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		logger.SetLevel(lvl)
	}
	if debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	switch strings.ToLower(cfg.Format) {
	case "json":
		logger.SetFormatter(new(logrus.JSONFormatter))
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unsupported log format: %q", cfg.Format)
	}
	return logger, nil
}

// Component returns an entry tagged with the component name.
func Component(logger *logrus.Logger, name string) *logrus.Entry {
	return logger.WithField("component", name)
}

// Discard returns a logger that drops everything, for callers that do
// not configure logging.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
