// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"serveturn/detector/internal/types"
)

// Setup sets the level and formatter of the standard logger. Output goes to
// stderr so stdout stays free for command results.
func Setup(level, format string) error {
	return configure(logrus.StandardLogger(), os.Stderr, level, format)
}

func configure(l *logrus.Logger, w io.Writer, level, format string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return types.NewConfigError("log_level", level, err.Error())
	}
	switch format {
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return types.NewConfigError("log_format", format, "must be text or json")
	}
	l.SetOutput(w)
	l.SetLevel(lvl)
	return nil
}
