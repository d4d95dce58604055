package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
)

const (
	FormatText = "text"
	FormatJson = "json"

	RFC3339Milli = "2006-01-02T15:04:05.000Z07:00"
)

var validLogFormats = map[string]bool{
	FormatText: true,
	FormatJson: true,
}

// Config defines process-wide log output.
type Config struct {
	// Log level, e.g. info, debug
	Level string
	// Either text or json
	Format string
}

func (c Config) Validate() error {
	if _, err := log.ParseLevel(c.Level); err != nil {
		return errors.WithStack(err)
	}
	return validateLogFormat(c.Format)
}

// MustConfigureLogging sets up logging for a long-running service and exits the process if the config is invalid.
func MustConfigureLogging(c Config) {
	if err := ConfigureLogging(c, os.Stdout); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error initializing logging: "+err.Error())
		os.Exit(1)
	}
}

// ConfigureLogging replaces the formatter, level and output of the standard logrus logger.
func ConfigureLogging(c Config, out io.Writer) error {
	if err := c.Validate(); err != nil {
		return err
	}
	level, _ := log.ParseLevel(c.Level)

	switch strings.ToLower(c.Format) {
	case FormatJson:
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: RFC3339Milli})
	default:
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true, TimestampFormat: RFC3339Milli})
	}
	log.SetLevel(level)
	log.SetOutput(out)
	return nil
}

// ConfigureCliLogging sets up logging for command line tools: bare messages on stdout.
func ConfigureCliLogging() {
	log.SetFormatter(new(CommandLineFormatter))
	log.SetOutput(os.Stdout)
}

// NullLogger discards everything; handy for tests that don't care about log output.
var NullLogger = &log.Logger{
	Out:       io.Discard,
	Formatter: new(log.TextFormatter),
	Hooks:     make(log.LevelHooks),
	Level:     log.PanicLevel,
}

func validateLogFormat(f string) error {
	if _, ok := validLogFormats[strings.ToLower(f)]; !ok {
		return errors.Errorf("unknown log format: %s.  Valid formats are %s", f, maps.Keys(validLogFormats))
	}
	return nil
}
