// Package sysutil holds process-level helpers: zerolog bootstrap, log sinks,
// and small string utilities shared by the bot and the ops server.
package sysutil

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetLogLevel configures the global zerolog level based on a string value.
// Supported values (case-insensitive): debug, info, warn, error, fatal, panic.
func SetLogLevel(lvl string) {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info", "":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "fatal":
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	case "panic":
		zerolog.SetGlobalLevel(zerolog.PanicLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// LogOptions selects the sinks used by SetupLogger.
type LogOptions struct {
	Level  string
	Pretty bool   // human-readable console output instead of JSON
	File   string // optional append-only file sink; empty disables it
}

// SetupLogger installs the global zerolog logger writing to stdout and,
// when opt.File is set, to that file as well. The returned closer releases
// the file handle and is never nil.
func SetupLogger(opt LogOptions) (io.Closer, error) {
	SetLogLevel(opt.Level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var console io.Writer = os.Stdout
	if opt.Pretty {
		console = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	if strings.TrimSpace(opt.File) == "" {
		log.Logger = zerolog.New(console).With().Timestamp().Logger()
		return nopCloser{}, nil
	}

	f, err := os.OpenFile(opt.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nopCloser{}, fmt.Errorf("open log file: %w", err)
	}
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(console, f)).With().Timestamp().Logger()
	return f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// FirstNonEmpty returns the first non-empty string from a variadic list.
// If all values are empty, it returns "".
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
