// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"cmp"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultService names the process in every log line unless configured.
const DefaultService = "transcoderd"

// Config selects the level and the fixed fields of the process logger.
type Config struct {
	Level   string
	Output  io.Writer // stdout when nil
	Service string
	Version string
}

var (
	once sync.Once
	root zerolog.Logger
)

// Configure builds the process logger. Only the first call has an effect.
// Loggers taken before it use the defaults.
func Configure(cfg Config) {
	once.Do(func() { root = build(cfg) })
}

func build(cfg Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := parseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	fields := zerolog.New(out).With().
		Timestamp().
		Str("service", cmp.Or(cfg.Service, DefaultService))
	if cfg.Version != "" {
		fields = fields.Str("version", cfg.Version)
	}
	return fields.Logger()
}

func parseLevel(s string) (zerolog.Level, error) {
	if s == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil {
		return zerolog.NoLevel, err
	}
	if level == zerolog.NoLevel {
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// SetLevel changes the level of every logger at runtime.
func SetLevel(level string) error {
	parsed, err := parseLevel(level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(parsed)
	return nil
}

func current() zerolog.Logger {
	Configure(Config{})
	return root
}

// L returns a copy of the process logger.
func L() *zerolog.Logger {
	l := current()
	return &l
}

// WithComponent returns a child logger tagged with component.
func WithComponent(component string) zerolog.Logger {
	return current().With().Str(FieldComponent, component).Logger()
}
