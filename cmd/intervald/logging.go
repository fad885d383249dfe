package main

import (
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/vnykmshr/intervalflow/internal/config"
)

// newLogger builds the process logger. The level is applied globally so a
// reloaded config can change it for every component.
func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	zerolog.SetGlobalLevel(cfg.Level())

	w := out
	if cfg.LogFormat == config.FormatConsole {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(w).With().Timestamp().Str("instance", cfg.Name).Logger()
}
