// Package logger builds the slog logger used across the application.
package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/rs/zerolog"
	slogzerolog "github.com/samber/slog-zerolog/v2"
)

// Opts configures the logger.
type Opts struct {
	Out     io.Writer // defaults to os.Stdout
	Verbose bool      // enables debug level
	NoColor bool
}

// New returns a slog.Logger writing through a zerolog console writer.
func New(opts Opts) *slog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}

	zl := zerolog.New(zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    opts.NoColor,
		TimeFormat: time.DateTime,
	}).With().Timestamp().Logger()

	return slog.New(slogzerolog.Option{Level: level, Logger: &zl}.NewZerologHandler())
}
