package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"messageflow-backend/internal/config"
)

// Setup configures the global zerolog logger. Outside production the console
// output is human readable; LOG_FILE adds a rotated JSON file.
func Setup(cfg config.LoggingConfig, production bool) io.Closer {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var console io.Writer = os.Stderr
	if !production {
		console = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}

	var closer io.Closer = nopCloser{}
	writer := console
	if cfg.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		}
		closer = rotated
		writer = zerolog.MultiLevelWriter(console, rotated)
	}

	log.Logger = zerolog.New(writer).With().Timestamp().Logger()
	if err != nil {
		log.Warn().Str("level", cfg.Level).Msg("Unknown log level, falling back to info")
	}
	return closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
