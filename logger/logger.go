// Package logger
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger interface {
	Info(msg string)
	Warn(msg string)
	Error(msg string)
	Fatal(msg string)
	Debug(msg string)

	WithStr(key, value string) Logger
	WithBool(key string, value bool) Logger
	WithInt(key string, value int) Logger
	WithInt64(key string, value int64) Logger
	WithAny(key string, value any) Logger
	WithErr(err error) Logger
}

type Options struct {
	// Path of the rotated log file, empty disables file output.
	Path   string
	Level  string
	Stdout bool
}

type logger struct {
	base zerolog.Logger
}

func New(opts Options) (Logger, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		l, err := zerolog.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = l
	}

	var writers []io.Writer

	if opts.Stdout {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.TimeOnly,
		})
	}

	if opts.Path != "" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    5,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		})
	}

	if len(writers) == 0 {
		return Nop(), nil
	}

	base := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()

	return &logger{base: base}, nil
}

// NewWithWriter logs JSON lines to w at debug level.
func NewWithWriter(w io.Writer) Logger {
	return &logger{
		base: zerolog.New(w).Level(zerolog.DebugLevel).With().Timestamp().Logger(),
	}
}

func Nop() Logger {
	return &logger{base: zerolog.Nop()}
}

func (l *logger) Info(msg string) {
	l.base.Info().Msg(msg)
}

func (l *logger) Warn(msg string) {
	l.base.Warn().Msg(msg)
}

func (l *logger) Fatal(msg string) {
	l.base.Fatal().Msg(msg)
}

func (l *logger) Error(msg string) {
	l.base.Error().Msg(msg)
}

func (l *logger) Debug(msg string) {
	l.base.Debug().Msg(msg)
}

func (l *logger) WithStr(key, value string) Logger {
	return &logger{base: l.base.With().Str(key, value).Logger()}
}

func (l *logger) WithBool(key string, value bool) Logger {
	return &logger{base: l.base.With().Bool(key, value).Logger()}
}

func (l *logger) WithInt(key string, value int) Logger {
	return &logger{base: l.base.With().Int(key, value).Logger()}
}

func (l *logger) WithInt64(key string, value int64) Logger {
	return &logger{base: l.base.With().Int64(key, value).Logger()}
}

func (l *logger) WithAny(key string, value any) Logger {
	return &logger{base: l.base.With().Interface(key, value).Logger()}
}

func (l *logger) WithErr(err error) Logger {
	return &logger{base: l.base.With().Err(err).Logger()}
}

// LogPath returns <home>/gochat/<sub>/gochat.log and creates its directory.
func LogPath(sub string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	logDir := filepath.Join(homeDir, "gochat", sub)

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}

	return filepath.Join(logDir, "gochat.log"), nil
}
