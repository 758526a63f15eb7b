// Package logging builds the zap loggers handed to the resources.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the logger.
type Options struct {
	// File is the path of the log file. If empty, logs are written to stdout.
	File string

	// MaxSize is the size in megabytes at which the file is rotated (lumberjack default: 100).
	MaxSize int

	// MaxBackups is the number of rotated files to keep. Zero keeps all of them.
	MaxBackups int

	// MaxAge is the number of days to keep rotated files. Zero disables age-based removal.
	MaxAge int

	// Compress gzips rotated files.
	Compress bool

	// Debug enables debug level; Info is used otherwise.
	Debug bool

	// Console also writes to stdout when File is set.
	Console bool
}

// New creates a JSON zap logger with ISO8601 timestamps and optional file rotation.
func New(opts Options) *zap.Logger {
	core := zapcore.NewCore(newEncoder(), writeSyncer(opts), level(opts))
	return zap.New(core)
}

func newEncoder() zapcore.Encoder {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewJSONEncoder(encCfg)
}

func level(opts Options) zapcore.Level {
	if opts.Debug {
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}

func writeSyncer(opts Options) zapcore.WriteSyncer {
	if opts.File == "" {
		return zapcore.AddSync(os.Stdout)
	}

	lj := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSize,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAge,
		Compress:   opts.Compress,
	}
	if opts.Console {
		return zapcore.NewMultiWriteSyncer(zapcore.AddSync(os.Stdout), zapcore.AddSync(lj))
	}
	return zapcore.AddSync(lj)
}
