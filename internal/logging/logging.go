// Package logging builds the process logger.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options select the encoder, level and optional rotating file sink.
type Options struct {
	Level       string
	Development bool
	File        string
	MaxSizeMB   int
	MaxBackups  int
}

// New returns a logger writing to stderr and, when File is set, to a rotated
// log file as well.
func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		l, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		level = l
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var consoleEnc zapcore.Encoder
	if opts.Development {
		devCfg := zap.NewDevelopmentEncoderConfig()
		devCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleEnc = zapcore.NewConsoleEncoder(devCfg)
	} else {
		consoleEnc = zapcore.NewJSONEncoder(encCfg)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEnc, zapcore.Lock(os.Stderr), level),
	}
	if opts.File != "" {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encCfg),
			zapcore.AddSync(RotatingFile(opts)),
			level,
		))
	}

	zopts := []zap.Option{zap.AddCaller()}
	if opts.Development {
		zopts = append(zopts, zap.Development())
	}
	return zap.New(zapcore.NewTee(cores...), zopts...), nil
}

// RotatingFile is the file sink for opts, 5 MB per file and 2 backups unless
// configured otherwise.
func RotatingFile(opts Options) *lumberjack.Logger {
	maxSize, backups := opts.MaxSizeMB, opts.MaxBackups
	if maxSize <= 0 {
		maxSize = 5
	}
	if backups <= 0 {
		backups = 2
	}
	return &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    maxSize,
		MaxBackups: backups,
	}
}
