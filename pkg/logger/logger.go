// Package logger builds the zap logger from the log section of the config.
package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config mirrors config.LogConfig so this package does not import internal/
type Config struct {
	Level        string // debug | info | warn | error
	Format       string // console | json
	Output       string // stdout | stderr | /path/to/file
	EnableCaller bool
}

// New creates a zap logger
//
// Design notes:
//  1. json encoding in production, console while developing
//  2. ISO8601 timestamps so log lines sort lexically
//  3. output defaults to stdout
func New(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoding := cfg.Format
	if encoding != "json" && encoding != "console" {
		encoding = "json"
	}

	output := cfg.Output
	if output == "" {
		output = "stdout"
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if encoding == "console" {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zcfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       false,
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: level > zapcore.DebugLevel,
		Encoding:          encoding,
		EncoderConfig:     encoderCfg,
		OutputPaths:       []string{output},
		ErrorOutputPaths:  []string{"stderr"},
	}

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// Nop returns a logger that discards everything (tests, optional deps)
func Nop() *zap.Logger {
	return zap.NewNop()
}
