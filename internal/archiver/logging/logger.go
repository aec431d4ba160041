// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

// Package logging builds the archiver's root zap.Logger, switching encoders
// based on the CLI's --log-format flag the way storj's process package wires
// a root logger for every cmd/* binary.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Format selects the zap encoder.
type Format string

// Supported log formats.
const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// New builds a root logger at the given level ("debug", "info", "warn",
// "error") and format ("console" or "json").
func New(level string, format Format) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var encoderCfg zapcore.EncoderConfig
	var encoder zapcore.Encoder
	switch format {
	case FormatJSON:
		encoderCfg = zap.NewProductionEncoderConfig()
		encoderCfg.TimeKey = "timestamp"
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	case FormatConsole, "":
		encoderCfg = zap.NewDevelopmentEncoderConfig()
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(zapStdout())), zapLevel)
	return zap.New(core), nil
}
