// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package rocutil carries the ambient concerns shared by every core
// component: structured logging, rate-limited stats reporting, and a
// seqlock for publishing 64-bit values without a mutex.
package rocutil

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the structured logging surface every core component depends on.
// Concrete components never call a package-level logging function; they
// hold a Logger reference so tests can swap in a recording stub.
type Logger interface {
	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
	Sync() error
}

// zapLogger adapts *zap.SugaredLogger to Logger.
type zapLogger struct {
	*zap.SugaredLogger
}

// NewZapLogger builds a Logger backed by zap, writing JSON lines to
// logFilePath (rotated via lumberjack) and, when console is true, also to
// stderr in human-readable form. Pass an empty logFilePath to log to stderr
// only.
func NewZapLogger(logFilePath string, console bool) (Logger, error) {
	var cores []zapcore.Core

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	if logFilePath != "" {
		writer := zapcore.AddSync(&lumberjack.Logger{
			Filename:   logFilePath,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), writer, zapcore.InfoLevel))
	}

	if console || logFilePath == "" {
		consoleEncoderCfg := encoderCfg
		consoleEncoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEncoderCfg), zapcore.AddSync(os.Stderr), zapcore.DebugLevel))
	}

	core := zapcore.NewTee(cores...)
	base := zap.New(core, zap.AddCaller())

	return &zapLogger{SugaredLogger: base.Sugar()}, nil
}

// NewNopLogger returns a Logger that discards everything; used by tests and
// components exercised without a caller-supplied logger.
func NewNopLogger() Logger {
	return &zapLogger{SugaredLogger: zap.NewNop().Sugar()}
}
