// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	log         *zap.Logger
	AppLog      *zap.SugaredLogger
	CfgLog      *zap.SugaredLogger
	MauLog      *zap.SugaredLogger
	MeterLog    *zap.SugaredLogger
	PredLog     *zap.SugaredLogger
	DepLog      *zap.SugaredLogger
	SnapLog     *zap.SugaredLogger
	RdmLog      *zap.SugaredLogger
	PktGenLog   *zap.SugaredLogger
	P4Log       *zap.SugaredLogger
	MetricsLog  *zap.SugaredLogger
	atomicLevel zap.AtomicLevel
)

func init() {
	atomicLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	config := zap.Config{
		Level:            atomicLevel,
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.LevelKey = "level"
	config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	config.EncoderConfig.CallerKey = "caller"
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	config.EncoderConfig.MessageKey = "message"
	config.EncoderConfig.StacktraceKey = ""

	var err error
	log, err = config.Build()
	if err != nil {
		panic(err)
	}

	AppLog = log.Sugar().With("component", "MAUSIM", "category", "App")
	CfgLog = log.Sugar().With("component", "MAUSIM", "category", "Config")
	MauLog = log.Sugar().With("component", "MAUSIM", "category", "Mau")
	MeterLog = log.Sugar().With("component", "MAUSIM", "category", "Meter")
	PredLog = log.Sugar().With("component", "MAUSIM", "category", "Predication")
	DepLog = log.Sugar().With("component", "MAUSIM", "category", "Dependencies")
	SnapLog = log.Sugar().With("component", "MAUSIM", "category", "Snapshot")
	RdmLog = log.Sugar().With("component", "MAUSIM", "category", "Rdm")
	PktGenLog = log.Sugar().With("component", "MAUSIM", "category", "PktGen")
	P4Log = log.Sugar().With("component", "MAUSIM", "category", "P4rt")
	MetricsLog = log.Sugar().With("component", "MAUSIM", "category", "Metrics")
}

func GetLogger() *zap.Logger {
	return log
}

// SetLogLevel sets the level of every subsystem logger.
func SetLogLevel(level zapcore.Level) {
	AppLog.Infoln("set log level:", level)
	atomicLevel.SetLevel(level)
}
