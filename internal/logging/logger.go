// Package logging builds the zap logger shared by the server and CLI commands.
package logging

import (
	"os"
	"strings"

	"github.com/hrease/apiserver/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "hrease-apiserver"

// New returns a console logger in dev and a JSON logger elsewhere.
func New(cfg config.Config) (*zap.Logger, error) {
	level, err := parseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	var encoder zapcore.Encoder
	if cfg.Env == "dev" {
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	} else {
		encoder = zapcore.NewJSONEncoder(jsonEncoderConfig())
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), zap.NewAtomicLevelAt(level))
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel)).With(
		zap.String("service", serviceName),
		zap.String("environment", cfg.Env),
	), nil
}

// Tee returns a logger that also writes JSON lines to ws at the configured level.
func Tee(logger *zap.Logger, cfg config.Config, ws zapcore.WriteSyncer) *zap.Logger {
	level, err := parseLevel(cfg.Log.Level)
	if err != nil {
		level = zap.InfoLevel
	}
	archiveCore := zapcore.NewCore(zapcore.NewJSONEncoder(jsonEncoderConfig()), ws, zap.NewAtomicLevelAt(level))
	return logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, archiveCore)
	}))
}

func parseLevel(level string) (zapcore.Level, error) {
	level = strings.TrimSpace(level)
	if level == "" {
		return zap.InfoLevel, nil
	}
	return zapcore.ParseLevel(strings.ToLower(level))
}

func jsonEncoderConfig() zapcore.EncoderConfig {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeDuration = zapcore.SecondsDurationEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	return encoderConfig
}
