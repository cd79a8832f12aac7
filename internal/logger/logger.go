package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the application logger.
type Options struct {
	JSON  bool
	Debug bool

	// File enables an additional rotating JSON log file when set.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		MessageKey: "step",

		LevelKey:    "level",
		EncodeLevel: zapcore.LowercaseLevelEncoder,

		TimeKey:    "time",
		EncodeTime: zapcore.RFC3339TimeEncoder,

		CallerKey:    "caller",
		EncodeCaller: zapcore.ShortCallerEncoder,

		EncodeDuration: zapcore.StringDurationEncoder,
	}
}

func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	encoding := "console"

	if opts.JSON {
		encoding = "json"
	}

	if opts.Debug {
		level = zapcore.DebugLevel
	}

	cfg := zap.Config{
		Encoding:         encoding,
		Level:            zap.NewAtomicLevelAt(level),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig:    encoderConfig(),
	}

	var buildOpts []zap.Option
	if opts.File != "" {
		buildOpts = append(buildOpts, zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, fileCore(opts, level))
		}))
	}

	logger, err := cfg.Build(buildOpts...)
	if err != nil {
		return nil, err
	}
	defer logger.Sync()

	return logger, nil
}

// fileCore writes JSON entries to a size rotated file.
func fileCore(opts Options, level zapcore.Level) zapcore.Core {
	writer := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
	}
	return zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.AddSync(writer), level)
}

// Stderr returns a console logger for failures before configuration is read.
func Stderr() *zap.Logger {
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), zapcore.Lock(os.Stderr), zapcore.InfoLevel)
	return zap.New(core)
}
