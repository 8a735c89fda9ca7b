package logger

import (
	"strings"

	"go.uber.org/zap"
)

var log = zap.NewNop().Sugar()

// Init replaces the no-op logger. mode "prod" selects the JSON production config.
func Init(mode string) {
	var cfg zap.Config
	switch strings.ToLower(mode) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	log = l.Sugar()
}

func Sync() {
	_ = log.Sync()
}

func Debug(msg string, kv ...interface{}) {
	log.Debugw(msg, kv...)
}

func Info(msg string, kv ...interface{}) {
	log.Infow(msg, kv...)
}

func Warn(msg string, kv ...interface{}) {
	log.Warnw(msg, kv...)
}

func Error(msg string, kv ...interface{}) {
	log.Errorw(msg, kv...)
}
