package logger

import (
	"github.com/thejerf/suture/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a new logger instance
func New(environment string) (*zap.Logger, error) {
	var config zap.Config

	if environment == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	config.EncoderConfig.CallerKey = "caller"
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	return config.Build(zap.AddCaller())
}

// SupervisorHook routes suture lifecycle events into the given logger.
func SupervisorHook(log *zap.Logger) suture.EventHook {
	return func(e suture.Event) {
		fields := make([]zap.Field, 0, len(e.Map())+1)
		fields = append(fields, zap.Int("event_type", int(e.Type())))
		for k, v := range e.Map() {
			fields = append(fields, zap.Any(k, v))
		}

		switch e.Type() {
		case suture.EventTypeServicePanic, suture.EventTypeServiceTerminate, suture.EventTypeStopTimeout:
			log.Error(e.String(), fields...)
		default:
			log.Warn(e.String(), fields...)
		}
	}
}
