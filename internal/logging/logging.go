package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "revcheck"

// New builds a JSON logger, or a console logger when development is set.
// Logs go to stderr so stdout stays free for the caller.
func New(level string, development bool) (*zap.Logger, error) {
	parsedLevel, parseLevelError := zapcore.ParseLevel(level)
	if parseLevelError != nil {
		return nil, fmt.Errorf("parsing log level: %w", parseLevelError)
	}

	var zapConfig zap.Config
	if development {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zapConfig.Level.SetLevel(parsedLevel)
	zapConfig.OutputPaths = []string{"stderr"}
	zapConfig.InitialFields = map[string]interface{}{
		"service": serviceName,
	}
	return zapConfig.Build()
}
