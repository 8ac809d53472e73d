package utils

import (
	"go.uber.org/zap"
)

// NewLogger builds the process logger. "dev" gets the human readable
// development config, everything else the JSON production config.
func NewLogger(env string) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if env == "dev" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	return logger
}
