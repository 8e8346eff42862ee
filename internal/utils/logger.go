package utils

import (
	"go.uber.org/zap"
)

// NewLogger builds the process logger: console output in development, JSON otherwise.
func NewLogger(environment string) (*zap.Logger, error) {
	if environment == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
