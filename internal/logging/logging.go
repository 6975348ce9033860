// Package logging builds the application logger from a zap preset.
package logging

import (
	"strings"

	"go.uber.org/zap"
)

// New returns a sugared zap logger. mode "prod" selects the JSON production
// preset; anything else selects the development console preset.
func New(mode string) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}
