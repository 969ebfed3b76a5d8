package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Load parses environment variables into cfg using its `env` tags.
// Nested structs may carry an `envPrefix` tag to group related variables:
//
//	type Config struct {
//	    LogLevel   string           `env:"LOG_LEVEL" envDefault:"info"`
//	    Classifier ClassifierConfig `envPrefix:"CLASSIFIER_"`
//	}
func Load(cfg any) error {
	return LoadWithPrefix(cfg, "")
}

// LoadWithPrefix is Load with every variable name prefixed, so two instances
// of the same struct can be read from one environment.
func LoadWithPrefix(cfg any, prefix string) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: prefix}); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}
