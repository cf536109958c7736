package config

import "cttsync/internal/logging"

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"`      // debug, info, warn, error
	Format     string          `yaml:"format"`     // json, console
	Categories map[string]bool `yaml:"categories"` // Per-category toggles, missing = enabled
}

// Options converts the config section into logging options.
func (c LoggingConfig) Options(verbose bool) logging.Options {
	return logging.Options{
		Level:      c.Level,
		Format:     c.Format,
		Categories: c.Categories,
		Verbose:    verbose,
	}
}
