package lockeddump

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the environment-tunable settings.
type Config struct {
	// AssertMode is "fatal" (default) or "warn".
	AssertMode         string        `env:"LOCKEDDUMP_ASSERT_MODE" envDefault:"fatal"`
	LockWarningTimeout time.Duration `env:"LOCKEDDUMP_LOCK_WARNING_TIMEOUT" envDefault:"1s"`
	VerboseLevel       int           `env:"LOCKEDDUMP_VERBOSE" envDefault:"1"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Configure applies cfg to the assert mode and to Locks.MutatorLock.
func Configure(cfg Config) error {
	mode, err := ParseAssertMode(cfg.AssertMode)
	if err != nil {
		return fmt.Errorf("configure: %w", err)
	}
	if cfg.LockWarningTimeout < 0 {
		return fmt.Errorf("configure: negative lock warning timeout %v", cfg.LockWarningTimeout)
	}
	SetAssertMode(mode)
	Locks.MutatorLock.SetWarningTimeout(cfg.LockWarningTimeout)
	Locks.MutatorLock.WithVerboseLevel(cfg.VerboseLevel)
	return nil
}
