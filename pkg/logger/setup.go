package logger

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Flag names shared by every command.
const (
	FlagLevel  = "log-level"
	FlagJSON   = "log-json"
	FlagSource = "log-source"
)

// FlagConfig builds a logger configuration from the persistent logging
// flags of cmd. level applies when the log-level flag was not set.
// Logs go to stderr so command output stays machine readable.
func FlagConfig(cmd *cobra.Command, level string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.Output = os.Stderr
	cfg.Level = LogLevel(level)
	flags := cmd.Flags()
	if f := flags.Lookup(FlagLevel); f != nil && f.Changed {
		cfg.Level = LogLevel(f.Value.String())
	}
	var err error
	if cfg.JSON, err = flags.GetBool(FlagJSON); err != nil {
		return nil, fmt.Errorf("failed to get %s flag: %w", FlagJSON, err)
	}
	if cfg.AddSource, err = flags.GetBool(FlagSource); err != nil {
		return nil, fmt.Errorf("failed to get %s flag: %w", FlagSource, err)
	}
	return cfg, nil
}

// Setup installs cfg as the process default and returns the logger.
func Setup(cfg *Config) Logger {
	Init(cfg)
	return GetDefault()
}
