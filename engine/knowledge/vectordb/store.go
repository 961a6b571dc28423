package vectordb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	errMissingProvider  = errors.New("vector_db provider is required")
	errMissingDSN       = errors.New("vector_db dsn is required")
	errInvalidDimension = errors.New("vector_db dimension must be greater than zero")
)

// New instantiates a vector store backed by the requested provider.
func New(ctx context.Context, cfg *Config) (Store, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case ProviderPGVector:
		return newPGStore(ctx, cfg)
	case ProviderMemory:
		return NewMemoryStore(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("vector_db: provider %q is not supported", cfg.Provider)
	}
}

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("vector_db config is required")
	}
	if strings.TrimSpace(string(cfg.Provider)) == "" {
		return errMissingProvider
	}
	cfg.DSN = strings.TrimSpace(cfg.DSN)
	if cfg.Provider == ProviderPGVector && cfg.DSN == "" {
		return errMissingDSN
	}
	if cfg.Dimension <= 0 {
		return errInvalidDimension
	}
	if cfg.HybridWeight < 0 || cfg.HybridWeight > 1 {
		return fmt.Errorf("vector_db: hybrid weight %.2f outside [0,1]", cfg.HybridWeight)
	}
	return nil
}

// blend combines vector and lexical scores.
func blend(vectorScore, lexicalScore, weight float64) float64 {
	if weight <= 0 || weight > 1 {
		weight = 1
	}
	return weight*vectorScore + (1-weight)*lexicalScore
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
