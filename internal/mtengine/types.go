// Package mtengine machine-translates confirmed units that carry no MT
// candidate, so they can still be scored.
package mtengine

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ProviderPrefix marks MT text that was produced by a backfill engine rather
// than recovered from the input file.
const ProviderPrefix = "backfill / "

type Config struct {
	// CredentialsFile is a Google service-account JSON file.
	CredentialsFile string        `mapstructure:"credentials_file" json:"credentials_file"`
	APIKey          string        `mapstructure:"api_key" json:"api_key"`
	Email           string        `mapstructure:"email" json:"email"`
	BaseURL         string        `mapstructure:"base_url" json:"base_url"`
	Timeout         time.Duration `mapstructure:"timeout" json:"timeout"`
}

// Engine translates a batch of texts, returning one translation per input
// in the same order.
type Engine interface {
	Name() string
	Translate(ctx context.Context, texts []string, sourceLang, targetLang string) ([]string, error)
	Close() error
}

// New builds the named engine: "google" or "mymemory".
func New(ctx context.Context, name string, cfg Config) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "google":
		return NewGoogleEngine(ctx, cfg)
	case "mymemory":
		return NewMyMemoryEngine(cfg), nil
	default:
		return nil, fmt.Errorf("unknown MT engine %q (want google or mymemory)", name)
	}
}
