package mtengine

import (
	"context"
	"fmt"

	translate "cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/option"
)

// googleBatchLimit is the number of strings sent per Translate call.
const googleBatchLimit = 100

type GoogleEngine struct {
	client *translate.Client
}

func NewGoogleEngine(ctx context.Context, cfg Config, extra ...option.ClientOption) (*GoogleEngine, error) {
	opts := []option.ClientOption{}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}
	opts = append(opts, extra...)

	client, err := translate.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return &GoogleEngine{client: client}, nil
}

func (e *GoogleEngine) Name() string {
	return "google"
}

func (e *GoogleEngine) Translate(ctx context.Context, texts []string, sourceLang, targetLang string) ([]string, error) {
	target, err := parseTag(targetLang)
	if err != nil {
		return nil, fmt.Errorf("invalid target language: %w", err)
	}

	opts := &translate.Options{Format: translate.Text}
	if sourceLang != "" && sourceLang != "auto" {
		source, err := parseTag(sourceLang)
		if err != nil {
			return nil, fmt.Errorf("invalid source language: %w", err)
		}
		opts.Source = source
	}

	out := make([]string, 0, len(texts))
	for start := 0; start < len(texts); start += googleBatchLimit {
		end := start + googleBatchLimit
		if end > len(texts) {
			end = len(texts)
		}
		translations, err := e.client.Translate(ctx, texts[start:end], target, opts)
		if err != nil {
			return nil, fmt.Errorf("translation failed: %w", err)
		}
		if len(translations) != end-start {
			return nil, fmt.Errorf("google returned %d translations for %d texts", len(translations), end-start)
		}
		for _, t := range translations {
			out = append(out, t.Text)
		}
	}
	return out, nil
}

func (e *GoogleEngine) Close() error {
	return e.client.Close()
}

// parseTag accepts both "pt-BR" and memoQ's "pt_BR" spellings.
func parseTag(code string) (language.Tag, error) {
	return language.Parse(normalizeCode(code))
}
