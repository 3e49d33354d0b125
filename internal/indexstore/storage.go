// Package indexstore selects the index service backend.
package indexstore

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"docqa/internal/config"
	"docqa/internal/domain"
	"docqa/internal/indexstore/gemini"
	"docqa/internal/indexstore/memory"
	"docqa/internal/retry"
)

// Open builds the index service named by cfg.Type.
func Open(ctx context.Context, cfg config.IndexConfig, rc retry.Config, log *zap.Logger) (domain.IndexService, error) {
	switch cfg.Type {
	case "gemini", "":
		gcfg := gemini.Config{
			BaseURL:  cfg.BaseURL,
			Timeout:  cfg.Timeout(),
			PageSize: cfg.PageSize,
			Retry:    rc,
			Logger:   log.Named("gemini"),
		}
		switch cfg.Auth {
		case "adc":
			ts, err := gemini.DefaultTokenSource(ctx)
			if err != nil {
				return nil, err
			}
			gcfg.TokenSource = ts
		default:
			key := os.Getenv(cfg.APIKeyEnv)
			if key == "" {
				return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
			}
			gcfg.APIKey = key
		}
		return gemini.NewClient(ctx, gcfg)
	case "memory":
		log.Warn("using in-memory index service, nothing is uploaded")
		return memory.NewService(), nil
	default:
		return nil, fmt.Errorf("unknown index type: %s", cfg.Type)
	}
}

// RetryConfig converts the YAML retry section.
func RetryConfig(c config.RetryConfig) retry.Config {
	return retry.Config{
		MaxAttempts: c.MaxAttempts,
		InitialWait: millis(c.InitialWaitMillis),
		MaxWait:     millis(c.MaxWaitMillis),
		Multiplier:  c.Multiplier,
		Jitter:      c.Jitter,
	}
}

func millis(n int) time.Duration { return time.Duration(n) * time.Millisecond }
