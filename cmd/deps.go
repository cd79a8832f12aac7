package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/spigell/cv-classifier/internal/ai/gemini"
	"github.com/spigell/cv-classifier/internal/deep"
	"github.com/spigell/cv-classifier/internal/history"
	"github.com/spigell/cv-classifier/internal/registry"
	"github.com/spigell/cv-classifier/internal/secrets"
)

// newDeepBackend returns nil when the deep-learning family is disabled.
func newDeepBackend(ctx context.Context, cfg *DeepConfig, log *zap.Logger) (deep.Backend, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported deep-learning provider: %s", cfg.Provider)
	}
	if cfg.Gemini == nil {
		return nil, fmt.Errorf("deep.gemini section is required")
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: cfg.Gemini.APIKey,
		File:  cfg.Gemini.APIKeyFile,
		Env:   "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, err
	}

	embedder, err := gemini.NewEmbedder(ctx, gemini.Config{
		APIKey:     apiKey,
		Model:      cfg.Gemini.Model,
		BatchSize:  cfg.Gemini.BatchSize,
		MaxRetries: cfg.Gemini.MaxRetries,
	}, log)
	if err != nil {
		return nil, err
	}

	return deep.NewCentroidBackend(embedder, cfg.Gemini.Temperature), nil
}

func newRegistry(config *Config, backend deep.Backend, log *zap.Logger) (*registry.Registry, error) {
	opts := []registry.Option{registry.WithLogger(log)}
	if backend != nil {
		opts = append(opts, registry.WithDeepDecoder(deep.NewDecoder(backend)))
	}
	return registry.New(afero.NewOsFs(), config.ModelsDir, config.DeepModelsDir, opts...)
}

// openHistory returns nil when the training log is disabled.
func openHistory(config *Config) (*history.Store, error) {
	if strings.TrimSpace(config.HistoryDB) == "" {
		return nil, nil
	}
	return history.Open(config.HistoryDB)
}

// setup builds the shared dependencies of the model commands. The deep
// backend is optional: failures are logged and the family stays unavailable.
func setup(ctx context.Context) (*Config, *zap.Logger, deep.Backend, *registry.Registry) {
	config, log := bootstrap()

	backend, err := newDeepBackend(ctx, config.Deep, log)
	if err != nil {
		log.Warn("deep-learning models are unavailable", zap.Error(err))
	}

	reg, err := newRegistry(config, backend, log)
	if err != nil {
		log.Fatal("opening the model registry", zap.Error(err))
	}
	return config, log, backend, reg
}
