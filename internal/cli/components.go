package cli

import (
	"errors"
	"fmt"

	"github.com/hyperjump/kioku/internal/collection"
	"github.com/hyperjump/kioku/internal/config"
	"github.com/hyperjump/kioku/internal/embedding"
	"github.com/hyperjump/kioku/internal/vector"
	"go.uber.org/zap"
)

// Components holds the long-lived services built from config.
type Components struct {
	Store    *vector.Store
	Registry *embedding.Registry
	Manager  *collection.Manager
}

// Close releases the local model and every open partition.
func (c *Components) Close() error {
	var errs []error
	if c.Registry != nil {
		errs = append(errs, c.Registry.Close())
	}
	if c.Store != nil {
		errs = append(errs, c.Store.Close())
	}
	return errors.Join(errs...)
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	registry, err := embedding.NewRegistry(registryConfig(cfg), embedding.WithLogger(logger.Named("embedding")))
	if err != nil {
		return nil, fmt.Errorf("embedding registry: %w", err)
	}
	store, err := vector.NewStore(cfg.Storage.VectorsPath, vector.WithLogger(logger.Named("vector")))
	if err != nil {
		_ = registry.Close()
		return nil, err
	}
	manager := collection.NewManager(store, registry,
		collection.WithLogger(logger.Named("collection")),
		collection.WithBatchSize(cfg.Vectors.BatchSize),
		collection.WithDefaultTopK(cfg.Vectors.DefaultTopK),
		collection.WithQueryConcurrency(cfg.Vectors.QueryConcurrency),
		collection.WithModelScopes(cfg.Vectors.ModelScopesOrDefault()),
	)
	return &Components{Store: store, Registry: registry, Manager: manager}, nil
}

func registryConfig(cfg *config.Config) embedding.RegistryConfig {
	sources := make(map[string]embedding.SourceDefaults, len(cfg.Embedding.Providers))
	for name, p := range cfg.Embedding.Providers {
		sources[name] = embedding.SourceDefaults{
			APIKey:            p.ResolvedAPIKey(),
			APIURL:            p.APIURL,
			Model:             p.Model,
			RequestsPerSecond: p.RequestsPerSecond,
		}
	}
	local := cfg.Embedding.Local
	return embedding.RegistryConfig{
		Sources: sources,
		Local: embedding.LocalConfig{
			ModelName:  local.ModelName,
			ModelPath:  local.ModelPath,
			Dimensions: local.Dimensions,
			MaxTokens:  local.MaxTokens,
		},
		RequestTimeout: cfg.Embedding.RequestTimeout,
		CacheSize:      cfg.Embedding.CacheSizeOrDefault(),
	}
}
