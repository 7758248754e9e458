package factory

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mikey/llm-harassment-filter/internal/adapters/store"
	"github.com/mikey/llm-harassment-filter/internal/config"
	"github.com/mikey/llm-harassment-filter/internal/core"
	"go.uber.org/zap"
)

// StoreFactory creates key-value stores based on configuration
type StoreFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewStoreFactory creates a new store factory
func NewStoreFactory(cfg *config.Config, logger *zap.Logger) *StoreFactory {
	return &StoreFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateStore creates a key-value store based on the configuration. When an
// external store cannot be reached the factory degrades to the in-memory
// store so scoring keeps running.
func (f *StoreFactory) CreateStore() (core.KeyValueStore, error) {
	storeCfg := f.cfg.GetStore()

	kv, err := f.create(storeCfg)
	if err != nil {
		f.logger.Warn("Store unavailable, degrading to in-memory store",
			zap.Error(err),
			zap.String("store_type", storeCfg.Type))
		return store.NewMemoryStore(f.logger, storeCfg.CleanupFrequency), nil
	}
	return kv, nil
}

func (f *StoreFactory) create(storeCfg config.StoreConfig) (core.KeyValueStore, error) {
	switch storeCfg.Type {
	case "memory":
		return store.NewMemoryStore(f.logger, storeCfg.CleanupFrequency), nil
	case "redis":
		return store.NewRedisStore(storeCfg.RedisAddr, storeCfg.RedisPassword, storeCfg.RedisDB, f.logger)
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(storeCfg.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		return store.NewSQLiteStore(storeCfg.SQLitePath, f.logger, storeCfg.CleanupFrequency)
	case "mysql":
		return store.NewMySQLStore(storeCfg.MySQLDSN, f.logger, storeCfg.CleanupFrequency)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", storeCfg.Type)
	}
}
