package main

import (
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/cxd309/avsim-engine/internal/config"
	"github.com/cxd309/avsim-engine/internal/storage"
	"github.com/cxd309/avsim-engine/internal/storage/gormstore"
	"github.com/cxd309/avsim-engine/internal/storage/memory"
)

// openRecorder creates and initializes the configured storage backend.
func openRecorder(cfg config.StorageConfig, logger *slog.Logger) (storage.Recorder, error) {
	var recorder storage.Recorder
	switch cfg.Type {
	case "memory":
		recorder = memory.New()
	case "sqlite", "postgres":
		var (
			db  *gorm.DB
			err error
		)
		if cfg.Type == "sqlite" {
			db, err = gormstore.OpenSQLite(cfg.SQLite.Path)
		} else {
			db, err = gormstore.OpenPostgres(cfg.Postgres)
		}
		if err != nil {
			return nil, err
		}
		recorder = gormstore.New(db, logger)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}

	if err := recorder.Init(); err != nil {
		recorder.Close()
		return nil, fmt.Errorf("initializing %s storage: %w", cfg.Type, err)
	}
	logger.Debug("Storage ready", "type", cfg.Type)
	return recorder, nil
}
