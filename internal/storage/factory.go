// Package storage opens the workflow and catalog stores selected by config.
package storage

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tacklebox/internal/common"
	"github.com/ternarybob/tacklebox/internal/interfaces"
	"github.com/ternarybob/tacklebox/internal/storage/badger"
	"github.com/ternarybob/tacklebox/internal/storage/postgres"
	"github.com/ternarybob/tacklebox/internal/storage/sqlite"
)

// NewWorkflowStore opens the Badger workflow store
func NewWorkflowStore(logger arbor.ILogger, config common.WorkflowConfig) (interfaces.WorkflowStore, error) {
	db, err := badger.NewBadgerDB(logger, config.Path, config.ResetOnStartup)
	if err != nil {
		return nil, err
	}
	return badger.NewWorkflowStore(db, logger), nil
}

// NewCatalogStore opens the catalog backend named by config.Type
func NewCatalogStore(ctx context.Context, logger arbor.ILogger, config common.CatalogConfig) (interfaces.CatalogStore, error) {
	switch config.Type {
	case "", "sqlite":
		db, err := sqlite.NewSQLiteDB(logger, config.SQLite.Path)
		if err != nil {
			return nil, err
		}
		return sqlite.NewCatalogStore(db, logger), nil
	case "postgres":
		db, err := postgres.NewDB(ctx, logger, config.Postgres)
		if err != nil {
			return nil, err
		}
		return postgres.NewCatalogStore(db, logger), nil
	case "badger":
		db, err := badger.NewBadgerDB(logger, config.Badger.Path, false)
		if err != nil {
			return nil, err
		}
		return badger.NewCatalogStore(db, logger), nil
	default:
		return nil, fmt.Errorf("unsupported catalog type: %s (expected sqlite, postgres or badger)", config.Type)
	}
}
