package storage

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/common"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/interfaces"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/storage/badger"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/storage/snapshots"
)

// NewStorageManager creates the badger-backed entity store
func NewStorageManager(logger arbor.ILogger, config *common.Config) (*badger.Manager, error) {
	manager, err := badger.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage at %s: %w", config.Storage.Badger.Path, err)
	}
	return manager, nil
}

// NewSnapshotStore creates the object store for page snapshots
func NewSnapshotStore(ctx context.Context, logger arbor.ILogger, config *common.Config) (interfaces.SnapshotStore, error) {
	return snapshots.NewStore(ctx, config.Snapshots, logger)
}
