package badger

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/common"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db       *BadgerDB
	job      interfaces.JobStorage
	site     interfaces.SiteStorage
	tracking interfaces.TrackingStorage
	monitor  interfaces.MonitorStorage
	run      interfaces.RunStorage
	logger   arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := newManager(db, logger)
	logger.Info().Str("path", config.Path).Msg("Badger storage manager initialized")

	return manager, nil
}

func newManager(db *BadgerDB, logger arbor.ILogger) *Manager {
	return &Manager{
		db:       db,
		job:      NewJobStorage(db, logger),
		site:     NewSiteStorage(db, logger),
		tracking: NewTrackingStorage(db, logger),
		monitor:  NewMonitorStorage(db, logger),
		run:      NewRunStorage(db, logger),
		logger:   logger,
	}
}

// JobStorage returns the Job storage interface
func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.job
}

// SiteStorage returns the Site storage interface
func (m *Manager) SiteStorage() interfaces.SiteStorage {
	return m.site
}

// TrackingStorage returns the tracking history storage interface
func (m *Manager) TrackingStorage() interfaces.TrackingStorage {
	return m.tracking
}

// MonitorStorage returns the monitor state storage interface
func (m *Manager) MonitorStorage() interfaces.MonitorStorage {
	return m.monitor
}

// RunStorage returns the scrape run storage interface
func (m *Manager) RunStorage() interfaces.RunStorage {
	return m.run
}

// Connection returns the database wrapper, used to share the raw badger handle with the queue
func (m *Manager) Connection() *BadgerDB {
	return m.db
}

// DB returns the underlying badgerhold store
func (m *Manager) DB() interface{} {
	if m.db != nil {
		return m.db.Store()
	}
	return nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// LoadSitesFromFiles loads site definitions from the configured directory
func (m *Manager) LoadSitesFromFiles(ctx context.Context, dirPath string) (int, error) {
	return LoadSitesFromFiles(ctx, m.site, dirPath, m.logger)
}
