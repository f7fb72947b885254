package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/interfaces"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
)

// SiteStorage implements the SiteStorage interface for Badger
type SiteStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSiteStorage creates a new SiteStorage instance
func NewSiteStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SiteStorage {
	return &SiteStorage{
		db:     db,
		logger: logger,
	}
}

func (s *SiteStorage) SaveSite(ctx context.Context, site *models.Site) error {
	if site.ID == "" {
		return models.NewValidationError("site id is required")
	}

	now := time.Now()
	if site.CreatedAt.IsZero() {
		site.CreatedAt = now
	}
	if site.Status == "" {
		site.Status = models.SiteStatusActive
	}
	site.UpdatedAt = now

	if err := s.db.Store().Upsert(site.ID, site); err != nil {
		return models.NewStorageError("save site", err)
	}
	return nil
}

func (s *SiteStorage) GetSite(ctx context.Context, id string) (*models.Site, error) {
	var site models.Site
	if err := s.db.Store().Get(id, &site); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("site %s: %w", id, models.ErrNotFound)
		}
		return nil, models.NewStorageError("get site", err)
	}
	return &site, nil
}

// ListSites returns sites ordered by name; an empty status returns all
func (s *SiteStorage) ListSites(ctx context.Context, status models.SiteStatus) ([]*models.Site, error) {
	query := badgerhold.Where("ID").Ne("")
	if status != "" {
		query = badgerhold.Where("Status").Eq(status).Index("Status")
	}

	var sites []models.Site
	if err := s.db.Store().Find(&sites, query.SortBy("Name")); err != nil {
		return nil, models.NewStorageError("list sites", err)
	}

	result := make([]*models.Site, len(sites))
	for i := range sites {
		result[i] = &sites[i]
	}
	return result, nil
}

// DeleteSite removes a site unless open jobs still reference it. The check and the delete share one transaction.
func (s *SiteStorage) DeleteSite(ctx context.Context, id string) error {
	var openJobs uint64

	err := s.db.update(func(txn *badger.Txn) error {
		var site models.Site
		if err := s.db.Store().TxGet(txn, id, &site); err != nil {
			return err
		}

		count, err := s.db.Store().TxCount(txn, &models.Job{}, openJobsForSite(id))
		if err != nil {
			return err
		}
		openJobs = count
		if count > 0 {
			return nil
		}

		return s.db.Store().TxDelete(txn, id, &models.Site{})
	})

	switch {
	case errors.Is(err, badgerhold.ErrNotFound):
		return fmt.Errorf("site %s: %w", id, models.ErrNotFound)
	case err != nil:
		return models.NewStorageError("delete site", err)
	case openJobs > 0:
		return models.NewValidationError("site %s is referenced by %d open jobs", id, openJobs)
	}

	s.logger.Info().Str("site_id", id).Msg("Site deleted")
	return nil
}
