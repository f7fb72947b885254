package badger

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/common"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/interfaces"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
)

// TrackingStorage implements the append-only TrackingStorage for Badger
type TrackingStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewTrackingStorage creates a new TrackingStorage instance
func NewTrackingStorage(db *BadgerDB, logger arbor.ILogger) interfaces.TrackingStorage {
	return &TrackingStorage{
		db:     db,
		logger: logger,
	}
}

// AppendTrackingHistory inserts a new entry. Entries are never updated.
func (s *TrackingStorage) AppendTrackingHistory(ctx context.Context, entry *models.TrackingHistoryEntry) error {
	if entry.JobID == "" {
		return models.NewValidationError("tracking entry requires a job id")
	}
	if entry.ID == "" {
		entry.ID = common.NewID("trk")
	}
	if entry.TrackingDate.IsZero() {
		entry.TrackingDate = time.Now()
	}

	if err := s.db.Store().Insert(entry.ID, entry); err != nil {
		return models.NewStorageError("append tracking history", err)
	}
	return nil
}

// GetTrackingHistory returns a job's entries, newest first
func (s *TrackingStorage) GetTrackingHistory(ctx context.Context, jobID string, limit int) ([]*models.TrackingHistoryEntry, error) {
	query := badgerhold.Where("JobID").Eq(jobID).Index("JobID").SortBy("TrackingDate").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var entries []models.TrackingHistoryEntry
	if err := s.db.Store().Find(&entries, query); err != nil {
		return nil, models.NewStorageError("get tracking history", err)
	}

	result := make([]*models.TrackingHistoryEntry, len(entries))
	for i := range entries {
		result[i] = &entries[i]
	}
	return result, nil
}
