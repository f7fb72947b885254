package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/interfaces"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
)

// MonitorStorage implements the MonitorStorage interface for Badger
type MonitorStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewMonitorStorage creates a new MonitorStorage instance
func NewMonitorStorage(db *BadgerDB, logger arbor.ILogger) interfaces.MonitorStorage {
	return &MonitorStorage{
		db:     db,
		logger: logger,
	}
}

func (s *MonitorStorage) SaveMonitor(ctx context.Context, record *models.JobMonitorRecord) error {
	if record.JobID == "" {
		return models.NewValidationError("monitor requires a job id")
	}
	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	if err := s.db.Store().Upsert(record.JobID, record); err != nil {
		return models.NewStorageError("save monitor", err)
	}
	return nil
}

func (s *MonitorStorage) GetMonitor(ctx context.Context, jobID string) (*models.JobMonitorRecord, error) {
	var record models.JobMonitorRecord
	if err := s.db.Store().Get(jobID, &record); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("monitor %s: %w", jobID, models.ErrNotFound)
		}
		return nil, models.NewStorageError("get monitor", err)
	}
	return &record, nil
}

func (s *MonitorStorage) ListMonitors(ctx context.Context, state models.MonitorState) ([]*models.JobMonitorRecord, error) {
	query := badgerhold.Where("JobID").Ne("")
	if state != "" {
		query = badgerhold.Where("State").Eq(state).Index("State")
	}

	var records []models.JobMonitorRecord
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, models.NewStorageError("list monitors", err)
	}

	result := make([]*models.JobMonitorRecord, len(records))
	for i := range records {
		result[i] = &records[i]
	}
	return result, nil
}

func scheduledMonitors() *badgerhold.Query {
	return badgerhold.Where("State").In(models.MonitorMonitoring, models.MonitorJobActive).Index("State")
}

// ClaimDueMonitors leases due monitors by pushing NextCheckAt to now+lease in the same transaction
// that selected them; a concurrent claimer conflicts and retries against the moved wake times
func (s *MonitorStorage) ClaimDueMonitors(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*models.JobMonitorRecord, error) {
	var claimed []*models.JobMonitorRecord

	err := s.db.update(func(txn *badger.Txn) error {
		claimed = nil

		var records []models.JobMonitorRecord
		if err := s.db.Store().TxFind(txn, &records, scheduledMonitors()); err != nil {
			return err
		}

		due := make([]*models.JobMonitorRecord, 0, len(records))
		for i := range records {
			if records[i].IsDue(now) {
				due = append(due, &records[i])
			}
		}
		sort.SliceStable(due, func(i, j int) bool {
			return due[i].NextCheckAt.Before(*due[j].NextCheckAt)
		})
		if limit > 0 && len(due) > limit {
			due = due[:limit]
		}

		leaseUntil := now.Add(lease)
		for _, record := range due {
			record.NextCheckAt = &leaseUntil
			record.UpdatedAt = now
			if err := s.db.Store().TxUpsert(txn, record.JobID, record); err != nil {
				return err
			}
		}
		claimed = due
		return nil
	})
	if err != nil {
		return nil, models.NewStorageError("claim due monitors", err)
	}
	return claimed, nil
}

// NextWake returns the earliest scheduled check, or nil when nothing is scheduled
func (s *MonitorStorage) NextWake(ctx context.Context) (*time.Time, error) {
	var records []models.JobMonitorRecord
	if err := s.db.Store().Find(&records, scheduledMonitors()); err != nil {
		return nil, models.NewStorageError("next monitor wake", err)
	}

	var next *time.Time
	for i := range records {
		at := records[i].NextCheckAt
		if at != nil && (next == nil || at.Before(*next)) {
			t := *at
			next = &t
		}
	}
	return next, nil
}
