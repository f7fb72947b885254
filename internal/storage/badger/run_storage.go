package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/interfaces"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
)

// RunStorage implements the RunStorage interface for Badger
type RunStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRunStorage creates a new RunStorage instance
func NewRunStorage(db *BadgerDB, logger arbor.ILogger) interfaces.RunStorage {
	return &RunStorage{
		db:     db,
		logger: logger,
	}
}

func (s *RunStorage) SaveRun(ctx context.Context, run *models.ScrapeRun) error {
	if run.ID == "" {
		return models.NewValidationError("run id is required")
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	run.UpdatedAt = time.Now()

	if err := s.db.Store().Upsert(run.ID, run); err != nil {
		return models.NewStorageError("save run", err)
	}
	return nil
}

func (s *RunStorage) GetRun(ctx context.Context, id string) (*models.ScrapeRun, error) {
	var run models.ScrapeRun
	if err := s.db.Store().Get(id, &run); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("run %s: %w", id, models.ErrNotFound)
		}
		return nil, models.NewStorageError("get run", err)
	}
	return &run, nil
}

// ListRuns returns the most recent runs first
func (s *RunStorage) ListRuns(ctx context.Context, limit int) ([]*models.ScrapeRun, error) {
	query := badgerhold.Where("ID").Ne("").SortBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	return s.find(query)
}

func (s *RunStorage) ListRunsByState(ctx context.Context, states ...models.RunState) ([]*models.ScrapeRun, error) {
	values := make([]interface{}, len(states))
	for i, state := range states {
		values[i] = state
	}
	return s.find(badgerhold.Where("State").In(values...).Index("State"))
}

func (s *RunStorage) find(query *badgerhold.Query) ([]*models.ScrapeRun, error) {
	var runs []models.ScrapeRun
	if err := s.db.Store().Find(&runs, query); err != nil {
		return nil, models.NewStorageError("list runs", err)
	}

	result := make([]*models.ScrapeRun, len(runs))
	for i := range runs {
		result[i] = &runs[i]
	}
	return result, nil
}
