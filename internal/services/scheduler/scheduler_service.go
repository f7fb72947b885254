// Package scheduler runs the background maintenance tasks on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/common"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
)

// Handler is the body of a scheduled task
type Handler func(ctx context.Context) error

// TaskStatus is the read-only view of a registered task
type TaskStatus struct {
	Name        string     `json:"name"`
	Schedule    string     `json:"schedule"`
	Description string     `json:"description"`
	Enabled     bool       `json:"enabled"`
	IsRunning   bool       `json:"is_running"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	NextRun     *time.Time `json:"next_run,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	RunCount    int        `json:"run_count"`
}

// taskEntry represents a registered task with metadata
type taskEntry struct {
	name        string
	schedule    string
	description string
	handler     Handler
	timeout     time.Duration
	enabled     bool
	cronID      cron.EntryID
	lastRun     *time.Time
	isRunning   bool
	lastError   string
	runCount    int
}

// Service owns the cron runner and the registered tasks
type Service struct {
	cron   *cron.Cron
	logger arbor.ILogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex // protects tasks and running
	tasks   map[string]*taskEntry
	running bool
}

// NewService creates a stopped scheduler
func NewService(logger arbor.ILogger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cron:   cron.New(),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[string]*taskEntry),
	}
}

// RegisterTask adds a task. timeout bounds a single execution; zero means none.
func (s *Service) RegisterTask(name, schedule, description string, timeout time.Duration, handler Handler) error {
	if err := common.ValidateSchedule(schedule); err != nil {
		return fmt.Errorf("invalid schedule for %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[name]; exists {
		return fmt.Errorf("task %s already registered", name)
	}

	cronID, err := s.cron.AddFunc(schedule, func() { s.execute(name) })
	if err != nil {
		return fmt.Errorf("failed to add task to cron: %w", err)
	}

	s.tasks[name] = &taskEntry{
		name:        name,
		schedule:    schedule,
		description: description,
		handler:     handler,
		timeout:     timeout,
		enabled:     true,
		cronID:      cronID,
	}

	s.logger.Info().
		Str("task", name).
		Str("schedule", schedule).
		Msg("Task registered")
	return nil
}

// Start begins firing registered tasks
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	s.cron.Start()
	s.running = true

	s.logger.Info().Int("tasks", len(s.tasks)).Msg("Scheduler started")
	return nil
}

// Stop halts the cron runner, cancels running tasks and waits for them to return
func (s *Service) Stop() {
	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()

	if wasRunning {
		<-s.cron.Stop().Done()
	}
	s.cancel()
	s.wg.Wait()

	if wasRunning {
		s.logger.Info().Msg("Scheduler stopped")
	}
}

// IsRunning reports whether the cron runner is active
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// EnableTask re-adds a disabled task to the cron runner
func (s *Service) EnableTask(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.tasks[name]
	if !exists {
		return fmt.Errorf("task %s: %w", name, models.ErrNotFound)
	}
	if entry.enabled {
		return nil
	}

	cronID, err := s.cron.AddFunc(entry.schedule, func() { s.execute(name) })
	if err != nil {
		return fmt.Errorf("failed to add task to cron: %w", err)
	}
	entry.cronID = cronID
	entry.enabled = true

	s.logger.Info().Str("task", name).Msg("Task enabled")
	return nil
}

// DisableTask removes a task from the cron runner; a running execution finishes
func (s *Service) DisableTask(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.tasks[name]
	if !exists {
		return fmt.Errorf("task %s: %w", name, models.ErrNotFound)
	}
	if !entry.enabled {
		return nil
	}
	s.cron.Remove(entry.cronID)
	entry.enabled = false

	s.logger.Info().Str("task", name).Msg("Task disabled")
	return nil
}

// TriggerTask runs a task now in the background
func (s *Service) TriggerTask(name string) error {
	s.mu.Lock()
	entry, exists := s.tasks[name]
	if !exists {
		s.mu.Unlock()
		return fmt.Errorf("task %s: %w", name, models.ErrNotFound)
	}
	if entry.isRunning {
		s.mu.Unlock()
		return models.NewValidationError("task %s is already running", name)
	}
	s.mu.Unlock()

	s.logger.Info().Str("task", name).Msg("Manually triggering task")
	s.wg.Add(1)
	common.SafeGo(s.logger, "scheduler-trigger-"+name, func() {
		defer s.wg.Done()
		s.execute(name)
	})
	return nil
}

// TaskStatus returns the status of one task
func (s *Service) TaskStatus(name string) (*TaskStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.tasks[name]
	if !exists {
		return nil, fmt.Errorf("task %s: %w", name, models.ErrNotFound)
	}
	return s.statusLocked(entry), nil
}

// TaskStatuses returns every task ordered by name
func (s *Service) TaskStatuses() []*TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*TaskStatus, 0, len(s.tasks))
	for _, entry := range s.tasks {
		out = append(out, s.statusLocked(entry))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Service) statusLocked(entry *taskEntry) *TaskStatus {
	var nextRun *time.Time
	if entry.enabled && s.running {
		if next := s.cron.Entry(entry.cronID).Next; !next.IsZero() {
			nextRun = &next
		}
	}
	return &TaskStatus{
		Name:        entry.name,
		Schedule:    entry.schedule,
		Description: entry.description,
		Enabled:     entry.enabled,
		IsRunning:   entry.isRunning,
		LastRun:     entry.lastRun,
		NextRun:     nextRun,
		LastError:   entry.lastError,
		RunCount:    entry.runCount,
	}
}

// execute runs one task with panic recovery. An execution that finds the task
// already running is skipped.
func (s *Service) execute(name string) {
	s.mu.Lock()
	entry, exists := s.tasks[name]
	if !exists {
		s.mu.Unlock()
		return
	}
	if entry.isRunning {
		s.mu.Unlock()
		s.logger.Debug().Str("task", name).Msg("Task still running, skipping tick")
		return
	}
	entry.isRunning = true
	handler := entry.handler
	timeout := entry.timeout
	s.mu.Unlock()

	ctx := s.ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	started := time.Now()
	err := s.runHandler(ctx, name, handler)

	finished := time.Now()
	s.mu.Lock()
	entry.isRunning = false
	entry.lastRun = &finished
	entry.runCount++
	if err != nil {
		entry.lastError = err.Error()
	} else {
		entry.lastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().
			Str("task", name).
			Err(err).
			Dur("duration", time.Since(started)).
			Msg("Task execution failed")
		return
	}
	s.logger.Debug().
		Str("task", name).
		Dur("duration", time.Since(started)).
		Msg("Task execution completed")
}

func (s *Service) runHandler(ctx context.Context, name string, handler Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("task", name).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Panic recovered in task execution")
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return handler(ctx)
}
