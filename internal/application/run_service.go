package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"wix-store-migrator/internal/domain"
	"wix-store-migrator/internal/ports"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrInvalidRequest wraps request validation failures
var ErrInvalidRequest = errors.New("invalid request")

// Runner executes one migration run
type Runner interface {
	Run(ctx context.Context, runID string, req domain.RunRequest) (*domain.RunSummary, error)
}

// RunService starts runs in the background and keeps their records
type RunService struct {
	runner   Runner
	runs     ports.RunRepository
	lock     ports.RunLock
	progress ports.ProgressPublisher
	validate *validator.Validate
	lockTTL  time.Duration
	logger   zerolog.Logger

	// spawn starts the background part of a run; tests replace it to run inline
	spawn func(func())
	wg    sync.WaitGroup
}

// NewRunService creates a new run service
func NewRunService(
	runner Runner,
	runs ports.RunRepository,
	lock ports.RunLock,
	progress ports.ProgressPublisher,
	lockTTL time.Duration,
	logger zerolog.Logger,
) *RunService {
	return &RunService{
		runner:   runner,
		runs:     runs,
		lock:     lock,
		progress: progress,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		lockTTL:  lockTTL,
		logger:   logger,
		spawn:    func(f func()) { go f() },
	}
}

// StartRunInput is the operator request for a new run
type StartRunInput struct {
	OperatorID  string
	FromStoreID string
	ToStoreID   string
	Entities    []string
}

// Start validates the request, takes the store pair lock and starts the run.
// The returned record is a snapshot taken before the run begins.
func (s *RunService) Start(ctx context.Context, input StartRunInput) (*domain.RunRecord, error) {
	req := domain.RunRequest{
		OperatorID:  input.OperatorID,
		FromStoreID: input.FromStoreID,
		ToStoreID:   input.ToStoreID,
	}
	for _, raw := range input.Entities {
		entity, err := domain.ParseEntityType(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		req.Entities = append(req.Entities, entity)
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	req.Entities = domain.SortByMigrationOrder(req.Entities)

	release, err := s.lock.Acquire(ctx, lockKey(req), s.lockTTL)
	if err != nil {
		return nil, err
	}

	record := &domain.RunRecord{
		ID:          uuid.NewString(),
		OperatorID:  req.OperatorID,
		FromStoreID: req.FromStoreID,
		ToStoreID:   req.ToStoreID,
		Entities:    req.Entities,
		Status:      domain.RunStatusRunning,
		StartedAt:   time.Now().UTC(),
	}
	if err := s.runs.Create(ctx, record); err != nil {
		if relErr := release(ctx); relErr != nil {
			s.logger.Warn().Err(relErr).Str("runID", record.ID).Msg("Failed to release run lock")
		}
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	s.logger.Info().
		Str("runID", record.ID).
		Str("operatorID", req.OperatorID).
		Str("from", req.FromStoreID).
		Str("to", req.ToStoreID).
		Int("entities", len(req.Entities)).
		Msg("Run started")

	snapshot := *record
	runCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	s.spawn(func() {
		defer s.wg.Done()
		s.execute(runCtx, record, req, release)
	})
	return &snapshot, nil
}

func (s *RunService) execute(ctx context.Context, record *domain.RunRecord, req domain.RunRequest, release func(context.Context) error) {
	var (
		summary *domain.RunSummary
		runErr  error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				runErr = fmt.Errorf("unexpected error: %v", r)
			}
		}()
		summary, runErr = s.runner.Run(ctx, record.ID, req)
	}()

	record.Finish(summary, runErr, time.Now().UTC())
	if err := s.runs.Update(ctx, record); err != nil {
		s.logger.Error().Err(err).Str("runID", record.ID).Msg("Failed to save run result")
	}
	if err := release(ctx); err != nil {
		s.logger.Warn().Err(err).Str("runID", record.ID).Msg("Failed to release run lock")
	}

	event := domain.ProgressEvent{
		RunID:     record.ID,
		Level:     domain.LevelSuccess,
		Message:   record.Message,
		Timestamp: time.Now().UTC(),
		Done:      true,
	}
	switch record.Status {
	case domain.RunStatusFailed:
		event.Level = domain.LevelError
		event.Message = record.Error
	case domain.RunStatusCompletedWithErrors:
		event.Level = domain.LevelWarn
	}
	if s.progress != nil {
		s.progress.Publish(event)
	}

	s.logger.Info().
		Str("runID", record.ID).
		Str("status", string(record.Status)).
		Msg("Run finished")
}

// Wait blocks until every started run has finished
func (s *RunService) Wait() {
	s.wg.Wait()
}

// GetRun returns a run of the operator
func (s *RunService) GetRun(ctx context.Context, operatorID, runID string) (*domain.RunRecord, error) {
	run, err := s.runs.GetByID(ctx, operatorID, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return nil, domain.ErrRunNotFound
	}
	return run, nil
}

// ListRuns returns the latest runs of the operator
func (s *RunService) ListRuns(ctx context.Context, operatorID string, limit int) ([]*domain.RunRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	runs, err := s.runs.ListByOperator(ctx, operatorID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// Subscribe follows the progress of a run of the operator. The record is read
// after subscribing, so a run that is no longer running will not publish again.
func (s *RunService) Subscribe(ctx context.Context, operatorID, runID string) (*domain.RunRecord, <-chan domain.ProgressEvent, func(), error) {
	events, unsubscribe := s.progress.Subscribe(runID)
	run, err := s.GetRun(ctx, operatorID, runID)
	if err != nil {
		unsubscribe()
		return nil, nil, nil, err
	}
	return run, events, unsubscribe, nil
}

func lockKey(req domain.RunRequest) string {
	return fmt.Sprintf("%s:%s:%s", req.OperatorID, req.FromStoreID, req.ToStoreID)
}
