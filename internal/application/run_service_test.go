package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"wix-store-migrator/internal/domain"
	"wix-store-migrator/internal/infrastructure/cache"
	"wix-store-migrator/internal/infrastructure/pubsub"
	"wix-store-migrator/internal/infrastructure/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runnerFunc func(ctx context.Context, runID string, req domain.RunRequest) (*domain.RunSummary, error)

func (f runnerFunc) Run(ctx context.Context, runID string, req domain.RunRequest) (*domain.RunSummary, error) {
	return f(ctx, runID, req)
}

func okRunner(context.Context, string, domain.RunRequest) (*domain.RunSummary, error) {
	return &domain.RunSummary{Results: []domain.EntityResult{{Entity: domain.EntityProducts, Imported: 3}}}, nil
}

type runServiceHarness struct {
	service  *RunService
	runs     *repository.MemoryRunRepository
	progress *pubsub.ProgressPubSub
}

func newRunServiceHarness(runner Runner) *runServiceHarness {
	runs := repository.NewMemoryRunRepository()
	progress := pubsub.NewProgressPubSub(zerolog.Nop())
	service := NewRunService(runner, runs, cache.NewMemoryRunLock(), progress, time.Hour, zerolog.Nop())
	return &runServiceHarness{service: service, runs: runs, progress: progress}
}

func validInput() StartRunInput {
	return StartRunInput{
		OperatorID:  "op-1",
		FromStoreID: "store-a",
		ToStoreID:   "store-b",
		Entities:    []string{"loyalty", "Products"},
	}
}

func TestRunServiceStartAndFinish(t *testing.T) {
	h := newRunServiceHarness(runnerFunc(okRunner))
	events, unsubscribe := h.progress.Subscribe("")
	defer unsubscribe()

	record, err := h.service.Start(context.Background(), validInput())
	require.NoError(t, err)
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, domain.RunStatusRunning, record.Status)
	assert.Equal(t, []domain.EntityType{domain.EntityProducts, domain.EntityLoyalty}, record.Entities)

	h.service.Wait()

	got, err := h.service.GetRun(context.Background(), "op-1", record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, got.Status)
	assert.Contains(t, got.Message, "Products: 3 imported")
	require.NotNil(t, got.FinishedAt)

	select {
	case event := <-events:
		assert.True(t, event.Done)
		assert.Equal(t, record.ID, event.RunID)
		assert.Equal(t, domain.LevelSuccess, event.Level)
	case <-time.After(time.Second):
		t.Fatal("no final progress event")
	}
}

func TestRunServiceRejectsOverlappingRuns(t *testing.T) {
	unblock := make(chan struct{})
	h := newRunServiceHarness(runnerFunc(func(ctx context.Context, runID string, req domain.RunRequest) (*domain.RunSummary, error) {
		<-unblock
		return okRunner(ctx, runID, req)
	}))

	_, err := h.service.Start(context.Background(), validInput())
	require.NoError(t, err)

	_, err = h.service.Start(context.Background(), validInput())
	assert.ErrorIs(t, err, domain.ErrRunInProgress)

	other := validInput()
	other.ToStoreID = "store-c"
	_, err = h.service.Start(context.Background(), other)
	assert.NoError(t, err, "another store pair is not blocked")

	close(unblock)
	h.service.Wait()

	_, err = h.service.Start(context.Background(), validInput())
	assert.NoError(t, err, "the lock is released when the run ends")
	h.service.Wait()
}

func TestRunServiceValidation(t *testing.T) {
	h := newRunServiceHarness(runnerFunc(okRunner))

	tests := []struct {
		name   string
		mutate func(*StartRunInput)
		is     error
	}{
		{"no entities", func(in *StartRunInput) { in.Entities = nil }, ErrInvalidRequest},
		{"unknown entity", func(in *StartRunInput) { in.Entities = []string{"reviews"} }, domain.ErrUnknownEntityType},
		{"no source", func(in *StartRunInput) { in.FromStoreID = "" }, ErrInvalidRequest},
		{"no operator", func(in *StartRunInput) { in.OperatorID = "" }, ErrInvalidRequest},
		{"same store", func(in *StartRunInput) { in.ToStoreID = in.FromStoreID }, domain.ErrSameStore},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			_, err := h.service.Start(context.Background(), in)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.ErrorIs(t, err, tt.is)
		})
	}

	runs, err := h.service.ListRuns(context.Background(), "op-1", 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRunServiceRecordsFailedRun(t *testing.T) {
	h := newRunServiceHarness(runnerFunc(func(context.Context, string, domain.RunRequest) (*domain.RunSummary, error) {
		return nil, errors.New("store not found: store-a")
	}))
	h.service.spawn = func(f func()) { f() }

	record, err := h.service.Start(context.Background(), validInput())
	require.NoError(t, err)

	got, err := h.service.GetRun(context.Background(), "op-1", record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, got.Status)
	assert.Equal(t, "store not found: store-a", got.Error)

	_, err = h.service.GetRun(context.Background(), "op-2", record.ID)
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}

func TestRunServiceRecoversRunnerPanic(t *testing.T) {
	h := newRunServiceHarness(runnerFunc(func(context.Context, string, domain.RunRequest) (*domain.RunSummary, error) {
		panic("boom")
	}))
	h.service.spawn = func(f func()) { f() }

	record, err := h.service.Start(context.Background(), validInput())
	require.NoError(t, err)

	got, err := h.service.GetRun(context.Background(), "op-1", record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, got.Status)
	assert.Equal(t, "unexpected error: boom", got.Error)

	_, err = h.service.Start(context.Background(), validInput())
	assert.NoError(t, err)
}

func TestRunServiceSubscribeReturnsCurrentRecord(t *testing.T) {
	h := newRunServiceHarness(runnerFunc(okRunner))
	h.service.spawn = func(f func()) { f() }

	record, err := h.service.Start(context.Background(), validInput())
	require.NoError(t, err)

	got, events, unsubscribe, err := h.service.Subscribe(context.Background(), "op-1", record.ID)
	require.NoError(t, err)
	defer unsubscribe()
	assert.NotNil(t, events)
	assert.Equal(t, domain.RunStatusCompleted, got.Status)

	_, _, _, err = h.service.Subscribe(context.Background(), "op-1", "missing")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}
