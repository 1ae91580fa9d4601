package application

import (
	"context"
	"sync"
	"testing"

	"wix-store-migrator/internal/application/pipelines"
	"wix-store-migrator/internal/domain"
	"wix-store-migrator/internal/infrastructure/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePipeline struct {
	entity domain.EntityType
	rec    *callRecorder
}

func (p *fakePipeline) EntityType() domain.EntityType { return p.entity }

func (p *fakePipeline) Run(_ context.Context, job *pipelines.Job) domain.EntityResult {
	p.rec.add(p.entity, job)
	res := domain.NewEntityResult(p.entity)
	res.Imported = 1
	return res
}

type callRecorder struct {
	mu       sync.Mutex
	entities []domain.EntityType
	jobs     []*pipelines.Job
}

func (r *callRecorder) add(entity domain.EntityType, job *pipelines.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities = append(r.entities, entity)
	r.jobs = append(r.jobs, job)
}

type fakeTokens map[string]string

func (f fakeTokens) GetAccessToken(_ context.Context, instanceID string) (string, error) {
	if token, ok := f[instanceID]; ok {
		return token, nil
	}
	return "", domain.ErrTokenUnavailable
}

func newFakeRegistry(rec *callRecorder) map[domain.EntityType]pipelines.Pipeline {
	registry := make(map[domain.EntityType]pipelines.Pipeline)
	for _, entity := range domain.MigrationOrder() {
		registry[entity] = &fakePipeline{entity: entity, rec: rec}
	}
	return registry
}

func newTestOrchestrator(t *testing.T, tokens fakeTokens) (*Orchestrator, *callRecorder) {
	t.Helper()
	stores := repository.NewMemoryStoreRepository()
	for _, id := range []string{"store-a", "store-b"} {
		store, err := domain.NewStore("op-1", id, "")
		require.NoError(t, err)
		require.NoError(t, stores.Save(context.Background(), store))
	}

	rec := &callRecorder{}
	o, err := NewOrchestrator(newFakeRegistry(rec), stores, tokens, nil, nil, zerolog.Nop())
	require.NoError(t, err)
	return o, rec
}

func TestNewOrchestratorRequiresEveryPipeline(t *testing.T) {
	registry := newFakeRegistry(&callRecorder{})
	delete(registry, domain.EntityMedia)

	_, err := NewOrchestrator(registry, repository.NewMemoryStoreRepository(), fakeTokens{}, nil, nil, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "media")
}

func TestOrchestratorRunsInDependencyOrder(t *testing.T) {
	o, rec := newTestOrchestrator(t, fakeTokens{"store-a": "tok-a", "store-b": "tok-b"})

	summary, err := o.Run(context.Background(), "run-1", domain.RunRequest{
		OperatorID:  "op-1",
		FromStoreID: "store-a",
		ToStoreID:   "store-b",
		Entities:    []domain.EntityType{domain.EntityLoyalty, domain.EntityCollections, domain.EntityProducts, domain.EntityLoyalty},
	})
	require.NoError(t, err)

	assert.Equal(t, []domain.EntityType{domain.EntityCollections, domain.EntityProducts, domain.EntityLoyalty}, rec.entities)
	require.Len(t, summary.Results, 3)
	assert.Equal(t, domain.EntityLoyalty, summary.Results[2].Entity)
	assert.False(t, summary.HasErrors())

	first := rec.jobs[0]
	assert.Equal(t, "run-1", first.RunID)
	assert.Equal(t, "tok-a", first.SourceToken)
	assert.Equal(t, "tok-b", first.DestinationToken)
	for _, job := range rec.jobs[1:] {
		assert.Same(t, first.Remapper, job.Remapper, "one remapper is shared by the whole run")
	}
}

func TestOrchestratorExportOnlyRun(t *testing.T) {
	o, rec := newTestOrchestrator(t, fakeTokens{"store-a": "tok-a"})

	summary, err := o.Run(context.Background(), "run-1", domain.RunRequest{
		OperatorID:  "op-1",
		FromStoreID: "store-a",
		Entities:    []domain.EntityType{domain.EntityMedia, domain.EntityProducts},
	})
	require.NoError(t, err)

	require.Equal(t, []domain.EntityType{domain.EntityMedia}, rec.entities)
	assert.Empty(t, rec.jobs[0].DestinationToken)
	assert.True(t, rec.jobs[0].ExportOnly())

	require.Len(t, summary.Results, 2)
	assert.Equal(t, []string{"Products: destination store is required"}, summary.Results[0].Errors)
	assert.Equal(t, 1, summary.Results[1].Imported)
}

func TestOrchestratorMissingTokenFailsEntityNotRun(t *testing.T) {
	o, rec := newTestOrchestrator(t, fakeTokens{"store-a": "tok-a"})

	summary, err := o.Run(context.Background(), "run-1", domain.RunRequest{
		OperatorID:  "op-1",
		FromStoreID: "store-a",
		ToStoreID:   "store-b",
		Entities:    []domain.EntityType{domain.EntityCollections, domain.EntityContacts},
	})
	require.NoError(t, err)

	assert.Empty(t, rec.entities)
	require.Len(t, summary.Results, 2)
	for _, res := range summary.Results {
		require.Len(t, res.Errors, 1)
		assert.Contains(t, res.Errors[0], "failed to authorise destination store")
	}
	assert.Contains(t, summary.Message(), "Completed with some errors")
}

func TestOrchestratorRejectsInvalidRuns(t *testing.T) {
	o, rec := newTestOrchestrator(t, fakeTokens{"store-a": "tok-a"})
	entities := []domain.EntityType{domain.EntityProducts}

	_, err := o.Run(context.Background(), "run-1", domain.RunRequest{
		OperatorID: "op-1", FromStoreID: "store-a", ToStoreID: "store-a", Entities: entities,
	})
	assert.ErrorIs(t, err, domain.ErrSameStore)

	_, err = o.Run(context.Background(), "run-1", domain.RunRequest{
		OperatorID: "op-1", FromStoreID: "store-a", ToStoreID: "store-x", Entities: entities,
	})
	assert.ErrorIs(t, err, domain.ErrStoreNotFound)

	_, err = o.Run(context.Background(), "run-1", domain.RunRequest{
		OperatorID: "op-2", FromStoreID: "store-a", ToStoreID: "store-b", Entities: entities,
	})
	assert.ErrorIs(t, err, domain.ErrStoreNotFound)

	assert.Empty(t, rec.entities)
}

func TestOrchestratorStopsBetweenEntityTypesWhenCancelled(t *testing.T) {
	o, rec := newTestOrchestrator(t, fakeTokens{"store-a": "tok-a", "store-b": "tok-b"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := o.Run(ctx, "run-1", domain.RunRequest{
		OperatorID: "op-1", FromStoreID: "store-a", ToStoreID: "store-b",
		Entities: []domain.EntityType{domain.EntityProducts},
	})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.Empty(t, summary.Results)
	assert.Empty(t, rec.entities)
}
