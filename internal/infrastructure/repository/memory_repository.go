package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"wix-store-migrator/internal/domain"
	"wix-store-migrator/internal/ports"

	"github.com/google/uuid"
)

// MemoryStoreRepository implements StoreRepository in memory
type MemoryStoreRepository struct {
	mu     sync.RWMutex
	stores map[string]*domain.Store // operator|instance
}

// NewMemoryStoreRepository creates an empty store registry
func NewMemoryStoreRepository() *MemoryStoreRepository {
	return &MemoryStoreRepository{stores: make(map[string]*domain.Store)}
}

var _ ports.StoreRepository = (*MemoryStoreRepository)(nil)

// Save creates or updates a store keyed by operator and instance id
func (r *MemoryStoreRepository) Save(_ context.Context, store *domain.Store) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := store.OperatorID + "|" + store.InstanceID
	if existing, ok := r.stores[k]; ok {
		existing.DisplayName = store.DisplayName
		existing.UpdatedAt = time.Now()
		return nil
	}
	c := *store
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	r.stores[k] = &c
	return nil
}

// GetByInstanceID retrieves a store of an operator by instance id
func (r *MemoryStoreRepository) GetByInstanceID(_ context.Context, operatorID, instanceID string) (*domain.Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.stores[operatorID+"|"+instanceID]; ok {
		c := *s
		return &c, nil
	}
	return nil, nil
}

// ListByOperator retrieves all stores of an operator ordered by display name
func (r *MemoryStoreRepository) ListByOperator(_ context.Context, operatorID string) ([]*domain.Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Store
	for _, s := range r.stores {
		if s.OperatorID == operatorID {
			c := *s
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out, nil
}

// MemoryRunRepository implements RunRepository in memory
type MemoryRunRepository struct {
	mu   sync.RWMutex
	runs map[string]*domain.RunRecord
}

// NewMemoryRunRepository creates an empty run repository
func NewMemoryRunRepository() *MemoryRunRepository {
	return &MemoryRunRepository{runs: make(map[string]*domain.RunRecord)}
}

var _ ports.RunRepository = (*MemoryRunRepository)(nil)

// Create inserts a run record
func (r *MemoryRunRepository) Create(_ context.Context, run *domain.RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *run
	r.runs[run.ID] = &c
	return nil
}

// Update replaces a run record
func (r *MemoryRunRepository) Update(_ context.Context, run *domain.RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[run.ID]; !ok {
		return domain.ErrRunNotFound
	}
	c := *run
	r.runs[run.ID] = &c
	return nil
}

// GetByID retrieves a run of an operator
func (r *MemoryRunRepository) GetByID(_ context.Context, operatorID, runID string) (*domain.RunRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[runID]
	if !ok || run.OperatorID != operatorID {
		return nil, nil
	}
	c := *run
	return &c, nil
}

// ListByOperator returns the most recent runs of an operator
func (r *MemoryRunRepository) ListByOperator(_ context.Context, operatorID string, limit int) ([]*domain.RunRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.RunRecord
	for _, run := range r.runs {
		if run.OperatorID == operatorID {
			c := *run
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
