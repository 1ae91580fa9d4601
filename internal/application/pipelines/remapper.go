package pipelines

import (
	"context"
	"fmt"
	"sync"

	"wix-store-migrator/internal/domain"
	"wix-store-migrator/internal/ports"
)

// Remapper translates source keys into destination ids for one run. Entity types
// record their mappings as they complete and later entity types consume them.
type Remapper struct {
	mu       sync.RWMutex
	mappings map[domain.EntityType]map[string]string
}

// NewRemapper creates an empty remap table
func NewRemapper() *Remapper {
	return &Remapper{mappings: make(map[domain.EntityType]map[string]string)}
}

// Record maps sourceKey of entity to destID. Empty values are ignored.
func (r *Remapper) Record(entity domain.EntityType, sourceKey, destID string) {
	if sourceKey == "" || destID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.mappings[entity]
	if !ok {
		m = make(map[string]string)
		r.mappings[entity] = m
	}
	m[sourceKey] = destID
}

// Translate returns the destination id recorded for sourceKey
func (r *Remapper) Translate(entity domain.EntityType, sourceKey string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.mappings[entity][sourceKey]
	return id, ok
}

// Seed records every pair of m without overwriting mappings made during the run
func (r *Remapper) Seed(entity domain.EntityType, m map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dst, ok := r.mappings[entity]
	if !ok {
		dst = make(map[string]string, len(m))
		r.mappings[entity] = dst
	}
	for k, v := range m {
		if _, exists := dst[k]; !exists && k != "" && v != "" {
			dst[k] = v
		}
	}
}

// seedFromLedger loads prior successful mappings of entity for the job's store
// pair, keyed by both source key and natural key
func seedFromLedger(ctx context.Context, ledger ports.LedgerStore, job *Job, entity domain.EntityType) error {
	mappings, err := ledger.SuccessfulMappings(ctx, domain.LedgerFilter{
		Entity:      entity,
		OperatorID:  job.OperatorID,
		FromStoreID: job.FromStoreID,
		ToStoreID:   job.ToStoreID,
	})
	if err != nil {
		return fmt.Errorf("failed to load %s mappings: %w", entity, err)
	}
	bySource, byNatural := domain.MappingIndex(mappings)
	job.Remapper.Seed(entity, bySource)
	job.Remapper.Seed(entity, byNatural)
	return nil
}
