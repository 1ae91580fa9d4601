package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"wix-store-migrator/internal/domain"
	"wix-store-migrator/internal/ports"

	"github.com/google/uuid"
)

// MemoryLedgerStore implements LedgerStore in process memory. It backs local dry
// runs and tests; contents are lost on restart.
type MemoryLedgerStore struct {
	mu      sync.Mutex
	entries map[domain.LedgerKey]*domain.LedgerEntry
	seq     int64
	order   map[domain.LedgerKey]int64
	now     func() time.Time
}

// NewMemoryLedgerStore creates an empty in-memory ledger
func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		entries: make(map[domain.LedgerKey]*domain.LedgerEntry),
		order:   make(map[domain.LedgerKey]int64),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

var _ ports.LedgerStore = (*MemoryLedgerStore)(nil)

func copyEntry(e *domain.LedgerEntry) *domain.LedgerEntry {
	c := *e
	return &c
}

// UpsertPending creates or fetches the entry for key
func (s *MemoryLedgerStore) UpsertPending(_ context.Context, key domain.LedgerKey, desc domain.Descriptor) (*domain.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		return copyEntry(e), nil
	}

	now := s.now()
	if !key.ExportOnly() {
		exportKey := key.WithDestination("")
		if e, ok := s.entries[exportKey]; ok && e.Status == domain.StatusPending {
			delete(s.entries, exportKey)
			seq := s.order[exportKey]
			delete(s.order, exportKey)
			e.Key = key
			e.UpdatedAt = now
			s.entries[key] = e
			s.order[key] = seq
			return copyEntry(e), nil
		}
	}

	s.seq++
	e := &domain.LedgerEntry{
		ID:         uuid.NewString(),
		Key:        key,
		NaturalKey: desc.NaturalKey,
		Label:      desc.Label,
		ParentKey:  desc.ParentKey,
		Status:     domain.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.entries[key] = e
	s.order[key] = s.seq
	return copyEntry(e), nil
}

// FindByKey retrieves an entry by its composite key
func (s *MemoryLedgerStore) FindByKey(_ context.Context, key domain.LedgerKey) (*domain.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		return copyEntry(e), nil
	}
	return nil, nil
}

// MarkResult transitions an entry, never downgrading a success row
func (s *MemoryLedgerStore) MarkResult(_ context.Context, key domain.LedgerKey, result domain.LedgerResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrLedgerEntryNotFound, key.SourceKey)
	}
	e.UpdatedAt = s.now()
	if e.Status == domain.StatusSuccess {
		if result.DestinationID != "" {
			e.DestinationID = result.DestinationID
		}
		return nil
	}
	e.Status = result.Status
	e.ErrorMessage = result.ErrorMessage
	if result.DestinationID != "" {
		e.DestinationID = result.DestinationID
	}
	if result.Status != domain.StatusPending {
		e.Attempts++
	}
	return nil
}

func (s *MemoryLedgerStore) sorted(f domain.LedgerFilter) []*domain.LedgerEntry {
	var keys []domain.LedgerKey
	for k, e := range s.entries {
		if f.Matches(e) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return s.order[keys[i]] < s.order[keys[j]] })
	out := make([]*domain.LedgerEntry, 0, len(keys))
	for _, k := range keys {
		out = append(out, copyEntry(s.entries[k]))
	}
	return out
}

// SuccessfulMappings lists source to destination pairs of successful rows
func (s *MemoryLedgerStore) SuccessfulMappings(_ context.Context, f domain.LedgerFilter) ([]domain.LedgerMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f.Status = domain.StatusSuccess
	var out []domain.LedgerMapping
	for _, e := range s.sorted(f) {
		out = append(out, domain.LedgerMapping{
			SourceKey:     e.Key.SourceKey,
			NaturalKey:    e.NaturalKey,
			DestinationID: e.DestinationID,
		})
	}
	return out, nil
}

// List returns entries in insertion order
func (s *MemoryLedgerStore) List(_ context.Context, f domain.LedgerFilter) ([]*domain.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.sorted(f)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
