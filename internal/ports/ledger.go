package ports

import (
	"context"

	"wix-store-migrator/internal/domain"
)

// LedgerStore defines the interface for migration ledger persistence
type LedgerStore interface {
	// UpsertPending creates or fetches the entry for key. A new entry starts as pending.
	// Export-only rows for the same item are claimed by the first import that asks for them.
	UpsertPending(ctx context.Context, key domain.LedgerKey, desc domain.Descriptor) (*domain.LedgerEntry, error)

	// FindByKey returns nil, nil when no entry exists
	FindByKey(ctx context.Context, key domain.LedgerKey) (*domain.LedgerEntry, error)

	// MarkResult transitions an entry. A success entry only accepts a destination id correction.
	MarkResult(ctx context.Context, key domain.LedgerKey, result domain.LedgerResult) error

	// SuccessfulMappings lists source key to destination id pairs of successful rows
	SuccessfulMappings(ctx context.Context, filter domain.LedgerFilter) ([]domain.LedgerMapping, error)

	// List returns entries ordered by creation time
	List(ctx context.Context, filter domain.LedgerFilter) ([]*domain.LedgerEntry, error)
}
