package ports

import (
	"context"

	"wix-store-migrator/internal/domain"
)

// StoreRepository defines the interface for store registry persistence
type StoreRepository interface {
	// Save creates or updates a store by (operator, instance id)
	Save(ctx context.Context, store *domain.Store) error

	// GetByInstanceID returns nil, nil when the operator has no such store
	GetByInstanceID(ctx context.Context, operatorID, instanceID string) (*domain.Store, error)

	// ListByOperator lists stores registered by an operator
	ListByOperator(ctx context.Context, operatorID string) ([]*domain.Store, error)
}

// RunRepository defines the interface for run record persistence
type RunRepository interface {
	Create(ctx context.Context, run *domain.RunRecord) error
	Update(ctx context.Context, run *domain.RunRecord) error
	// GetByID returns nil, nil when the run does not exist
	GetByID(ctx context.Context, operatorID, runID string) (*domain.RunRecord, error)
	ListByOperator(ctx context.Context, operatorID string, limit int) ([]*domain.RunRecord, error)
}
