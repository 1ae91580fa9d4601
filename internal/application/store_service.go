package application

import (
	"context"
	"fmt"

	"wix-store-migrator/internal/domain"
	"wix-store-migrator/internal/ports"

	"github.com/rs/zerolog"
)

// StoreService handles the operator's store registry
type StoreService struct {
	stores ports.StoreRepository
	logger zerolog.Logger
}

// NewStoreService creates a new store service
func NewStoreService(
	stores ports.StoreRepository,
	logger zerolog.Logger,
) *StoreService {
	return &StoreService{
		stores: stores,
		logger: logger,
	}
}

// RegisterStoreInput contains the data needed to register a store instance
type RegisterStoreInput struct {
	OperatorID  string
	InstanceID  string
	DisplayName string
}

// Register creates or renames a store instance of the operator
func (s *StoreService) Register(ctx context.Context, input RegisterStoreInput) (*domain.Store, error) {
	store, err := domain.NewStore(input.OperatorID, input.InstanceID, input.DisplayName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	if err := s.stores.Save(ctx, store); err != nil {
		return nil, fmt.Errorf("failed to save store: %w", err)
	}

	s.logger.Info().
		Str("operatorID", store.OperatorID).
		Str("instanceID", store.InstanceID).
		Msg("Store registered")

	return store, nil
}

// List returns the stores registered by the operator
func (s *StoreService) List(ctx context.Context, operatorID string) ([]*domain.Store, error) {
	stores, err := s.stores.ListByOperator(ctx, operatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stores: %w", err)
	}
	return stores, nil
}
