package application

import (
	"context"
	"fmt"

	"wix-store-migrator/internal/domain"
	"wix-store-migrator/internal/ports"

	"github.com/rs/zerolog"
)

// LedgerService exposes the migration ledger to operators
type LedgerService struct {
	ledger ports.LedgerStore
	logger zerolog.Logger
}

// NewLedgerService creates a new ledger service
func NewLedgerService(
	ledger ports.LedgerStore,
	logger zerolog.Logger,
) *LedgerService {
	return &LedgerService{
		ledger: ledger,
		logger: logger,
	}
}

// LedgerQuery selects the rows of one operator
type LedgerQuery struct {
	OperatorID  string
	Entities    []domain.EntityType // Empty selects every entity type
	FromStoreID string
	ToStoreID   string
	Status      string
	ExportRows  bool
	Limit       int
}

// LedgerSheet holds the rows of one entity type
type LedgerSheet struct {
	Entity domain.EntityType
	Rows   []*domain.LedgerEntry
}

func (q LedgerQuery) filter(entity domain.EntityType) (domain.LedgerFilter, error) {
	f := domain.LedgerFilter{
		Entity:         entity,
		OperatorID:     q.OperatorID,
		FromStoreID:    q.FromStoreID,
		ToStoreID:      q.ToStoreID,
		OnlyExportRows: q.ExportRows,
		Limit:          q.Limit,
	}
	if q.OperatorID == "" {
		return f, fmt.Errorf("%w: operator id is required", ErrInvalidRequest)
	}
	if q.Status != "" {
		status := domain.LedgerStatus(q.Status)
		if !status.IsValid() {
			return f, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, q.Status)
		}
		f.Status = status
	}
	return f, nil
}

// List returns the rows of one entity type ordered by creation time
func (s *LedgerService) List(ctx context.Context, entity domain.EntityType, q LedgerQuery) ([]*domain.LedgerEntry, error) {
	f, err := q.filter(entity)
	if err != nil {
		return nil, err
	}
	rows, err := s.ledger.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger: %w", err)
	}
	return rows, nil
}

// Report returns one sheet per entity type in migration order
func (s *LedgerService) Report(ctx context.Context, q LedgerQuery) ([]LedgerSheet, error) {
	entities := q.Entities
	if len(entities) == 0 {
		entities = domain.MigrationOrder()
	}

	var sheets []LedgerSheet
	for _, entity := range domain.SortByMigrationOrder(entities) {
		rows, err := s.List(ctx, entity, q)
		if err != nil {
			return nil, err
		}
		sheets = append(sheets, LedgerSheet{Entity: entity, Rows: rows})
	}

	s.logger.Debug().
		Str("operatorID", q.OperatorID).
		Int("sheets", len(sheets)).
		Msg("Ledger report built")

	return sheets, nil
}
