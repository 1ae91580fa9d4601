package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wix-store-migrator/internal/domain"
	"wix-store-migrator/internal/infrastructure/repository/entity"
	"wix-store-migrator/internal/ports"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLLedgerStore implements LedgerStore on a relational database through gorm.
// Row locks are only taken on PostgreSQL; SQLite serialises writers itself.
type SQLLedgerStore struct {
	db       *gorm.DB
	lockRows bool
	now      func() time.Time
}

// NewSQLLedgerStore creates a new SQL ledger store
func NewSQLLedgerStore(db *gorm.DB) *SQLLedgerStore {
	return &SQLLedgerStore{
		db:       db,
		lockRows: db.Dialector.Name() == "postgres",
		now:      func() time.Time { return time.Now().UTC() },
	}
}

var _ ports.LedgerStore = (*SQLLedgerStore)(nil)

func (r *SQLLedgerStore) forUpdate(tx *gorm.DB) *gorm.DB {
	if r.lockRows {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

func whereKey(tx *gorm.DB, key domain.LedgerKey) *gorm.DB {
	return tx.Where(
		"entity = ? AND operator_id = ? AND from_store_id = ? AND to_store_id = ? AND source_key = ?",
		string(key.Entity), key.OperatorID, key.FromStoreID, key.ToStoreID, key.SourceKey,
	)
}

func findRow(tx *gorm.DB, key domain.LedgerKey) (*entity.SQLLedgerRow, error) {
	var rows []entity.SQLLedgerRow
	if err := whereKey(tx, key).Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// UpsertPending creates or fetches the entry for key
func (r *SQLLedgerStore) UpsertPending(ctx context.Context, key domain.LedgerKey, desc domain.Descriptor) (*domain.LedgerEntry, error) {
	existing, err := r.FindByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	if !key.ExportOnly() {
		claimed, err := r.claimExportRow(ctx, key)
		if err != nil {
			return nil, err
		}
		if claimed != nil {
			return claimed, nil
		}
	}

	now := r.now()
	row := entity.SQLLedgerRowFromDomain(&domain.LedgerEntry{
		ID:         uuid.NewString(),
		Key:        key,
		NaturalKey: desc.NaturalKey,
		Label:      desc.Label,
		ParentKey:  desc.ParentKey,
		Status:     domain.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	})

	// A concurrent insert of the same key is absorbed by DO NOTHING and re-read below
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error; err != nil {
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("failed to insert ledger entry: %w", err)
		}
	}

	entry, err := r.FindByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("ledger entry %s vanished after upsert", key.SourceKey)
	}
	return entry, nil
}

// claimExportRow binds the earliest pending export-only row of the same item to
// the destination inside a transaction holding the row lock.
func (r *SQLLedgerStore) claimExportRow(ctx context.Context, key domain.LedgerKey) (*domain.LedgerEntry, error) {
	var claimed *entity.SQLLedgerRow
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []entity.SQLLedgerRow
		q := tx.Where(
			"entity = ? AND operator_id = ? AND from_store_id = ? AND to_store_id = ? AND source_key = ? AND status = ?",
			string(key.Entity), key.OperatorID, key.FromStoreID, "", key.SourceKey, string(domain.StatusPending),
		).Order("created_at ASC").Limit(1)
		if err := r.forUpdate(q).Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		row := rows[0]
		now := r.now()
		if err := tx.Model(&entity.SQLLedgerRow{}).
			Where("id = ?", row.ID).
			Updates(map[string]interface{}{
				"to_store_id": key.ToStoreID,
				"updated_at":  now,
			}).Error; err != nil {
			return err
		}
		row.ToStoreID = key.ToStoreID
		row.UpdatedAt = now
		claimed = &row
		return nil
	})
	if err != nil {
		// The exact key may have been inserted by another writer after our first read
		if existing, findErr := r.FindByKey(ctx, key); findErr == nil && existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("failed to claim ledger entry: %w", err)
	}
	if claimed == nil {
		return nil, nil
	}
	return claimed.ToDomain(), nil
}

// FindByKey retrieves an entry by its composite key
func (r *SQLLedgerStore) FindByKey(ctx context.Context, key domain.LedgerKey) (*domain.LedgerEntry, error) {
	row, err := findRow(r.db.WithContext(ctx), key)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}
	if row == nil {
		return nil, nil
	}
	return row.ToDomain(), nil
}

// MarkResult transitions an entry, never downgrading a success row
func (r *SQLLedgerStore) MarkResult(ctx context.Context, key domain.LedgerKey, result domain.LedgerResult) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := findRow(r.forUpdate(tx), key)
		if err != nil {
			return fmt.Errorf("failed to get ledger entry: %w", err)
		}
		if row == nil {
			return fmt.Errorf("%w: %s", domain.ErrLedgerEntryNotFound, key.SourceKey)
		}

		updates := map[string]interface{}{"updated_at": r.now()}
		if result.DestinationID != "" {
			updates["destination_id"] = result.DestinationID
		}
		if row.Status != string(domain.StatusSuccess) {
			updates["status"] = string(result.Status)
			updates["error_message"] = result.ErrorMessage
			if result.Status != domain.StatusPending {
				updates["attempts"] = row.Attempts + 1
			}
		} else if result.DestinationID == "" {
			return nil
		}

		if err := tx.Model(&entity.SQLLedgerRow{}).Where("id = ?", row.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to mark ledger entry: %w", err)
		}
		return nil
	})
}

func (r *SQLLedgerStore) filtered(ctx context.Context, f domain.LedgerFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&entity.SQLLedgerRow{})
	if f.Entity != "" {
		q = q.Where("entity = ?", string(f.Entity))
	}
	if f.OperatorID != "" {
		q = q.Where("operator_id = ?", f.OperatorID)
	}
	if f.FromStoreID != "" {
		q = q.Where("from_store_id = ?", f.FromStoreID)
	}
	if f.OnlyExportRows {
		q = q.Where("to_store_id = ?", "")
	} else if f.ToStoreID != "" {
		q = q.Where("to_store_id = ?", f.ToStoreID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.ParentKey != "" {
		q = q.Where("parent_key = ?", f.ParentKey)
	}
	return q.Order("created_at ASC").Order("id ASC")
}

// SuccessfulMappings lists source to destination pairs of successful rows
func (r *SQLLedgerStore) SuccessfulMappings(ctx context.Context, f domain.LedgerFilter) ([]domain.LedgerMapping, error) {
	f.Status = domain.StatusSuccess
	var rows []entity.SQLLedgerRow
	if err := r.filtered(ctx, f).Select("source_key", "natural_key", "destination_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list ledger mappings: %w", err)
	}
	mappings := make([]domain.LedgerMapping, 0, len(rows))
	for _, row := range rows {
		mappings = append(mappings, domain.LedgerMapping{
			SourceKey:     row.SourceKey,
			NaturalKey:    row.NaturalKey,
			DestinationID: row.DestinationID,
		})
	}
	return mappings, nil
}

// List returns entries ordered by creation time
func (r *SQLLedgerStore) List(ctx context.Context, f domain.LedgerFilter) ([]*domain.LedgerEntry, error) {
	q := r.filtered(ctx, f)
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var rows []entity.SQLLedgerRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	entries := make([]*domain.LedgerEntry, 0, len(rows))
	for i := range rows {
		entries = append(entries, rows[i].ToDomain())
	}
	return entries, nil
}
