package entity

import (
	"time"

	"wix-store-migrator/internal/domain"
)

// MongoLedgerDoc represents a migration ledger row in MongoDB
type MongoLedgerDoc struct {
	ID            string    `bson:"_id"`
	Entity        string    `bson:"entity"`
	OperatorID    string    `bson:"operatorId"`
	FromStoreID   string    `bson:"fromStoreId"`
	ToStoreID     string    `bson:"toStoreId"` // Empty string for export-only rows, never missing
	SourceKey     string    `bson:"sourceKey"`
	NaturalKey    string    `bson:"naturalKey,omitempty"`
	Label         string    `bson:"label,omitempty"`
	ParentKey     string    `bson:"parentKey,omitempty"`
	DestinationID string    `bson:"destinationId,omitempty"`
	Status        string    `bson:"status"`
	ErrorMessage  string    `bson:"errorMessage,omitempty"`
	Attempts      int       `bson:"attempts"`
	CreatedAt     time.Time `bson:"createdAt"`
	UpdatedAt     time.Time `bson:"updatedAt"`
}

// ToDomain converts the MongoDB document to a domain entity
func (d *MongoLedgerDoc) ToDomain() *domain.LedgerEntry {
	return &domain.LedgerEntry{
		ID: d.ID,
		Key: domain.LedgerKey{
			Entity:      domain.EntityType(d.Entity),
			OperatorID:  d.OperatorID,
			FromStoreID: d.FromStoreID,
			ToStoreID:   d.ToStoreID,
			SourceKey:   d.SourceKey,
		},
		NaturalKey:    d.NaturalKey,
		Label:         d.Label,
		ParentKey:     d.ParentKey,
		DestinationID: d.DestinationID,
		Status:        domain.LedgerStatus(d.Status),
		ErrorMessage:  d.ErrorMessage,
		Attempts:      d.Attempts,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

// MongoLedgerDocFromDomain converts a domain entity to a MongoDB document
func MongoLedgerDocFromDomain(e *domain.LedgerEntry) *MongoLedgerDoc {
	return &MongoLedgerDoc{
		ID:            e.ID,
		Entity:        string(e.Key.Entity),
		OperatorID:    e.Key.OperatorID,
		FromStoreID:   e.Key.FromStoreID,
		ToStoreID:     e.Key.ToStoreID,
		SourceKey:     e.Key.SourceKey,
		NaturalKey:    e.NaturalKey,
		Label:         e.Label,
		ParentKey:     e.ParentKey,
		DestinationID: e.DestinationID,
		Status:        string(e.Status),
		ErrorMessage:  e.ErrorMessage,
		Attempts:      e.Attempts,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

// SQLLedgerRow is the gorm model of a ledger row. The composite unique index
// enforces one authoritative row per key.
type SQLLedgerRow struct {
	ID            string    `gorm:"primaryKey;type:varchar(36)"`
	Entity        string    `gorm:"type:varchar(32);not null;uniqueIndex:ux_ledger_key,priority:1"`
	OperatorID    string    `gorm:"type:varchar(128);not null;uniqueIndex:ux_ledger_key,priority:2"`
	FromStoreID   string    `gorm:"type:varchar(128);not null;uniqueIndex:ux_ledger_key,priority:3"`
	ToStoreID     string    `gorm:"type:varchar(128);not null;default:'';uniqueIndex:ux_ledger_key,priority:4"`
	SourceKey     string    `gorm:"type:varchar(512);not null;uniqueIndex:ux_ledger_key,priority:5"`
	NaturalKey    string    `gorm:"type:varchar(512)"`
	Label         string    `gorm:"type:varchar(512)"`
	ParentKey     string    `gorm:"type:varchar(512);index"`
	DestinationID string    `gorm:"type:varchar(128)"`
	Status        string    `gorm:"type:varchar(16);not null;index"`
	ErrorMessage  string    `gorm:"type:text"`
	Attempts      int       `gorm:"not null;default:0"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// TableName pins the table created by the SQL migrations
func (SQLLedgerRow) TableName() string { return "migration_ledger" }

// ToDomain converts the row to a domain entity
func (r *SQLLedgerRow) ToDomain() *domain.LedgerEntry {
	doc := MongoLedgerDoc(*r)
	return doc.ToDomain()
}

// SQLLedgerRowFromDomain converts a domain entity to a gorm row
func SQLLedgerRowFromDomain(e *domain.LedgerEntry) *SQLLedgerRow {
	row := SQLLedgerRow(*MongoLedgerDocFromDomain(e))
	return &row
}
