package domain

import "time"

// LedgerStatus is the lifecycle state of a ledger entry
type LedgerStatus string

const (
	StatusPending LedgerStatus = "pending"
	StatusSuccess LedgerStatus = "success"
	StatusFailed  LedgerStatus = "failed"
	StatusSkipped LedgerStatus = "skipped"
)

// IsValid reports whether s is a known status
func (s LedgerStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusSuccess, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// LedgerKey identifies one logical migration attempt of a source item
type LedgerKey struct {
	Entity      EntityType `json:"entity" bson:"entity"`
	OperatorID  string     `json:"operator_id" bson:"operator_id"`
	FromStoreID string     `json:"from_store_id" bson:"from_store_id"`
	ToStoreID   string     `json:"to_store_id" bson:"to_store_id"` // Empty while the row belongs to an export-only phase
	SourceKey   string     `json:"source_key" bson:"source_key"`   // Source id, or a natural key when the platform id is not stable
}

// ExportOnly reports whether the key has no destination store yet
func (k LedgerKey) ExportOnly() bool {
	return k.ToStoreID == ""
}

// WithDestination returns a copy of k bound to the destination store
func (k LedgerKey) WithDestination(toStoreID string) LedgerKey {
	k.ToStoreID = toStoreID
	return k
}

// Descriptor holds the descriptive, non-key fields stored with a pending entry
type Descriptor struct {
	NaturalKey string // slug, sku, email or code
	Label      string // name or number shown to operators
	ParentKey  string // media folder or loyalty contact
}

// LedgerEntry is one row of the migration ledger
type LedgerEntry struct {
	ID            string       `json:"id" bson:"_id"`
	Key           LedgerKey    `json:"key" bson:",inline"`
	NaturalKey    string       `json:"natural_key,omitempty" bson:"natural_key,omitempty"`
	Label         string       `json:"label,omitempty" bson:"label,omitempty"`
	ParentKey     string       `json:"parent_key,omitempty" bson:"parent_key,omitempty"`
	DestinationID string       `json:"destination_id,omitempty" bson:"destination_id,omitempty"`
	Status        LedgerStatus `json:"status" bson:"status"`
	ErrorMessage  string       `json:"error_message,omitempty" bson:"error_message,omitempty"`
	Attempts      int          `json:"attempts" bson:"attempts"`
	CreatedAt     time.Time    `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at" bson:"updated_at"`
}

// IsSuccess reports whether the entry already reached a final success
func (e *LedgerEntry) IsSuccess() bool {
	return e != nil && e.Status == StatusSuccess
}

// LedgerResult is the outcome written by MarkResult
type LedgerResult struct {
	DestinationID string
	Status        LedgerStatus
	ErrorMessage  string
}

// LedgerFilter selects ledger rows. Empty fields are not filtered on,
// except ToStoreID which is matched exactly when OnlyExportRows is set.
type LedgerFilter struct {
	Entity         EntityType
	OperatorID     string
	FromStoreID    string
	ToStoreID      string
	Status         LedgerStatus
	ParentKey      string
	OnlyExportRows bool
	Limit          int
}

// Matches reports whether e satisfies the filter
func (f LedgerFilter) Matches(e *LedgerEntry) bool {
	if f.Entity != "" && e.Key.Entity != f.Entity {
		return false
	}
	if f.OperatorID != "" && e.Key.OperatorID != f.OperatorID {
		return false
	}
	if f.FromStoreID != "" && e.Key.FromStoreID != f.FromStoreID {
		return false
	}
	if f.OnlyExportRows {
		if e.Key.ToStoreID != "" {
			return false
		}
	} else if f.ToStoreID != "" && e.Key.ToStoreID != f.ToStoreID {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.ParentKey != "" && e.ParentKey != f.ParentKey {
		return false
	}
	return true
}

// LedgerMapping is the projection of a successful row used to build remap tables
type LedgerMapping struct {
	SourceKey     string `json:"source_key" bson:"source_key"`
	NaturalKey    string `json:"natural_key" bson:"natural_key"`
	DestinationID string `json:"destination_id" bson:"destination_id"`
}

// MappingIndex turns ledger mappings into lookup tables keyed by source key and
// by natural key. Later rows win on conflict.
func MappingIndex(mappings []LedgerMapping) (bySource map[string]string, byNatural map[string]string) {
	bySource = make(map[string]string, len(mappings))
	byNatural = make(map[string]string, len(mappings))
	for _, m := range mappings {
		if m.DestinationID == "" {
			continue
		}
		if m.SourceKey != "" {
			bySource[m.SourceKey] = m.DestinationID
		}
		if m.NaturalKey != "" {
			byNatural[m.NaturalKey] = m.DestinationID
		}
	}
	return bySource, byNatural
}
