package domain

import (
	"fmt"
	"strings"
)

// EntityType identifies one kind of store data that can be migrated
type EntityType string

const (
	EntityCollections   EntityType = "collections"
	EntityProducts      EntityType = "products"
	EntityContacts      EntityType = "contacts"
	EntityOrders        EntityType = "orders"
	EntityCoupons       EntityType = "coupons"
	EntityDiscountRules EntityType = "discount_rules"
	EntityMedia         EntityType = "media"
	EntityLoyalty       EntityType = "loyalty"
)

// MediaRootFolderID is the id every store uses for its media manager root folder
const MediaRootFolderID = "media-root"

// migrationOrder is the fixed dependency order. Loyalty only depends on contacts
// existing in the destination, so it runs last.
var migrationOrder = []EntityType{
	EntityCollections,
	EntityProducts,
	EntityContacts,
	EntityOrders,
	EntityCoupons,
	EntityDiscountRules,
	EntityMedia,
	EntityLoyalty,
}

// MigrationOrder returns every entity type in dependency order
func MigrationOrder() []EntityType {
	out := make([]EntityType, len(migrationOrder))
	copy(out, migrationOrder)
	return out
}

// ParseEntityType converts user input into an EntityType
func ParseEntityType(s string) (EntityType, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	for _, t := range migrationOrder {
		if string(t) == normalized {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEntityType, s)
}

// IsValid reports whether t is one of the known entity types
func (t EntityType) IsValid() bool {
	_, err := ParseEntityType(string(t))
	return err == nil
}

// DisplayName is the label used in operator-facing messages
func (t EntityType) DisplayName() string {
	switch t {
	case EntityCollections:
		return "Collections"
	case EntityProducts:
		return "Products"
	case EntityContacts:
		return "Contacts"
	case EntityOrders:
		return "Orders"
	case EntityCoupons:
		return "Coupons"
	case EntityDiscountRules:
		return "Discount Rules"
	case EntityMedia:
		return "Media"
	case EntityLoyalty:
		return "Loyalty Accounts"
	default:
		return string(t)
	}
}

// SupportsExportOnly reports whether the entity type has a separate export phase
// that can run without a destination store.
func (t EntityType) SupportsExportOnly() bool {
	return t == EntityMedia || t == EntityLoyalty
}

// SortByMigrationOrder returns the distinct entity types of in, in dependency order
func SortByMigrationOrder(in []EntityType) []EntityType {
	selected := make(map[EntityType]bool, len(in))
	for _, t := range in {
		selected[t] = true
	}
	out := make([]EntityType, 0, len(selected))
	for _, t := range migrationOrder {
		if selected[t] {
			out = append(out, t)
		}
	}
	return out
}
