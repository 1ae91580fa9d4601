package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEntityType(t *testing.T) {
	tests := []struct {
		in      string
		want    EntityType
		wantErr bool
	}{
		{in: "collections", want: EntityCollections},
		{in: " Discount-Rules ", want: EntityDiscountRules},
		{in: "LOYALTY", want: EntityLoyalty},
		{in: "invoices", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEntityType(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrUnknownEntityType))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSortByMigrationOrder(t *testing.T) {
	got := SortByMigrationOrder([]EntityType{EntityLoyalty, EntityCoupons, EntityCollections, EntityCoupons})
	assert.Equal(t, []EntityType{EntityCollections, EntityCoupons, EntityLoyalty}, got)
}

func TestRawItemPaths(t *testing.T) {
	item, err := ParseRawItem([]byte(`{
		"id": "c1",
		"revision": 4,
		"info": {"emails": {"items": [{"email": "a@example.com"}]}},
		"priceData": {"price": "12.50"},
		"quantity": 3
	}`))
	require.NoError(t, err)

	assert.Equal(t, "c1", item.String("id"))
	assert.Equal(t, "4", item.String("revision"))
	assert.Equal(t, "a@example.com", item.String("info.emails.items.0.email"))
	assert.Equal(t, 3, item.Int("quantity"))
	price, ok := item.Decimal("priceData.price")
	require.True(t, ok)
	assert.Equal(t, "12.5", price.String())
	_, ok = item.Get("info.missing")
	assert.False(t, ok)

	stripped := item.Without("id", "revision", "info.emails")
	assert.Empty(t, stripped.String("id"))
	_, ok = stripped.Get("info.emails")
	assert.False(t, ok)
	// the original is untouched
	assert.Equal(t, "a@example.com", item.String("info.emails.items.0.email"))

	stripped.Set("collection.ids", []any{"x"})
	assert.Equal(t, []string{"x"}, stripped.Strings("collection.ids"))
}

func TestRunRequestValidate(t *testing.T) {
	req := RunRequest{OperatorID: "op", FromStoreID: "s1", ToStoreID: "s1", Entities: []EntityType{EntityProducts}}
	assert.ErrorIs(t, req.Validate(), ErrSameStore)

	req.ToStoreID = ""
	assert.NoError(t, req.Validate())

	req.Entities = []EntityType{"invoices"}
	assert.ErrorIs(t, req.Validate(), ErrUnknownEntityType)
}

func TestRunSummaryMessage(t *testing.T) {
	summary := &RunSummary{Results: []EntityResult{
		{Entity: EntityCollections, Imported: 3},
		{Entity: EntityCoupons, Imported: 1, Matched: 1, Failed: 1, Errors: []string{"coupon SAVE20: collection scope not migrated"}},
	}}

	msg := summary.Message()
	assert.Contains(t, msg, "Collections: 3 imported")
	assert.Contains(t, msg, "Coupons: 1 imported, 1 matched existing, 1 failed")
	assert.True(t, strings.Index(msg, "Completed with some errors:") > strings.Index(msg, "Coupons:"))
	assert.Contains(t, msg, "- coupon SAVE20: collection scope not migrated")

	clean := &RunSummary{Results: []EntityResult{{Entity: EntityMedia, Imported: 2}}}
	assert.NotContains(t, clean.Message(), "Completed with some errors")
}

func TestMappingIndex(t *testing.T) {
	bySource, byNatural := MappingIndex([]LedgerMapping{
		{SourceKey: "c1", NaturalKey: "summer", DestinationID: "d1"},
		{SourceKey: "c2", DestinationID: ""},
	})
	assert.Equal(t, map[string]string{"c1": "d1"}, bySource)
	assert.Equal(t, map[string]string{"summer": "d1"}, byNatural)
}
