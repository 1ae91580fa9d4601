package pipelines

import (
	"context"
	"testing"

	"wix-store-migrator/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCouponsWaitForScopedTargets(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	src := h.remote.src()
	src.collections = mustRaws(`{"id": "c1", "name": "Summer", "slug": "summer"}`)
	src.coupons = mustRaws(
		`{"id": "cp1", "dateCreated": "2024-01-01T00:00:00Z", "specification": {"code": "SAVE10", "name": "Save 10", "percentOffRate": 10,
		  "scope": {"namespace": "stores", "group": {"name": "collection", "entityId": "c1"}}}}`,
		`{"id": "cp2", "specification": {"code": "PROD5", "scope": {"namespace": "stores", "group": {"name": "product", "entityId": "p-missing"}}}}`,
		`{"id": "cp3", "specification": {"name": "No code"}}`,
		`{"id": "cp4", "specification": {"code": "WELCOME"}}`,
	)
	h.remote.dst().coupons = mustRaws(`{"id": "dst-welcome", "specification": {"code": "WELCOME"}}`)

	// coupons before collections: the scoped coupon cannot be translated yet
	first := NewCouponsPipeline(h.deps).Run(ctx, newJob())
	assert.Equal(t, 0, first.Imported)
	assert.Equal(t, 2, first.Failed)
	assert.Equal(t, 1, first.Skipped)
	assert.Equal(t, 1, first.Matched)

	row := h.ledgerRow(domain.EntityCoupons, "cp1")
	require.NotNil(t, row)
	assert.Equal(t, domain.StatusFailed, row.Status)
	assert.Equal(t, "coupon scope collection c1 has no migrated destination collections", row.ErrorMessage)

	collections := NewCollectionsPipeline(h.deps).Run(ctx, newJob())
	require.Equal(t, 1, collections.Imported)
	destCollection := h.remote.dst().collections[0].String("id")

	// a later run reads the collection mapping back from the ledger
	second := NewCouponsPipeline(h.deps).Run(ctx, newJob())
	assert.Equal(t, 1, second.Imported)
	assert.Equal(t, 1, second.Failed)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, 1, second.AlreadyMigrated)

	var save10 domain.RawItem
	for _, c := range h.remote.dst().coupons {
		if c.String("specification.code") == "SAVE10" {
			save10 = c
		}
	}
	require.NotNil(t, save10)
	assert.Equal(t, destCollection, save10.String("specification.scope.group.entityId"))
	assert.Equal(t, 10, save10.Int("specification.percentOffRate"))

	row = h.ledgerRow(domain.EntityCoupons, "cp2")
	require.NotNil(t, row)
	assert.Equal(t, 2, row.Attempts)
	assert.Contains(t, row.ErrorMessage, "has no migrated destination products")

	assert.Equal(t, 1, h.remote.calls["coupons.create"])
}

func TestCouponsConflictRechecksCode(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.remote.conflictCoupons = true
	h.remote.src().coupons = mustRaws(`{"id": "cp1", "specification": {"code": "SAVE10", "name": "Save 10"}}`)

	first := NewCouponsPipeline(h.deps).Run(ctx, newJob())
	assert.Equal(t, 1, first.Matched)
	assert.Equal(t, 0, first.Failed)

	second := NewCouponsPipeline(h.deps).Run(ctx, newJob())
	assert.Equal(t, 1, second.AlreadyMigrated)

	require.Len(t, h.remote.dst().coupons, 1)
	assert.Equal(t, 1, h.remote.calls["coupons.create"])
	row := h.ledgerRow(domain.EntityCoupons, "cp1")
	require.NotNil(t, row)
	assert.Equal(t, h.remote.dst().coupons[0].String("id"), row.DestinationID)
}

func TestCouponSpecificationWithoutScope(t *testing.T) {
	spec, err := couponSpecification(mustRaw(`{"id": "x", "specification": {"code": "FREE", "usageCount": 4}}`), NewRemapper())
	require.NoError(t, err)
	assert.Equal(t, domain.RawItem{"code": "FREE"}, spec)

	_, err = couponSpecification(mustRaw(`{"id": "x"}`), NewRemapper())
	assert.Error(t, err)
}
