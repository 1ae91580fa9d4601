package pipelines

import (
	"context"
	"testing"

	"wix-store-migrator/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mustRaw builds a record from a JSON literal
func mustRaw(s string) domain.RawItem {
	item, err := domain.ParseRawItem([]byte(s))
	if err != nil {
		panic(err)
	}
	return item
}

func mustRaws(items ...string) []domain.RawItem {
	out := make([]domain.RawItem, len(items))
	for i, s := range items {
		out[i] = mustRaw(s)
	}
	return out
}

func seedCatalog(h *harness) {
	src := h.remote.src()
	src.collections = mustRaws(
		`{"id": "00000000-000000-000000-000000000001", "name": "All Products", "slug": "all-products"}`,
		`{"id": "c1", "name": "Summer", "slug": "summer", "numberOfProducts": 2}`,
		`{"id": "c2", "name": "Winter", "slug": "winter"}`,
	)
	src.products = mustRaws(
		`{"id": "p1", "name": "Hat", "sku": "HAT-1", "slug": "hat", "collectionIds": ["00000000-000000-000000-000000000001", "c1"]}`,
		`{"id": "p2", "name": "Scarf", "sku": "SCF-1", "collectionIds": ["c2"]}`,
		`{"id": "p3", "name": "Gloves"}`,
	)
	src.inventory = mustRaws(
		`{"sku": "HAT-1", "trackQuantity": true, "variants": [{"quantity": 7}]}`,
		`{"sku": "HAT-1", "trackQuantity": true, "variants": [{"quantity": 99}]}`,
		`{"variants": [{"sku": "SCF-1", "inStock": true}]}`,
	)
}

func TestCollectionsAndProductsRerunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	seedCatalog(h)

	job := newJob()
	collections := NewCollectionsPipeline(h.deps).Run(ctx, job)
	assert.Equal(t, 2, collections.Imported)
	assert.Equal(t, 1, collections.Skipped)
	assert.Empty(t, collections.Errors)

	products := NewProductsPipeline(h.deps).Run(ctx, job)
	assert.Equal(t, 3, products.Imported)
	assert.Empty(t, products.Errors)

	dst := h.remote.dst()
	require.Len(t, dst.collections, 2)
	require.Len(t, dst.products, 3)

	summer := dst.collections[0]
	assert.Equal(t, "Summer", summer.String("name"))
	_, hasSlug := summer.Get("slug")
	assert.False(t, hasSlug)

	hat := dst.products[0]
	assert.Equal(t, "HAT-1", hat.String("sku"))
	assert.True(t, hat.Bool("stock.trackInventory"))
	assert.Equal(t, 7, hat.Int("stock.quantity"))
	_, hasCollections := hat.Get("collectionIds")
	assert.False(t, hasCollections)

	scarf := dst.products[1]
	assert.False(t, scarf.Bool("stock.trackInventory"))
	assert.True(t, scarf.Bool("stock.inStock"))

	_, glovesStock := dst.products[2].Get("stock")
	assert.False(t, glovesStock)

	assert.Equal(t, []string{hat.String("id")}, dst.collectionProducts[summer.String("id")])
	assert.Equal(t, []string{scarf.String("id")}, dst.collectionProducts[dst.collections[1].String("id")])

	row := h.ledgerRow(domain.EntityProducts, "p1")
	require.NotNil(t, row)
	assert.Equal(t, domain.StatusSuccess, row.Status)
	assert.Equal(t, hat.String("id"), row.DestinationID)
	assert.Equal(t, "HAT-1", row.NaturalKey)

	// a second run finds every item in the ledger and writes nothing
	rerun := newJob()
	collections = NewCollectionsPipeline(h.deps).Run(ctx, rerun)
	products = NewProductsPipeline(h.deps).Run(ctx, rerun)

	assert.Equal(t, 2, collections.AlreadyMigrated)
	assert.Equal(t, 1, collections.Skipped)
	assert.Equal(t, 0, collections.Imported)
	assert.Equal(t, 3, products.AlreadyMigrated)
	assert.Equal(t, 0, products.Imported)

	assert.Equal(t, 2, h.remote.calls["collections.create"])
	assert.Equal(t, 3, h.remote.calls["products.create"])
	assert.Equal(t, 2, h.remote.calls["collections.addProducts"])

	id, ok := rerun.Remapper.Translate(domain.EntityProducts, "HAT-1")
	assert.True(t, ok)
	assert.Equal(t, hat.String("id"), id)
}

func TestProductsReportMissingCollection(t *testing.T) {
	h := newHarness()
	seedCatalog(h)

	res := NewProductsPipeline(h.deps).Run(context.Background(), newJob())

	assert.Equal(t, 3, res.Imported)
	assert.Equal(t, 0, res.Failed)
	assert.Contains(t, res.Errors, "Products Hat: collection c1 was not migrated")
	assert.Contains(t, res.Errors, "Products Scarf: collection c2 was not migrated")
	assert.Zero(t, h.remote.calls["collections.addProducts"])
}

func TestDiscountRulesCreatedOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.remote.src().rules = mustRaws(
		`{"id": "r1", "name": "Buy 2 get 1", "status": "LIVE", "revision": "3"}`,
		`{"id": "r2", "name": "Free shipping"}`,
	)

	first := NewDiscountRulesPipeline(h.deps).Run(ctx, newJob())
	second := NewDiscountRulesPipeline(h.deps).Run(ctx, newJob())

	assert.Equal(t, 2, first.Imported)
	assert.Equal(t, 2, second.AlreadyMigrated)
	assert.Equal(t, 2, h.remote.calls["discountRules.create"])

	created := h.remote.dst().rules[0]
	_, hasRevision := created.Get("revision")
	assert.False(t, hasRevision)
	_, hasStatus := created.Get("status")
	assert.False(t, hasStatus)
}

func TestRegistryCoversEveryEntityType(t *testing.T) {
	registry := NewRegistry(newHarness().deps)
	for _, e := range domain.MigrationOrder() {
		p, ok := registry[e]
		require.True(t, ok, "missing pipeline for %s", e)
		assert.Equal(t, e, p.EntityType())
	}
}
