package repository

import (
	"context"
	"testing"
	"time"

	"wix-store-migrator/internal/domain"
	"wix-store-migrator/internal/infrastructure/repository/entity"
	"wix-store-migrator/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// tickingClock returns strictly increasing timestamps so ordering assertions are stable
func tickingClock() func() time.Time {
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func newSQLiteLedger(t *testing.T) ports.LedgerStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&entity.SQLLedgerRow{}))

	store := NewSQLLedgerStore(db)
	store.now = tickingClock()
	return store
}

func newMemoryLedger(t *testing.T) ports.LedgerStore {
	t.Helper()
	store := NewMemoryLedgerStore()
	store.now = tickingClock()
	return store
}

func TestLedgerStores(t *testing.T) {
	backends := map[string]func(t *testing.T) ports.LedgerStore{
		"memory": newMemoryLedger,
		"sqlite": newSQLiteLedger,
	}
	for name, factory := range backends {
		t.Run(name, func(t *testing.T) {
			runLedgerContract(t, factory)
		})
	}
}

func productKey(source, to string) domain.LedgerKey {
	return domain.LedgerKey{
		Entity:      domain.EntityProducts,
		OperatorID:  "op-1",
		FromStoreID: "store-a",
		ToStoreID:   to,
		SourceKey:   source,
	}
}

// runLedgerContract is shared by every backend, including the Mongo integration test
func runLedgerContract(t *testing.T, factory func(t *testing.T) ports.LedgerStore) {
	ctx := context.Background()

	t.Run("upsert pending is idempotent", func(t *testing.T) {
		store := factory(t)
		key := productKey("p1", "store-b")

		first, err := store.UpsertPending(ctx, key, domain.Descriptor{NaturalKey: "SKU-1", Label: "Shirt"})
		require.NoError(t, err)
		second, err := store.UpsertPending(ctx, key, domain.Descriptor{NaturalKey: "SKU-1", Label: "Shirt"})
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, domain.StatusPending, second.Status)
		assert.Equal(t, "SKU-1", second.NaturalKey)

		all, err := store.List(ctx, domain.LedgerFilter{Entity: domain.EntityProducts})
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("find by key returns nil when absent", func(t *testing.T) {
		store := factory(t)
		got, err := store.FindByKey(ctx, productKey("missing", "store-b"))
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("success is never downgraded", func(t *testing.T) {
		store := factory(t)
		key := productKey("p1", "store-b")
		_, err := store.UpsertPending(ctx, key, domain.Descriptor{})
		require.NoError(t, err)

		require.NoError(t, store.MarkResult(ctx, key, domain.LedgerResult{Status: domain.StatusFailed, ErrorMessage: "boom"}))
		got, err := store.FindByKey(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFailed, got.Status)
		assert.Equal(t, "boom", got.ErrorMessage)
		assert.Equal(t, 1, got.Attempts)

		require.NoError(t, store.MarkResult(ctx, key, domain.LedgerResult{Status: domain.StatusSuccess, DestinationID: "d1"}))
		require.NoError(t, store.MarkResult(ctx, key, domain.LedgerResult{Status: domain.StatusFailed, ErrorMessage: "later"}))

		got, err = store.FindByKey(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusSuccess, got.Status)
		assert.Equal(t, "d1", got.DestinationID)
		assert.Empty(t, got.ErrorMessage)

		// destination drift can still be corrected
		require.NoError(t, store.MarkResult(ctx, key, domain.LedgerResult{Status: domain.StatusFailed, DestinationID: "d2"}))
		got, err = store.FindByKey(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusSuccess, got.Status)
		assert.Equal(t, "d2", got.DestinationID)
	})

	t.Run("mark result on missing entry", func(t *testing.T) {
		store := factory(t)
		err := store.MarkResult(ctx, productKey("nope", "store-b"), domain.LedgerResult{Status: domain.StatusSuccess, DestinationID: "x"})
		assert.ErrorIs(t, err, domain.ErrLedgerEntryNotFound)
	})

	t.Run("import claims the export-only row", func(t *testing.T) {
		store := factory(t)
		exported, err := store.UpsertPending(ctx, productKey("p1", ""), domain.Descriptor{Label: "Shirt"})
		require.NoError(t, err)

		claimed, err := store.UpsertPending(ctx, productKey("p1", "store-b"), domain.Descriptor{})
		require.NoError(t, err)
		assert.Equal(t, exported.ID, claimed.ID)
		assert.Equal(t, "store-b", claimed.Key.ToStoreID)
		assert.Equal(t, "Shirt", claimed.Label)

		leftovers, err := store.List(ctx, domain.LedgerFilter{Entity: domain.EntityProducts, OnlyExportRows: true})
		require.NoError(t, err)
		assert.Empty(t, leftovers)

		// a second destination gets its own row
		other, err := store.UpsertPending(ctx, productKey("p1", "store-c"), domain.Descriptor{})
		require.NoError(t, err)
		assert.NotEqual(t, claimed.ID, other.ID)
	})

	t.Run("finalized export rows are not claimed", func(t *testing.T) {
		store := factory(t)
		exportKey := productKey("p1", "")
		_, err := store.UpsertPending(ctx, exportKey, domain.Descriptor{})
		require.NoError(t, err)
		require.NoError(t, store.MarkResult(ctx, exportKey, domain.LedgerResult{Status: domain.StatusSkipped}))

		fresh, err := store.UpsertPending(ctx, productKey("p1", "store-b"), domain.Descriptor{})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, fresh.Status)

		rows, err := store.List(ctx, domain.LedgerFilter{Entity: domain.EntityProducts})
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	})

	t.Run("successful mappings are scoped to the store pair", func(t *testing.T) {
		store := factory(t)
		for _, tc := range []struct {
			source, to, dest string
			status           domain.LedgerStatus
		}{
			{"p1", "store-b", "d1", domain.StatusSuccess},
			{"p2", "store-b", "", domain.StatusFailed},
			{"p3", "store-c", "d3", domain.StatusSuccess},
		} {
			key := productKey(tc.source, tc.to)
			_, err := store.UpsertPending(ctx, key, domain.Descriptor{NaturalKey: "sku-" + tc.source})
			require.NoError(t, err)
			require.NoError(t, store.MarkResult(ctx, key, domain.LedgerResult{Status: tc.status, DestinationID: tc.dest}))
		}

		mappings, err := store.SuccessfulMappings(ctx, domain.LedgerFilter{
			Entity:      domain.EntityProducts,
			OperatorID:  "op-1",
			FromStoreID: "store-a",
			ToStoreID:   "store-b",
		})
		require.NoError(t, err)
		require.Len(t, mappings, 1)
		assert.Equal(t, domain.LedgerMapping{SourceKey: "p1", NaturalKey: "sku-p1", DestinationID: "d1"}, mappings[0])
	})

	t.Run("list keeps creation order and honours limit", func(t *testing.T) {
		store := factory(t)
		for _, id := range []string{"f1", "f2", "f3"} {
			_, err := store.UpsertPending(ctx, domain.LedgerKey{
				Entity: domain.EntityMedia, OperatorID: "op-1", FromStoreID: "store-a", SourceKey: id,
			}, domain.Descriptor{ParentKey: "folder:root"})
			require.NoError(t, err)
		}
		rows, err := store.List(ctx, domain.LedgerFilter{Entity: domain.EntityMedia, ParentKey: "folder:root", Limit: 2})
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "f1", rows[0].Key.SourceKey)
		assert.Equal(t, "f2", rows[1].Key.SourceKey)
	})
}
