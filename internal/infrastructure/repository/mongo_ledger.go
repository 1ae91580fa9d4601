package repository

import (
	"context"
	"fmt"
	"time"

	"wix-store-migrator/internal/domain"
	"wix-store-migrator/internal/infrastructure/repository/entity"
	"wix-store-migrator/internal/ports"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoLedgerStore implements LedgerStore using MongoDB
type MongoLedgerStore struct {
	collection *mongo.Collection
	now        func() time.Time
}

// NewMongoLedgerStore creates a new MongoDB ledger store
func NewMongoLedgerStore(db *mongo.Database) *MongoLedgerStore {
	return &MongoLedgerStore{
		collection: db.Collection("migration_ledger"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

var _ ports.LedgerStore = (*MongoLedgerStore)(nil)

// EnsureIndexes creates the unique key index and the claim lookup index
func (r *MongoLedgerStore) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "entity", Value: 1},
				{Key: "operatorId", Value: 1},
				{Key: "fromStoreId", Value: 1},
				{Key: "toStoreId", Value: 1},
				{Key: "sourceKey", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("ux_ledger_key"),
		},
		{
			Keys: bson.D{
				{Key: "entity", Value: 1},
				{Key: "operatorId", Value: 1},
				{Key: "fromStoreId", Value: 1},
				{Key: "status", Value: 1},
				{Key: "createdAt", Value: 1},
			},
			Options: options.Index().SetName("ix_ledger_status"),
		},
	}
	if _, err := r.collection.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("failed to create ledger indexes: %w", err)
	}
	return nil
}

func keyFilter(key domain.LedgerKey) bson.M {
	return bson.M{
		"entity":      string(key.Entity),
		"operatorId":  key.OperatorID,
		"fromStoreId": key.FromStoreID,
		"toStoreId":   key.ToStoreID,
		"sourceKey":   key.SourceKey,
	}
}

// UpsertPending creates or fetches the entry for key
func (r *MongoLedgerStore) UpsertPending(ctx context.Context, key domain.LedgerKey, desc domain.Descriptor) (*domain.LedgerEntry, error) {
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
	doc := entity.MongoLedgerDocFromDomain(&domain.LedgerEntry{
		ID:         uuid.NewString(),
		Key:        key,
		NaturalKey: desc.NaturalKey,
		Label:      desc.Label,
		ParentKey:  desc.ParentKey,
		Status:     domain.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	})

	// $setOnInsert keeps a concurrently inserted row untouched
	opts := options.Update().SetUpsert(true)
	_, err = r.collection.UpdateOne(ctx, keyFilter(key), bson.M{"$setOnInsert": doc}, opts)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return nil, fmt.Errorf("failed to insert ledger entry: %w", err)
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
// the destination. FindOneAndUpdate is atomic on the document, so two claimers
// can never both win the same row.
func (r *MongoLedgerStore) claimExportRow(ctx context.Context, key domain.LedgerKey) (*domain.LedgerEntry, error) {
	filter := bson.M{
		"entity":      string(key.Entity),
		"operatorId":  key.OperatorID,
		"fromStoreId": key.FromStoreID,
		"toStoreId":   "",
		"sourceKey":   key.SourceKey,
		"status":      string(domain.StatusPending),
	}
	update := bson.M{"$set": bson.M{"toStoreId": key.ToStoreID, "updatedAt": r.now()}}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "createdAt", Value: 1}}).
		SetReturnDocument(options.After)

	var doc entity.MongoLedgerDoc
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if mongo.IsDuplicateKeyError(err) {
		// Another writer created the exact key meanwhile; resolve to it
		return r.FindByKey(ctx, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim ledger entry: %w", err)
	}
	return doc.ToDomain(), nil
}

// FindByKey retrieves an entry by its composite key
func (r *MongoLedgerStore) FindByKey(ctx context.Context, key domain.LedgerKey) (*domain.LedgerEntry, error) {
	var doc entity.MongoLedgerDoc
	err := r.collection.FindOne(ctx, keyFilter(key)).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}
	return doc.ToDomain(), nil
}

// MarkResult transitions an entry, never downgrading a success row
func (r *MongoLedgerStore) MarkResult(ctx context.Context, key domain.LedgerKey, result domain.LedgerResult) error {
	now := r.now()

	set := bson.M{
		"status":       string(result.Status),
		"errorMessage": result.ErrorMessage,
		"updatedAt":    now,
	}
	if result.DestinationID != "" {
		set["destinationId"] = result.DestinationID
	}
	update := bson.M{"$set": set}
	if result.Status != domain.StatusPending {
		update["$inc"] = bson.M{"attempts": 1}
	}

	filter := keyFilter(key)
	filter["status"] = bson.M{"$ne": string(domain.StatusSuccess)}
	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to mark ledger entry: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	// Either missing or already success: only a destination id correction is allowed
	if result.DestinationID == "" {
		existing, err := r.FindByKey(ctx, key)
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("%w: %s", domain.ErrLedgerEntryNotFound, key.SourceKey)
		}
		return nil
	}
	filter = keyFilter(key)
	filter["status"] = string(domain.StatusSuccess)
	res, err = r.collection.UpdateOne(ctx, filter, bson.M{"$set": bson.M{
		"destinationId": result.DestinationID,
		"updatedAt":     now,
	}})
	if err != nil {
		return fmt.Errorf("failed to correct ledger destination: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", domain.ErrLedgerEntryNotFound, key.SourceKey)
	}
	return nil
}

func ledgerFilterDoc(f domain.LedgerFilter) bson.M {
	filter := bson.M{}
	if f.Entity != "" {
		filter["entity"] = string(f.Entity)
	}
	if f.OperatorID != "" {
		filter["operatorId"] = f.OperatorID
	}
	if f.FromStoreID != "" {
		filter["fromStoreId"] = f.FromStoreID
	}
	if f.OnlyExportRows {
		filter["toStoreId"] = ""
	} else if f.ToStoreID != "" {
		filter["toStoreId"] = f.ToStoreID
	}
	if f.Status != "" {
		filter["status"] = string(f.Status)
	}
	if f.ParentKey != "" {
		filter["parentKey"] = f.ParentKey
	}
	return filter
}

// SuccessfulMappings lists source to destination pairs of successful rows
func (r *MongoLedgerStore) SuccessfulMappings(ctx context.Context, f domain.LedgerFilter) ([]domain.LedgerMapping, error) {
	f.Status = domain.StatusSuccess
	opts := options.Find().
		SetProjection(bson.M{"sourceKey": 1, "naturalKey": 1, "destinationId": 1}).
		SetSort(bson.D{{Key: "createdAt", Value: 1}})

	cursor, err := r.collection.Find(ctx, ledgerFilterDoc(f), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger mappings: %w", err)
	}
	defer cursor.Close(ctx)

	var mappings []domain.LedgerMapping
	for cursor.Next(ctx) {
		var doc entity.MongoLedgerDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode ledger mapping: %w", err)
		}
		mappings = append(mappings, domain.LedgerMapping{
			SourceKey:     doc.SourceKey,
			NaturalKey:    doc.NaturalKey,
			DestinationID: doc.DestinationID,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return mappings, nil
}

// List returns entries ordered by creation time
func (r *MongoLedgerStore) List(ctx context.Context, f domain.LedgerFilter) ([]*domain.LedgerEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}

	cursor, err := r.collection.Find(ctx, ledgerFilterDoc(f), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []entity.MongoLedgerDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode ledger entries: %w", err)
	}
	entries := make([]*domain.LedgerEntry, 0, len(docs))
	for i := range docs {
		entries = append(entries, docs[i].ToDomain())
	}
	return entries, nil
}
