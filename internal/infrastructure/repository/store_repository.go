package repository

import (
	"context"
	"fmt"
	"time"

	"wix-store-migrator/internal/domain"
	"wix-store-migrator/internal/infrastructure/repository/entity"
	"wix-store-migrator/internal/ports"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStoreRepository implements StoreRepository using MongoDB
type MongoStoreRepository struct {
	collection *mongo.Collection
}

// NewMongoStoreRepository creates a new MongoDB store repository
func NewMongoStoreRepository(db *mongo.Database) ports.StoreRepository {
	return &MongoStoreRepository{
		collection: db.Collection("stores"),
	}
}

// Save creates or updates a store keyed by operator and instance id
func (r *MongoStoreRepository) Save(ctx context.Context, store *domain.Store) error {
	doc := entity.MongoStoreDocFromDomain(store)
	doc.UpdatedAt = time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	// Create unique index on operator + instance if it doesn't exist
	indexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "operatorId", Value: 1}, {Key: "instanceId", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	_, _ = r.collection.Indexes().CreateOne(ctx, indexModel)

	opts := options.Update().SetUpsert(true)
	filter := bson.M{
		"operatorId": store.OperatorID,
		"instanceId": store.InstanceID,
	}
	update := bson.M{
		"$set": bson.M{
			"displayName": doc.DisplayName,
			"updatedAt":   doc.UpdatedAt,
		},
		"$setOnInsert": bson.M{"createdAt": doc.CreatedAt},
	}

	_, err := r.collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("failed to save store: %w", err)
	}

	return nil
}

// GetByInstanceID retrieves a store of an operator by instance id
func (r *MongoStoreRepository) GetByInstanceID(ctx context.Context, operatorID, instanceID string) (*domain.Store, error) {
	var doc entity.MongoStoreDoc
	filter := bson.M{
		"operatorId": operatorID,
		"instanceId": instanceID,
	}

	err := r.collection.FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get store: %w", err)
	}

	return doc.ToDomain(), nil
}

// ListByOperator retrieves all stores of an operator
func (r *MongoStoreRepository) ListByOperator(ctx context.Context, operatorID string) ([]*domain.Store, error) {
	opts := options.Find().SetSort(bson.D{{Key: "displayName", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"operatorId": operatorID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list stores: %w", err)
	}
	defer cursor.Close(ctx)

	var stores []*domain.Store
	for cursor.Next(ctx) {
		var doc entity.MongoStoreDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode store: %w", err)
		}
		stores = append(stores, doc.ToDomain())
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return stores, nil
}
