package repository

import (
	"context"
	"fmt"

	"wix-store-migrator/internal/domain"
	"wix-store-migrator/internal/infrastructure/repository/entity"
	"wix-store-migrator/internal/ports"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRunRepository implements RunRepository using MongoDB
type MongoRunRepository struct {
	collection *mongo.Collection
}

// NewMongoRunRepository creates a new MongoDB run repository
func NewMongoRunRepository(db *mongo.Database) ports.RunRepository {
	return &MongoRunRepository{
		collection: db.Collection("runs"),
	}
}

// Create inserts a new run record
func (r *MongoRunRepository) Create(ctx context.Context, run *domain.RunRecord) error {
	doc := entity.MongoRunDocFromDomain(run)
	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// Update replaces a run record
func (r *MongoRunRepository) Update(ctx context.Context, run *domain.RunRecord) error {
	doc := entity.MongoRunDocFromDomain(run)
	res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": run.ID}, doc)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrRunNotFound
	}
	return nil
}

// GetByID retrieves a run of an operator
func (r *MongoRunRepository) GetByID(ctx context.Context, operatorID, runID string) (*domain.RunRecord, error) {
	var doc entity.MongoRunDoc
	filter := bson.M{"_id": runID, "operatorId": operatorID}

	err := r.collection.FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return doc.ToDomain(), nil
}

// ListByOperator returns the most recent runs of an operator
func (r *MongoRunRepository) ListByOperator(ctx context.Context, operatorID string, limit int) ([]*domain.RunRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "startedAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{"operatorId": operatorID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer cursor.Close(ctx)

	var runs []*domain.RunRecord
	for cursor.Next(ctx) {
		var doc entity.MongoRunDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode run: %w", err)
		}
		runs = append(runs, doc.ToDomain())
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return runs, nil
}
