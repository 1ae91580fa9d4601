package entity

import (
	"time"

	"wix-store-migrator/internal/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MongoStoreDoc represents a registered store instance in MongoDB
type MongoStoreDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	OperatorID  string             `bson:"operatorId"`
	InstanceID  string             `bson:"instanceId"`
	DisplayName string             `bson:"displayName"`
	CreatedAt   time.Time          `bson:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt"`
}

// ToDomain converts the MongoDB document to a domain entity
func (d *MongoStoreDoc) ToDomain() *domain.Store {
	return &domain.Store{
		ID:          d.ID.Hex(),
		OperatorID:  d.OperatorID,
		InstanceID:  d.InstanceID,
		DisplayName: d.DisplayName,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// MongoStoreDocFromDomain converts a domain entity to a MongoDB document
func MongoStoreDocFromDomain(store *domain.Store) *MongoStoreDoc {
	doc := &MongoStoreDoc{
		OperatorID:  store.OperatorID,
		InstanceID:  store.InstanceID,
		DisplayName: store.DisplayName,
		CreatedAt:   store.CreatedAt,
		UpdatedAt:   store.UpdatedAt,
	}

	if store.ID != "" {
		if objID, err := primitive.ObjectIDFromHex(store.ID); err == nil {
			doc.ID = objID
		}
	}

	return doc
}
