package domain

import (
	"errors"
	"strings"
	"time"
)

// Store is a store instance registered by an operator. The instance id is the
// platform's opaque identifier used to mint access tokens.
type Store struct {
	ID          string    `json:"id" bson:"_id"`
	OperatorID  string    `json:"operator_id" bson:"operator_id"`
	InstanceID  string    `json:"instance_id" bson:"instance_id"`
	DisplayName string    `json:"display_name" bson:"display_name"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at"`
}

// NewStore validates and builds a store record
func NewStore(operatorID, instanceID, displayName string) (*Store, error) {
	operatorID = strings.TrimSpace(operatorID)
	instanceID = strings.TrimSpace(instanceID)
	if operatorID == "" {
		return nil, errors.New("operator id is required")
	}
	if instanceID == "" {
		return nil, errors.New("instance id is required")
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = instanceID
	}
	now := time.Now().UTC()
	return &Store{
		OperatorID:  operatorID,
		InstanceID:  instanceID,
		DisplayName: displayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// AccessToken is a bearer token minted for one store instance
type AccessToken struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Valid reports whether the token can still be used at now, keeping a margin
func (t *AccessToken) Valid(now time.Time, margin time.Duration) bool {
	if t == nil || t.Value == "" {
		return false
	}
	if t.ExpiresAt.IsZero() {
		return true
	}
	return now.Add(margin).Before(t.ExpiresAt)
}
