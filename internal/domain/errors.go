package domain

import "errors"

var (
	// ErrUnknownEntityType is returned when an entity type string is not recognised
	ErrUnknownEntityType = errors.New("unknown entity type")

	// ErrSameStore is returned when source and destination store are identical
	ErrSameStore = errors.New("source and destination store must be different")

	// ErrTokenUnavailable is returned when no access token can be obtained for a store
	ErrTokenUnavailable = errors.New("access token unavailable")

	// ErrStoreNotFound is returned when a store instance is not registered for the operator
	ErrStoreNotFound = errors.New("store not found")

	// ErrMissingDestination is returned when an entity type needs a destination store
	ErrMissingDestination = errors.New("destination store is required")

	// ErrRunInProgress is returned when a run for the same store pair is already active
	ErrRunInProgress = errors.New("a migration for this store pair is already running")

	// ErrRunNotFound is returned when a run id does not exist
	ErrRunNotFound = errors.New("run not found")

	// ErrLedgerEntryNotFound is returned when a result is marked on a missing entry
	ErrLedgerEntryNotFound = errors.New("ledger entry not found")
)
