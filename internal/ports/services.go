package ports

import (
	"context"
	"time"

	"wix-store-migrator/internal/domain"
)

// TokenProvider returns a bearer token for a store instance. It returns
// domain.ErrTokenUnavailable when the store cannot be authorised.
type TokenProvider interface {
	GetAccessToken(ctx context.Context, instanceID string) (string, error)
}

// TokenCache stores minted tokens between requests
type TokenCache interface {
	Get(ctx context.Context, instanceID string) (*domain.AccessToken, error)
	Set(ctx context.Context, instanceID string, token *domain.AccessToken) error
}

// MigrationLogger is the operator-visible progress and audit log
type MigrationLogger interface {
	Log(ctx context.Context, lc domain.LogContext, message string, level domain.LogLevel)
}

// FileTransfer moves attachment content between stores
type FileTransfer interface {
	Download(ctx context.Context, url string) (content []byte, contentType string, err error)
	// Upload accepts any 200 or 201 response as success
	Upload(ctx context.Context, signedURL string, content []byte, contentType string) error
}

// MetricsRecorder records pipeline and remote call metrics
type MetricsRecorder interface {
	ItemProcessed(entity domain.EntityType, status domain.LedgerStatus)
	PipelineFinished(entity domain.EntityType, duration time.Duration)
	RemoteRequest(op string, statusCode int)
}

// RunLock prevents two runs for the same store pair from overlapping
type RunLock interface {
	// Acquire returns domain.ErrRunInProgress when the lock is held
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

// ProgressPublisher fans run progress out to subscribers
type ProgressPublisher interface {
	Publish(event domain.ProgressEvent)
	Subscribe(runID string) (<-chan domain.ProgressEvent, func())
}
