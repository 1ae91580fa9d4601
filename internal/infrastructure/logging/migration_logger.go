// Package logging writes the operator-visible migration log.
package logging

import (
	"context"
	"time"

	"wix-store-migrator/internal/domain"
	"wix-store-migrator/internal/ports"

	"github.com/rs/zerolog"
)

// MigrationLogger writes structured log lines and forwards them to run subscribers
type MigrationLogger struct {
	logger    zerolog.Logger
	publisher ports.ProgressPublisher
	now       func() time.Time
}

// NewMigrationLogger creates a logger. publisher may be nil.
func NewMigrationLogger(logger zerolog.Logger, publisher ports.ProgressPublisher) *MigrationLogger {
	return &MigrationLogger{
		logger:    logger,
		publisher: publisher,
		now:       time.Now,
	}
}

var _ ports.MigrationLogger = (*MigrationLogger)(nil)

func (l *MigrationLogger) Log(ctx context.Context, lc domain.LogContext, message string, level domain.LogLevel) {
	var event *zerolog.Event
	switch level {
	case domain.LevelDebug:
		event = l.logger.Debug()
	case domain.LevelWarn:
		event = l.logger.Warn()
	case domain.LevelError:
		event = l.logger.Error()
	case domain.LevelSuccess:
		event = l.logger.Info().Str("outcome", "success")
	default:
		event = l.logger.Info()
	}

	event.
		Str("runId", lc.RunID).
		Str("operatorId", lc.OperatorID).
		Str("fromStoreId", lc.FromStoreID).
		Str("toStoreId", lc.ToStoreID).
		Str("entity", string(lc.Entity))
	if lc.SourceKey != "" {
		event.Str("sourceKey", lc.SourceKey)
	}
	event.Msg(message)

	if l.publisher == nil || lc.RunID == "" || level == domain.LevelDebug {
		return
	}
	l.publisher.Publish(domain.ProgressEvent{
		RunID:     lc.RunID,
		Entity:    lc.Entity,
		Level:     level,
		Message:   message,
		Timestamp: l.now().UTC(),
	})
}

// Level parses a LOG_LEVEL value, defaulting to info
func Level(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(s)
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return level
}
