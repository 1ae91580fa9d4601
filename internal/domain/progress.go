package domain

import "time"

// LogLevel is the level of an operator-visible log line
type LogLevel string

const (
	LevelInfo    LogLevel = "info"
	LevelDebug   LogLevel = "debug"
	LevelSuccess LogLevel = "success"
	LevelWarn    LogLevel = "warn"
	LevelError   LogLevel = "error"
)

// LogContext scopes a log line to a run and entity type
type LogContext struct {
	RunID       string     `json:"run_id,omitempty"`
	OperatorID  string     `json:"operator_id,omitempty"`
	FromStoreID string     `json:"from_store_id,omitempty"`
	ToStoreID   string     `json:"to_store_id,omitempty"`
	Entity      EntityType `json:"entity,omitempty"`
	SourceKey   string     `json:"source_key,omitempty"`
}

// ProgressEvent is published to operators following a run
type ProgressEvent struct {
	RunID     string     `json:"run_id"`
	Entity    EntityType `json:"entity,omitempty"`
	Level     LogLevel   `json:"level"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
	Done      bool       `json:"done,omitempty"` // Set on the final event of a run
}
