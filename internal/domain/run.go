package domain

import (
	"fmt"
	"strings"
	"time"
)

// RunRequest asks for one migration between two store instances
type RunRequest struct {
	OperatorID  string       `json:"operator_id" validate:"required"`
	FromStoreID string       `json:"from_store_id" validate:"required"`
	ToStoreID   string       `json:"to_store_id"` // Empty runs the export phase only
	Entities    []EntityType `json:"entities" validate:"required,min=1,dive,required"`
}

// Validate checks the store identity rule that applies to the whole run
func (r RunRequest) Validate() error {
	if r.ToStoreID != "" && r.FromStoreID == r.ToStoreID {
		return ErrSameStore
	}
	for _, e := range r.Entities {
		if !e.IsValid() {
			return fmt.Errorf("%w: %q", ErrUnknownEntityType, e)
		}
	}
	return nil
}

// EntityResult aggregates the outcome of one pipeline
type EntityResult struct {
	Entity          EntityType    `json:"entity" bson:"entity"`
	Imported        int           `json:"imported" bson:"imported"`                 // Created in the destination during this run
	Matched         int           `json:"matched" bson:"matched"`                   // Already present in the destination, linked without a create
	AlreadyMigrated int           `json:"already_migrated" bson:"already_migrated"` // Ledger success from a previous run
	Skipped         int           `json:"skipped" bson:"skipped"`
	Failed          int           `json:"failed" bson:"failed"`
	Exported        int           `json:"exported" bson:"exported"` // Rows logged pending by an export-only run
	Errors          []string      `json:"errors,omitempty" bson:"errors,omitempty"`
	Duration        time.Duration `json:"duration" bson:"duration"`
}

// NewEntityResult returns an empty result for entity
func NewEntityResult(entity EntityType) EntityResult {
	return EntityResult{Entity: entity}
}

// AddError appends a non-fatal error message
func (r *EntityResult) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Fail records a configuration error that aborted the whole entity type
func (r *EntityResult) Fail(err error) {
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", r.Entity.DisplayName(), err))
}

// Succeeded counts items present in the destination after the run
func (r EntityResult) Succeeded() int {
	return r.Imported + r.Matched + r.AlreadyMigrated
}

// RunSummary is what the orchestrator returns for a run
type RunSummary struct {
	Results []EntityResult `json:"results" bson:"results"`
}

// Errors flattens the error lists of every entity result
func (s *RunSummary) Errors() []string {
	var out []string
	for _, r := range s.Results {
		out = append(out, r.Errors...)
	}
	return out
}

// HasErrors reports whether any entity type reported an error
func (s *RunSummary) HasErrors() bool {
	for _, r := range s.Results {
		if len(r.Errors) > 0 {
			return true
		}
	}
	return false
}

// Message renders the single operator-facing message. Counts come first so
// that partial success is always reported.
func (s *RunSummary) Message() string {
	var b strings.Builder
	b.WriteString("Migration finished.")
	for _, r := range s.Results {
		fmt.Fprintf(&b, "\n%s: %d imported", r.Entity.DisplayName(), r.Imported)
		if r.Matched > 0 {
			fmt.Fprintf(&b, ", %d matched existing", r.Matched)
		}
		if r.AlreadyMigrated > 0 {
			fmt.Fprintf(&b, ", %d already migrated", r.AlreadyMigrated)
		}
		if r.Exported > 0 {
			fmt.Fprintf(&b, ", %d exported", r.Exported)
		}
		if r.Skipped > 0 {
			fmt.Fprintf(&b, ", %d skipped", r.Skipped)
		}
		if r.Failed > 0 {
			fmt.Fprintf(&b, ", %d failed", r.Failed)
		}
	}
	if errs := s.Errors(); len(errs) > 0 {
		b.WriteString("\n\nCompleted with some errors:")
		for _, e := range errs {
			b.WriteString("\n- ")
			b.WriteString(e)
		}
	}
	return b.String()
}

// RunStatus is the lifecycle state of a persisted run
type RunStatus string

const (
	RunStatusRunning             RunStatus = "running"
	RunStatusCompleted           RunStatus = "completed"
	RunStatusCompletedWithErrors RunStatus = "completed_with_errors"
	RunStatusFailed              RunStatus = "failed"
)

// RunRecord is a persisted run with its final summary
type RunRecord struct {
	ID          string       `json:"id" bson:"_id"`
	OperatorID  string       `json:"operator_id" bson:"operator_id"`
	FromStoreID string       `json:"from_store_id" bson:"from_store_id"`
	ToStoreID   string       `json:"to_store_id" bson:"to_store_id"`
	Entities    []EntityType `json:"entities" bson:"entities"`
	Status      RunStatus    `json:"status" bson:"status"`
	Summary     *RunSummary  `json:"summary,omitempty" bson:"summary,omitempty"`
	Message     string       `json:"message,omitempty" bson:"message,omitempty"`
	Error       string       `json:"error,omitempty" bson:"error,omitempty"`
	StartedAt   time.Time    `json:"started_at" bson:"started_at"`
	FinishedAt  *time.Time   `json:"finished_at,omitempty" bson:"finished_at,omitempty"`
}

// Finish stores the summary and derives the terminal status
func (r *RunRecord) Finish(summary *RunSummary, runErr error, now time.Time) {
	r.FinishedAt = &now
	r.Summary = summary
	switch {
	case runErr != nil:
		r.Status = RunStatusFailed
		r.Error = runErr.Error()
	case summary != nil && summary.HasErrors():
		r.Status = RunStatusCompletedWithErrors
	default:
		r.Status = RunStatusCompleted
	}
	if summary != nil {
		r.Message = summary.Message()
	}
}
