// Package pipelines migrates one entity type at a time from a source store to a
// destination store, recording every item in the migration ledger.
package pipelines

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"runtime/debug"
	"slices"

	"wix-store-migrator/internal/domain"
	"wix-store-migrator/internal/ports"

	"github.com/rs/zerolog"
)

// Job carries the per-run, per-entity inputs of a pipeline
type Job struct {
	RunID       string
	OperatorID  string
	FromStoreID string
	ToStoreID   string // Empty for an export-only run

	SourceToken      string
	DestinationToken string

	Remapper *Remapper
}

// ExportOnly reports whether the job has no destination store
func (j *Job) ExportOnly() bool {
	return j.ToStoreID == ""
}

// Pipeline migrates every item of one entity type
type Pipeline interface {
	EntityType() domain.EntityType
	Run(ctx context.Context, job *Job) domain.EntityResult
}

// Deps are the collaborators shared by every pipeline
type Deps struct {
	Ledger  ports.LedgerStore
	Remote  ports.RemoteClients
	Log     ports.MigrationLogger
	Metrics ports.MetricsRecorder
	Files   ports.FileTransfer
	Logger  zerolog.Logger
}

// progressEvery controls how often a progress line is logged
const progressEvery = 25

type base struct {
	entity domain.EntityType
	deps   Deps
}

func (b *base) EntityType() domain.EntityType {
	return b.entity
}

func (b *base) key(job *Job, sourceKey string) domain.LedgerKey {
	return domain.LedgerKey{
		Entity:      b.entity,
		OperatorID:  job.OperatorID,
		FromStoreID: job.FromStoreID,
		ToStoreID:   job.ToStoreID,
		SourceKey:   sourceKey,
	}
}

func (b *base) log(ctx context.Context, job *Job, sourceKey string, level domain.LogLevel, format string, args ...any) {
	if b.deps.Log == nil {
		return
	}
	b.deps.Log.Log(ctx, domain.LogContext{
		RunID:       job.RunID,
		OperatorID:  job.OperatorID,
		FromStoreID: job.FromStoreID,
		ToStoreID:   job.ToStoreID,
		Entity:      b.entity,
		SourceKey:   sourceKey,
	}, fmt.Sprintf(format, args...), level)
}

func (b *base) itemProcessed(status domain.LedgerStatus) {
	if b.deps.Metrics != nil {
		b.deps.Metrics.ItemProcessed(b.entity, status)
	}
}

func (b *base) progress(ctx context.Context, job *Job, res *domain.EntityResult, seen int) {
	if seen%progressEvery != 0 {
		return
	}
	b.log(ctx, job, "", domain.LevelInfo, "%s: %d processed (%d imported, %d failed)",
		b.entity.DisplayName(), seen, res.Imported, res.Failed)
}

// item describes how one source item is migrated. Only sourceKey and create are required.
type item struct {
	sourceKey string
	desc      domain.Descriptor

	// skip returns a reason to skip the item before any remote call
	skip func() string
	// prepare strips system fields and remaps references; an error fails the item
	prepare func(ctx context.Context) error
	// find looks the item up in the destination by its natural key
	find func(ctx context.Context) (string, error)
	// create writes the item; matched reports that an existing item was linked instead
	create func(ctx context.Context) (id string, matched bool, err error)
	// record stores the mapping for later items and entity types
	record func(destID string)
	// after performs dependent writes; returned errors do not fail the item
	after func(ctx context.Context, destID string, matched bool) []error
	// checkpoint keeps the row pending with its destination id until dependent
	// writes finish, so an interrupted item resumes without a second create
	checkpoint bool
}

// processItem runs one item through the ledger lifecycle. Panics and errors
// stop at this boundary.
func (b *base) processItem(ctx context.Context, job *Job, res *domain.EntityResult, it item) (status domain.LedgerStatus, destID string) {
	key := b.key(job, it.sourceKey)
	label := it.desc.Label
	if label == "" {
		label = it.sourceKey
	}

	defer func() {
		if r := recover(); r != nil {
			b.deps.Logger.Error().
				Str("entity", string(b.entity)).
				Str("sourceKey", it.sourceKey).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Recovered from panic while migrating item")
			msg := fmt.Sprintf("unexpected error: %v", r)
			b.fail(ctx, job, res, key, label, msg)
			status, destID = domain.StatusFailed, ""
		}
	}()

	entry, err := b.deps.Ledger.UpsertPending(ctx, key, it.desc)
	if err != nil {
		res.Failed++
		res.AddError("%s %s: ledger unavailable: %v", b.entity.DisplayName(), label, err)
		b.itemProcessed(domain.StatusFailed)
		return domain.StatusFailed, ""
	}

	if entry.IsSuccess() {
		res.AlreadyMigrated++
		if it.record != nil && entry.DestinationID != "" {
			it.record(entry.DestinationID)
		}
		b.itemProcessed(domain.StatusSuccess)
		return domain.StatusSuccess, entry.DestinationID
	}

	if it.skip != nil {
		if reason := it.skip(); reason != "" {
			b.mark(ctx, key, domain.LedgerResult{Status: domain.StatusSkipped, ErrorMessage: reason})
			res.Skipped++
			b.log(ctx, job, it.sourceKey, domain.LevelWarn, "Skipped %s: %s", label, reason)
			b.itemProcessed(domain.StatusSkipped)
			return domain.StatusSkipped, ""
		}
	}

	if it.prepare != nil {
		if err := it.prepare(ctx); err != nil {
			b.fail(ctx, job, res, key, label, failureMessage(err))
			return domain.StatusFailed, ""
		}
	}

	// a pending row with a destination id was created by an interrupted run
	resumed := it.checkpoint && entry.DestinationID != ""
	matched := false
	destID = entry.DestinationID

	if !resumed {
		if it.find != nil {
			found, err := it.find(ctx)
			if err != nil {
				b.fail(ctx, job, res, key, label, failureMessage(err))
				return domain.StatusFailed, ""
			}
			if found != "" {
				destID, matched = found, true
			}
		}
		if !matched {
			destID, matched, err = it.create(ctx)
			if err != nil {
				b.fail(ctx, job, res, key, label, failureMessage(err))
				return domain.StatusFailed, ""
			}
		}
	}

	if it.checkpoint && it.after != nil && !resumed {
		b.mark(ctx, key, domain.LedgerResult{DestinationID: destID, Status: domain.StatusPending})
	}

	if !it.checkpoint {
		b.mark(ctx, key, domain.LedgerResult{DestinationID: destID, Status: domain.StatusSuccess})
	}
	if it.record != nil {
		it.record(destID)
	}

	if it.after != nil {
		for _, depErr := range it.after(ctx, destID, matched) {
			res.AddError("%s %s: %v", b.entity.DisplayName(), label, depErr)
			b.log(ctx, job, it.sourceKey, domain.LevelWarn, "Dependent write failed for %s: %v", label, depErr)
		}
	}

	if it.checkpoint {
		b.mark(ctx, key, domain.LedgerResult{DestinationID: destID, Status: domain.StatusSuccess})
	}

	switch {
	case matched:
		res.Matched++
		b.log(ctx, job, it.sourceKey, domain.LevelSuccess, "Matched existing %s", label)
	case resumed:
		res.Imported++
		b.log(ctx, job, it.sourceKey, domain.LevelSuccess, "Resumed %s", label)
	default:
		res.Imported++
		b.log(ctx, job, it.sourceKey, domain.LevelSuccess, "Imported %s", label)
	}
	b.itemProcessed(domain.StatusSuccess)
	return domain.StatusSuccess, destID
}

func (b *base) fail(ctx context.Context, job *Job, res *domain.EntityResult, key domain.LedgerKey, label, msg string) {
	b.mark(ctx, key, domain.LedgerResult{Status: domain.StatusFailed, ErrorMessage: msg})
	res.Failed++
	res.AddError("%s %s: %s", b.entity.DisplayName(), label, msg)
	b.log(ctx, job, key.SourceKey, domain.LevelError, "Failed %s: %s", label, msg)
	b.itemProcessed(domain.StatusFailed)
}

// mark writes a ledger result; a failed write is logged and otherwise ignored
// since the next run re-attempts any row that is not success.
func (b *base) mark(ctx context.Context, key domain.LedgerKey, result domain.LedgerResult) {
	if err := b.deps.Ledger.MarkResult(ctx, key, result); err != nil {
		b.deps.Logger.Error().
			Err(err).
			Str("entity", string(key.Entity)).
			Str("sourceKey", key.SourceKey).
			Str("status", string(result.Status)).
			Msg("Failed to write ledger result")
	}
}

// failureMessage keeps a rejected write's response body verbatim
func failureMessage(err error) string {
	var re *ports.RemoteError
	if errors.As(err, &re) {
		if re.Body != "" {
			return re.Body
		}
		return fmt.Sprintf("%s failed with status %d", re.Op, re.Status)
	}
	return err.Error()
}

// listAll drains a listing into memory. Listings restart from the first page on every run.
func listAll(seq iter.Seq2[domain.RawItem, error]) ([]domain.RawItem, error) {
	var items []domain.RawItem
	for item, err := range seq {
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// configFailure aborts an entity type with a single error
func configFailure(res *domain.EntityResult, format string, args ...any) domain.EntityResult {
	res.Fail(fmt.Errorf(format, args...))
	return *res
}

// systemFields are remote-assigned and never sent back on create
var systemFields = []string{
	"id", "_id", "revision",
	"createdDate", "updatedDate", "_createdDate", "_updatedDate",
	"dateCreated", "lastUpdated",
}

// stripSystem returns a copy of r without system fields and the extra paths
func stripSystem(r domain.RawItem, extra ...string) domain.RawItem {
	return r.Without(slices.Concat(systemFields, extra)...)
}
