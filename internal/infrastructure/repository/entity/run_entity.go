package entity

import (
	"time"

	"wix-store-migrator/internal/domain"
)

// MongoEntityResultDoc is the per-entity part of a stored run summary
type MongoEntityResultDoc struct {
	Entity          string   `bson:"entity"`
	Imported        int      `bson:"imported"`
	Matched         int      `bson:"matched"`
	AlreadyMigrated int      `bson:"alreadyMigrated"`
	Skipped         int      `bson:"skipped"`
	Failed          int      `bson:"failed"`
	Exported        int      `bson:"exported"`
	Errors          []string `bson:"errors,omitempty"`
	DurationMillis  int64    `bson:"durationMs"`
}

// MongoRunDoc represents a migration run in MongoDB
type MongoRunDoc struct {
	ID          string                 `bson:"_id"`
	OperatorID  string                 `bson:"operatorId"`
	FromStoreID string                 `bson:"fromStoreId"`
	ToStoreID   string                 `bson:"toStoreId"`
	Entities    []string               `bson:"entities"`
	Status      string                 `bson:"status"`
	Results     []MongoEntityResultDoc `bson:"results,omitempty"`
	Message     string                 `bson:"message,omitempty"`
	Error       string                 `bson:"error,omitempty"`
	StartedAt   time.Time              `bson:"startedAt"`
	FinishedAt  *time.Time             `bson:"finishedAt,omitempty"`
}

// ToDomain converts the MongoDB document to a domain entity
func (d *MongoRunDoc) ToDomain() *domain.RunRecord {
	run := &domain.RunRecord{
		ID:          d.ID,
		OperatorID:  d.OperatorID,
		FromStoreID: d.FromStoreID,
		ToStoreID:   d.ToStoreID,
		Status:      domain.RunStatus(d.Status),
		Message:     d.Message,
		Error:       d.Error,
		StartedAt:   d.StartedAt,
		FinishedAt:  d.FinishedAt,
	}
	for _, e := range d.Entities {
		run.Entities = append(run.Entities, domain.EntityType(e))
	}
	if len(d.Results) > 0 {
		summary := &domain.RunSummary{}
		for _, r := range d.Results {
			summary.Results = append(summary.Results, domain.EntityResult{
				Entity:          domain.EntityType(r.Entity),
				Imported:        r.Imported,
				Matched:         r.Matched,
				AlreadyMigrated: r.AlreadyMigrated,
				Skipped:         r.Skipped,
				Failed:          r.Failed,
				Exported:        r.Exported,
				Errors:          r.Errors,
				Duration:        time.Duration(r.DurationMillis) * time.Millisecond,
			})
		}
		run.Summary = summary
	}
	return run
}

// MongoRunDocFromDomain converts a domain entity to a MongoDB document
func MongoRunDocFromDomain(run *domain.RunRecord) *MongoRunDoc {
	doc := &MongoRunDoc{
		ID:          run.ID,
		OperatorID:  run.OperatorID,
		FromStoreID: run.FromStoreID,
		ToStoreID:   run.ToStoreID,
		Status:      string(run.Status),
		Message:     run.Message,
		Error:       run.Error,
		StartedAt:   run.StartedAt,
		FinishedAt:  run.FinishedAt,
	}
	for _, e := range run.Entities {
		doc.Entities = append(doc.Entities, string(e))
	}
	if run.Summary != nil {
		for _, r := range run.Summary.Results {
			doc.Results = append(doc.Results, MongoEntityResultDoc{
				Entity:          string(r.Entity),
				Imported:        r.Imported,
				Matched:         r.Matched,
				AlreadyMigrated: r.AlreadyMigrated,
				Skipped:         r.Skipped,
				Failed:          r.Failed,
				Exported:        r.Exported,
				Errors:          r.Errors,
				DurationMillis:  r.Duration.Milliseconds(),
			})
		}
	}
	return doc
}
