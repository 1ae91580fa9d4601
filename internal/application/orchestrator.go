package application

import (
	"context"
	"fmt"
	"time"

	"wix-store-migrator/internal/application/pipelines"
	"wix-store-migrator/internal/domain"
	"wix-store-migrator/internal/ports"

	"github.com/rs/zerolog"
)

// Orchestrator runs the selected pipelines of a migration in dependency order
type Orchestrator struct {
	pipelines    map[domain.EntityType]pipelines.Pipeline
	stores       ports.StoreRepository
	tokens       ports.TokenProvider
	migrationLog ports.MigrationLogger
	metrics      ports.MetricsRecorder
	logger       zerolog.Logger
}

// NewOrchestrator creates an orchestrator. Every entity type must have a pipeline.
func NewOrchestrator(
	registry map[domain.EntityType]pipelines.Pipeline,
	stores ports.StoreRepository,
	tokens ports.TokenProvider,
	migrationLog ports.MigrationLogger,
	metrics ports.MetricsRecorder,
	logger zerolog.Logger,
) (*Orchestrator, error) {
	for _, entity := range domain.MigrationOrder() {
		if _, ok := registry[entity]; !ok {
			return nil, fmt.Errorf("no pipeline registered for %s", entity)
		}
	}
	return &Orchestrator{
		pipelines:    registry,
		stores:       stores,
		tokens:       tokens,
		migrationLog: migrationLog,
		metrics:      metrics,
		logger:       logger,
	}, nil
}

// Run migrates the requested entity types one after the other. A failing entity
// type is reported in the summary and never stops the run; only request level
// problems and cancellation return an error.
func (o *Orchestrator) Run(ctx context.Context, runID string, req domain.RunRequest) (*domain.RunSummary, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := o.checkStore(ctx, req.OperatorID, req.FromStoreID); err != nil {
		return nil, err
	}
	if req.ToStoreID != "" {
		if err := o.checkStore(ctx, req.OperatorID, req.ToStoreID); err != nil {
			return nil, err
		}
	}

	lc := domain.LogContext{
		RunID:       runID,
		OperatorID:  req.OperatorID,
		FromStoreID: req.FromStoreID,
		ToStoreID:   req.ToStoreID,
	}
	remapper := pipelines.NewRemapper()
	summary := &domain.RunSummary{}

	for _, entity := range domain.SortByMigrationOrder(req.Entities) {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("run cancelled before %s: %w", entity, err)
		}

		lc.Entity = entity
		o.log(ctx, lc, domain.LevelInfo, fmt.Sprintf("Migrating %s", entity.DisplayName()))

		start := time.Now()
		res := o.runEntity(ctx, runID, req, entity, remapper)
		res.Duration = time.Since(start)
		if o.metrics != nil {
			o.metrics.PipelineFinished(entity, res.Duration)
		}

		o.logger.Info().
			Str("runID", runID).
			Str("entity", string(entity)).
			Int("imported", res.Imported).
			Int("matched", res.Matched).
			Int("alreadyMigrated", res.AlreadyMigrated).
			Int("skipped", res.Skipped).
			Int("failed", res.Failed).
			Int("exported", res.Exported).
			Int("errors", len(res.Errors)).
			Dur("duration", res.Duration).
			Msg("Entity type finished")

		level := domain.LevelSuccess
		if len(res.Errors) > 0 || res.Failed > 0 {
			level = domain.LevelWarn
		}
		o.log(ctx, lc, level, fmt.Sprintf("%s finished: %d imported, %d matched, %d already migrated, %d failed",
			entity.DisplayName(), res.Imported, res.Matched, res.AlreadyMigrated, res.Failed))

		summary.Results = append(summary.Results, res)
	}

	return summary, nil
}

func (o *Orchestrator) runEntity(ctx context.Context, runID string, req domain.RunRequest, entity domain.EntityType, remapper *pipelines.Remapper) domain.EntityResult {
	res := domain.NewEntityResult(entity)

	if req.ToStoreID == "" && !entity.SupportsExportOnly() {
		res.Fail(domain.ErrMissingDestination)
		return res
	}

	sourceToken, err := o.tokens.GetAccessToken(ctx, req.FromStoreID)
	if err != nil {
		res.Fail(fmt.Errorf("failed to authorise source store: %w", err))
		return res
	}
	var destinationToken string
	if req.ToStoreID != "" {
		destinationToken, err = o.tokens.GetAccessToken(ctx, req.ToStoreID)
		if err != nil {
			res.Fail(fmt.Errorf("failed to authorise destination store: %w", err))
			return res
		}
	}

	return o.pipelines[entity].Run(ctx, &pipelines.Job{
		RunID:            runID,
		OperatorID:       req.OperatorID,
		FromStoreID:      req.FromStoreID,
		ToStoreID:        req.ToStoreID,
		SourceToken:      sourceToken,
		DestinationToken: destinationToken,
		Remapper:         remapper,
	})
}

func (o *Orchestrator) checkStore(ctx context.Context, operatorID, instanceID string) error {
	store, err := o.stores.GetByInstanceID(ctx, operatorID, instanceID)
	if err != nil {
		return fmt.Errorf("failed to get store: %w", err)
	}
	if store == nil {
		return fmt.Errorf("%w: %s", domain.ErrStoreNotFound, instanceID)
	}
	return nil
}

func (o *Orchestrator) log(ctx context.Context, lc domain.LogContext, level domain.LogLevel, message string) {
	if o.migrationLog != nil {
		o.migrationLog.Log(ctx, lc, message, level)
	}
}
