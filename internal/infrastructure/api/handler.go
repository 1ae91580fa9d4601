// Package api is the operator HTTP surface of the migrator.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"wix-store-migrator/internal/application"
	"wix-store-migrator/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handler serves the run, store and ledger endpoints
type Handler struct {
	runs      *application.RunService
	stores    *application.StoreService
	ledger    *application.LedgerService
	heartbeat time.Duration
	logger    zerolog.Logger
}

// NewHandler creates the operator API handler
func NewHandler(
	runs *application.RunService,
	stores *application.StoreService,
	ledger *application.LedgerService,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		runs:      runs,
		stores:    stores,
		ledger:    ledger,
		heartbeat: 15 * time.Second,
		logger:    logger,
	}
}

type startRunRequest struct {
	FromStoreID string   `json:"from_store_id"`
	ToStoreID   string   `json:"to_store_id"`
	Entities    []string `json:"entities"`
}

type registerStoreRequest struct {
	InstanceID  string `json:"instance_id"`
	DisplayName string `json:"display_name"`
}

type entityInfo struct {
	Type        domain.EntityType `json:"type"`
	DisplayName string            `json:"display_name"`
	ExportOnly  bool              `json:"export_only"`
}

// StartRun starts a migration run and answers 202 with the run record
func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	run, err := h.runs.Start(r.Context(), application.StartRunInput{
		OperatorID:  domain.GetOperatorIDFromContext(r.Context()),
		FromStoreID: req.FromStoreID,
		ToStoreID:   req.ToStoreID,
		Entities:    req.Entities,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/v1/runs/"+run.ID)
	writeJSON(w, http.StatusAccepted, run)
}

// ListRuns returns the operator's latest runs
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.runs.ListRuns(r.Context(), domain.GetOperatorIDFromContext(r.Context()), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if runs == nil {
		runs = []*domain.RunRecord{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// GetRun returns one run with its summary
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.GetRun(r.Context(), domain.GetOperatorIDFromContext(r.Context()), chi.URLParam(r, "runID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// RunEvents streams the progress of a run as Server-Sent Events
func (h *Handler) RunEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming is not supported")
		return
	}

	run, events, unsubscribe, err := h.runs.Subscribe(ctx, domain.GetOperatorIDFromContext(ctx), chi.URLParam(r, "runID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if run.Status != domain.RunStatusRunning {
		h.writeEvent(w, finishedEvent(run))
		flusher.Flush()
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case event, ok := <-events:
			if !ok {
				return
			}
			h.writeEvent(w, event)
			flusher.Flush()
			if event.Done {
				return
			}
		}
	}
}

func finishedEvent(run *domain.RunRecord) domain.ProgressEvent {
	event := domain.ProgressEvent{
		RunID:   run.ID,
		Level:   domain.LevelSuccess,
		Message: run.Message,
		Done:    true,
	}
	if run.FinishedAt != nil {
		event.Timestamp = *run.FinishedAt
	}
	switch run.Status {
	case domain.RunStatusFailed:
		event.Level = domain.LevelError
		event.Message = run.Error
	case domain.RunStatusCompletedWithErrors:
		event.Level = domain.LevelWarn
	}
	return event
}

func (h *Handler) writeEvent(w http.ResponseWriter, event domain.ProgressEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("runID", event.RunID).Msg("Failed to marshal progress event")
		return
	}
	name := "progress"
	if event.Done {
		name = "done"
	}
	fmt.Fprintf(w, "event: %s\n", name)
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func ledgerQuery(r *http.Request) application.LedgerQuery {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	exportRows, _ := strconv.ParseBool(q.Get("export_rows"))
	return application.LedgerQuery{
		OperatorID:  domain.GetOperatorIDFromContext(r.Context()),
		FromStoreID: q.Get("from"),
		ToStoreID:   q.Get("to"),
		Status:      q.Get("status"),
		ExportRows:  exportRows,
		Limit:       limit,
	}
}

// ListLedger returns the ledger rows of one entity type
func (h *Handler) ListLedger(w http.ResponseWriter, r *http.Request) {
	entity, err := domain.ParseEntityType(chi.URLParam(r, "entity"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows, err := h.ledger.List(r.Context(), entity, ledgerQuery(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if rows == nil {
		rows = []*domain.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// ExportLedger downloads the ledger as an xlsx workbook. The entity "all"
// exports one sheet per entity type.
func (h *Handler) ExportLedger(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "entity")
	query := ledgerQuery(r)
	query.Limit = 0
	if name != "all" {
		entity, err := domain.ParseEntityType(name)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		query.Entities = []domain.EntityType{entity}
		name = string(entity)
	}

	sheets, err := h.ledger.Report(r.Context(), query)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="ledger-%s.xlsx"`, name))
	if err := WriteLedgerWorkbook(w, sheets); err != nil {
		h.logger.Error().Err(err).Msg("Failed to write ledger workbook")
	}
}

// RegisterStore registers or renames a store instance
func (h *Handler) RegisterStore(w http.ResponseWriter, r *http.Request) {
	var req registerStoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	store, err := h.stores.Register(r.Context(), application.RegisterStoreInput{
		OperatorID:  domain.GetOperatorIDFromContext(r.Context()),
		InstanceID:  req.InstanceID,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, store)
}

// ListStores returns the operator's stores
func (h *Handler) ListStores(w http.ResponseWriter, r *http.Request) {
	stores, err := h.stores.List(r.Context(), domain.GetOperatorIDFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if stores == nil {
		stores = []*domain.Store{}
	}
	writeJSON(w, http.StatusOK, stores)
}

// ListEntities returns the entity types in migration order
func (h *Handler) ListEntities(w http.ResponseWriter, _ *http.Request) {
	var out []entityInfo
	for _, entity := range domain.MigrationOrder() {
		out = append(out, entityInfo{
			Type:        entity,
			DisplayName: entity.DisplayName(),
			ExportOnly:  entity.SupportsExportOnly(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// fail maps service errors to status codes
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, application.ErrInvalidRequest),
		errors.Is(err, domain.ErrUnknownEntityType),
		errors.Is(err, domain.ErrSameStore):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrRunInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrRunNotFound),
		errors.Is(err, domain.ErrStoreNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
