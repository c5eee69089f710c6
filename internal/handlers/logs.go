package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/veil-waf/veil-detect/internal/db"
	"github.com/veil-waf/veil-detect/internal/detect"
	"github.com/veil-waf/veil-detect/internal/report"
)

const (
	defaultLogLimit = 100
	maxLogLimit     = 1000
)

// LogsHandler is the log-storage API: ingest, listing and aggregates.
type LogsHandler struct {
	store    db.Store
	recorder *report.Recorder
	logger   *slog.Logger
}

// NewLogsHandler creates a LogsHandler. New records go through recorder so
// live subscribers see them.
func NewLogsHandler(store db.Store, recorder *report.Recorder, logger *slog.Logger) *LogsHandler {
	return &LogsHandler{store: store, recorder: recorder, logger: logger}
}

type ingestResponse struct {
	EventID string `json:"event_id"`
	Stored  bool   `json:"stored"`
}

// Ingest handles POST /api/logs. Replaying an event ID is answered 200 with
// stored=false; a new record is answered 201.
func (lh *LogsHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var e report.Event
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&e); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if _, err := uuid.Parse(e.EventID); err != nil {
		jsonError(w, "event_id must be a UUID", http.StatusBadRequest)
		return
	}
	if !e.AttackType.Valid() || e.AttackType == detect.AttackNone {
		jsonError(w, "attack_type must name an attack", http.StatusBadRequest)
		return
	}
	if e.Severity == "" {
		e.Severity = detect.SeverityOf(e.AttackType)
	}
	if !e.Severity.Valid() {
		jsonError(w, "unknown severity", http.StatusBadRequest)
		return
	}

	stored, err := lh.recorder.Record(r.Context(), e.AttackLog())
	if err != nil {
		lh.logger.Error("failed to store attack log", "event_id", e.EventID, "err", err)
		jsonError(w, "failed to store attack log", http.StatusInternalServerError)
		return
	}

	code := http.StatusOK
	if stored {
		code = http.StatusCreated
	}
	writeJSON(w, code, ingestResponse{EventID: e.EventID, Stored: stored})
}

// List handles GET /api/logs?limit=N&type=T.
func (lh *LogsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			jsonError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxLogLimit)
	}

	attackType, ok := attackTypeParam(w, r)
	if !ok {
		return
	}

	logs, err := lh.store.RecentAttackLogs(r.Context(), limit, attackType)
	if err != nil {
		lh.logger.Error("failed to list attack logs", "err", err)
		jsonError(w, "failed to fetch attack logs", http.StatusInternalServerError)
		return
	}
	if logs == nil {
		logs = []db.AttackLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

// Get handles GET /api/logs/{eventID}.
func (lh *LogsHandler) Get(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	if _, err := uuid.Parse(eventID); err != nil {
		jsonError(w, "event_id must be a UUID", http.StatusBadRequest)
		return
	}

	l, err := lh.store.GetAttackLog(r.Context(), eventID)
	if errors.Is(err, db.ErrNotFound) {
		jsonError(w, "attack log not found", http.StatusNotFound)
		return
	}
	if err != nil {
		lh.logger.Error("failed to get attack log", "event_id", eventID, "err", err)
		jsonError(w, "failed to fetch attack log", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// Stats handles GET /api/stats.
func (lh *LogsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := lh.store.AttackStats(r.Context())
	if err != nil {
		lh.logger.Error("failed to compute stats", "err", err)
		jsonError(w, "failed to fetch stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// attackTypeParam reads the optional type filter. NONE is rejected since
// it is never stored.
func attackTypeParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := r.URL.Query().Get("type")
	if raw == "" {
		return "", true
	}
	t := detect.AttackType(raw)
	if !t.Valid() || t == detect.AttackNone {
		jsonError(w, "unknown attack type", http.StatusBadRequest)
		return "", false
	}
	return raw, true
}
