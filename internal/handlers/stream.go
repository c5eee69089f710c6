package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/veil-waf/veil-detect/internal/db"
	"github.com/veil-waf/veil-detect/internal/sse"
)

const (
	hydrateCount      = 20
	keepaliveInterval = 30 * time.Second
)

// StreamHandler serves SSE streams of stored attack records.
type StreamHandler struct {
	hub       *sse.Hub
	store     db.Store
	logger    *slog.Logger
	keepalive time.Duration
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(hub *sse.Hub, store db.Store, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{hub: hub, store: store, logger: logger, keepalive: keepaliveInterval}
}

// HandleSSE handles GET /api/stream/events?type=T.
// It replays the most recent records oldest first, then streams live
// records via SSE with periodic keepalives.
func (sh *StreamHandler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	attackType, ok := attackTypeParam(w, r)
	if !ok {
		return
	}
	topic := sse.TopicAll
	if attackType != "" {
		topic = attackType
	}

	// Subscribe before hydrating so nothing stored in between is missed.
	ch, cancel := sh.hub.Subscribe(topic)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	recent, err := sh.store.RecentAttackLogs(r.Context(), hydrateCount, attackType)
	if err != nil {
		sh.logger.Warn("sse: hydrate failed", "err", err)
	}
	for i := len(recent) - 1; i >= 0; i-- {
		data, _ := json.Marshal(recent[i])
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", sse.EventAttack, data)
	}
	flusher.Flush()

	keepalive := time.NewTicker(sh.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, event.Data)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}
