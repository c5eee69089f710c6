package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/veil-waf/veil-detect/internal/detect"
	"github.com/veil-waf/veil-detect/internal/guard"
	"github.com/veil-waf/veil-detect/internal/ratelimit"
)

// maxBatch bounds how many descriptors one POST /v1/detect may carry.
const maxBatch = 100

// DetectHandler classifies request descriptors sent by other services.
type DetectHandler struct {
	inspector *guard.Inspector
	limiter   *ratelimit.Log
	bucket    ratelimit.Bucket
	logger    *slog.Logger
}

// NewDetectHandler creates a DetectHandler. limiter may be nil to disable
// rate limiting.
func NewDetectHandler(inspector *guard.Inspector, limiter *ratelimit.Log, bucket ratelimit.Bucket, logger *slog.Logger) *DetectHandler {
	return &DetectHandler{inspector: inspector, limiter: limiter, bucket: bucket, logger: logger}
}

// Detect handles POST /v1/detect. A JSON object yields one verdict; an
// array yields an array of verdicts in input order.
func (dh *DetectHandler) Detect(w http.ResponseWriter, r *http.Request) {
	if dh.limiter != nil && dh.limiter.CheckBucket(w, r, "detect", dh.bucket) {
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "failed to read body", http.StatusBadRequest)
		return
	}

	reqs, err := detect.DecodeRequests(data)
	if err != nil {
		jsonError(w, "body must be a JSON object or array of objects", http.StatusBadRequest)
		return
	}
	if len(reqs) > maxBatch {
		jsonError(w, "too many descriptors in one batch", http.StatusRequestEntityTooLarge)
		return
	}

	verdicts := make([]detect.Verdict, len(reqs))
	for i, req := range reqs {
		verdicts[i] = dh.inspector.Inspect(req)
	}

	if gjson.ParseBytes(data).IsArray() {
		writeJSON(w, http.StatusOK, verdicts)
		return
	}
	writeJSON(w, http.StatusOK, verdicts[0])
}

type rulesResponse struct {
	Mode                    detect.Mode                  `json:"mode"`
	BruteForceWindowSeconds int                          `json:"brute_force_window_seconds"`
	BruteForceThreshold     int                          `json:"brute_force_threshold"`
	DetectorOrder           []detect.AttackType          `json:"detector_order"`
	Patterns                map[detect.Category][]string `json:"patterns"`
	TrackedLoginSources     int                          `json:"tracked_login_sources"`
}

// Rules handles GET /v1/rules and reports the effective configuration.
func (dh *DetectHandler) Rules(w http.ResponseWriter, r *http.Request) {
	engine := dh.inspector.Engine()
	cfg := engine.Config()
	writeJSON(w, http.StatusOK, rulesResponse{
		Mode:                    cfg.Mode,
		BruteForceWindowSeconds: int(cfg.BruteForceWindow.Seconds()),
		BruteForceThreshold:     cfg.BruteForceThreshold,
		DetectorOrder:           engine.Order(),
		Patterns:                cfg.Rules.Map(),
		TrackedLoginSources:     engine.Tracker().Tracked(),
	})
}
