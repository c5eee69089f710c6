package guard

import (
	"log/slog"
	"time"

	"github.com/veil-waf/veil-detect/internal/detect"
	"github.com/veil-waf/veil-detect/internal/metrics"
	"github.com/veil-waf/veil-detect/internal/report"
)

// Enqueuer accepts attack events for asynchronous delivery.
type Enqueuer interface {
	Enqueue(e report.Event) bool
}

// Inspector classifies descriptors and forwards attacks to the reporter.
type Inspector struct {
	engine  *detect.Engine
	queue   Enqueuer
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewInspector creates an Inspector. queue and m may be nil.
func NewInspector(engine *detect.Engine, queue Enqueuer, m *metrics.Metrics, logger *slog.Logger) *Inspector {
	return &Inspector{engine: engine, queue: queue, metrics: m, logger: logger}
}

// Engine returns the underlying detection engine.
func (i *Inspector) Engine() *detect.Engine {
	return i.engine
}

// Inspect classifies req. Attack verdicts are logged and enqueued; the call
// never waits on delivery.
func (i *Inspector) Inspect(req detect.Request) detect.Verdict {
	start := time.Now()
	v := i.engine.Classify(req)
	i.metrics.ObserveVerdict(v, time.Since(start))

	if !v.IsAttack {
		return v
	}
	i.logger.Warn("attack detected",
		"attack_type", v.AttackType,
		"severity", v.Severity,
		"ip", v.IPAddress,
		"url", req.URL,
		"payload", v.Payload,
		"blocked", v.ShouldBlock,
	)
	if i.queue != nil {
		i.queue.Enqueue(report.NewEvent(req, v))
	}
	return v
}
