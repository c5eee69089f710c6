package report

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/veil-waf/veil-detect/internal/metrics"
)

const reportTimeout = 10 * time.Second

// Dispatcher queues events off the request path and delivers them from a
// single worker. When the queue is full new events are dropped and counted.
type Dispatcher struct {
	queue    chan Event
	reporter Reporter
	metrics  *metrics.Metrics
	logger   *slog.Logger
	dropped  atomic.Int64
}

// NewDispatcher creates a dispatcher with a queue of size events.
func NewDispatcher(reporter Reporter, size int, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	if size <= 0 {
		size = 1
	}
	return &Dispatcher{
		queue:    make(chan Event, size),
		reporter: reporter,
		metrics:  m,
		logger:   logger,
	}
}

// Enqueue never blocks. It reports false when the event was dropped.
func (d *Dispatcher) Enqueue(e Event) bool {
	select {
	case d.queue <- e:
		return true
	default:
		d.dropped.Add(1)
		d.metrics.ReportDropped()
		d.logger.Warn("report queue full, event dropped", "event_id", e.EventID, "attack_type", e.AttackType)
		return false
	}
}

// Dropped returns the number of events lost to a full queue.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Pending returns the number of queued events.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Run delivers events until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-d.queue:
			d.deliver(ctx, e)
		}
	}
}

// Drain delivers whatever is still queued, giving up when ctx is done.
func (d *Dispatcher) Drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			if n := len(d.queue); n > 0 {
				d.logger.Warn("report drain incomplete", "pending", n)
			}
			return
		case e := <-d.queue:
			d.deliver(ctx, e)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, e Event) {
	ctx, cancel := context.WithTimeout(ctx, reportTimeout)
	defer cancel()

	err := d.reporter.Report(ctx, e)
	d.metrics.ReportSent(err)
	if err != nil {
		d.logger.Error("report event failed", "event_id", e.EventID, "err", err)
		return
	}
	d.logger.Debug("event reported", "event_id", e.EventID, "attack_type", e.AttackType)
}
