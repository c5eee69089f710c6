// Package report forwards attack verdicts to log storage, either over HTTP to
// a separate log service or straight into the local store.
package report

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/veil-waf/veil-detect/internal/db"
	"github.com/veil-waf/veil-detect/internal/detect"
)

// Event is an attack verdict plus the request context log storage keeps.
// It is also the body of POST /api/logs.
type Event struct {
	EventID string `json:"event_id"`
	detect.Verdict
	URL        string `json:"url"`
	HTTPMethod string `json:"http_method,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
}

// NewEvent pairs a verdict with its request under a fresh event ID.
func NewEvent(req detect.Request, v detect.Verdict) Event {
	return Event{
		EventID:    uuid.NewString(),
		Verdict:    v,
		URL:        req.URL,
		HTTPMethod: req.HTTPMethod,
		UserAgent:  req.UserAgent,
	}
}

// AttackLog converts the event to a storage record. An unparseable
// timestamp is left zero so the store stamps arrival time.
func (e Event) AttackLog() *db.AttackLog {
	l := &db.AttackLog{
		EventID:    e.EventID,
		IPAddress:  e.IPAddress,
		URL:        e.URL,
		HTTPMethod: e.HTTPMethod,
		Payload:    e.Payload,
		AttackType: string(e.AttackType),
		Severity:   string(e.Severity),
		Blocked:    e.ShouldBlock,
		UserAgent:  e.UserAgent,
	}
	if ts, err := time.Parse(detect.TimestampLayout, e.Timestamp); err == nil {
		l.Timestamp = ts
	}
	return l
}

// Reporter delivers one event.
type Reporter interface {
	Report(ctx context.Context, e Event) error
}

// Publisher receives records after they are first stored.
type Publisher interface {
	PublishAttack(l db.AttackLog)
}

// Recorder stores records and publishes the ones that were new.
type Recorder struct {
	store      db.Store
	publishers []Publisher
}

// NewRecorder creates a Recorder over store.
func NewRecorder(store db.Store, publishers ...Publisher) *Recorder {
	return &Recorder{store: store, publishers: publishers}
}

// Record inserts l and reports whether it was new. Duplicates are not
// republished.
func (r *Recorder) Record(ctx context.Context, l *db.AttackLog) (bool, error) {
	inserted, err := r.store.InsertAttackLog(ctx, l)
	if err != nil || !inserted {
		return inserted, err
	}
	for _, p := range r.publishers {
		p.PublishAttack(*l)
	}
	return true, nil
}

// StoreReporter writes events straight to the local store.
type StoreReporter struct {
	recorder *Recorder
}

// NewStoreReporter creates a reporter over recorder.
func NewStoreReporter(recorder *Recorder) *StoreReporter {
	return &StoreReporter{recorder: recorder}
}

func (s *StoreReporter) Report(ctx context.Context, e Event) error {
	_, err := s.recorder.Record(ctx, e.AttackLog())
	return err
}
