package detect

import (
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/veil-waf/veil-detect/internal/ratelimit"
)

// Inspection is what each detector sees for one request.
type Inspection struct {
	Request   *Request
	Fields    Fields
	IPAddress string
	Login     LoginObservation
}

// Detector inspects a request for one attack category.
type Detector interface {
	Type() AttackType
	Inspect(in *Inspection) (payload string, hit bool)
}

// DetectorFactory builds the ordered detector chain for a configuration.
type DetectorFactory func(cfg Config) []Detector

// DefaultDetectors returns the chain in priority order: SQLI, XSS, path
// traversal, command injection, brute force, SSRF, suspicious user agent.
func DefaultDetectors(cfg Config) []Detector {
	return []Detector{
		patternDetector{attack: AttackSQLI, patterns: cfg.Rules.list(CategorySQLI)},
		patternDetector{attack: AttackXSS, patterns: cfg.Rules.list(CategoryXSS)},
		patternDetector{attack: AttackPathTraversal, patterns: cfg.Rules.list(CategoryPathTraversal)},
		patternDetector{attack: AttackCommandInjection, patterns: cfg.Rules.list(CategoryCommandInjection)},
		bruteForceDetector{},
		ssrfDetector{},
		identityDetector{tokens: cfg.Rules.list(CategorySuspiciousUA)},
	}
}

type snapshot struct {
	cfg       Config
	detectors []Detector
}

// Engine is the decision engine. It is safe for concurrent use: the rule
// snapshot is swapped atomically and the login-attempt log carries its own
// lock.
type Engine struct {
	state   atomic.Pointer[snapshot]
	tracker *BruteForceTracker
	factory DetectorFactory
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source for timestamps and the login window.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger used for detector faults.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithTracker shares an existing brute-force tracker.
func WithTracker(t *BruteForceTracker) Option {
	return func(e *Engine) { e.tracker = t }
}

// WithDetectors replaces the detector chain factory.
func WithDetectors(f DetectorFactory) Option {
	return func(e *Engine) { e.factory = f }
}

// New creates an engine for cfg. Zero-valued config fields take their
// defaults.
func New(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		factory: DefaultDetectors,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracker == nil {
		e.tracker = NewBruteForceTracker(ratelimit.NewWithClock(e.now))
	}
	e.Reload(cfg)
	return e
}

// Reload swaps in a new configuration. In-flight classifications finish on
// the snapshot they started with; login history is kept.
func (e *Engine) Reload(cfg Config) {
	cfg = cfg.normalized()
	e.state.Store(&snapshot{cfg: cfg, detectors: e.factory(cfg)})
}

// Config returns the active configuration.
func (e *Engine) Config() Config {
	return e.state.Load().cfg
}

// Order returns the attack types of the active chain in priority order.
func (e *Engine) Order() []AttackType {
	snap := e.state.Load()
	out := make([]AttackType, 0, len(snap.detectors))
	for _, d := range snap.detectors {
		out = append(out, d.Type())
	}
	return out
}

// Tracker returns the brute-force tracker.
func (e *Engine) Tracker() *BruteForceTracker {
	return e.tracker
}

// Classify runs the detector chain over req and returns the first hit.
// Login-shaped requests are always recorded, even when an earlier detector
// wins, so the attempt window stays accurate.
func (e *Engine) Classify(req Request) Verdict {
	snap := e.state.Load()
	now := e.now()
	ip := strings.TrimSpace(req.IPAddress)

	in := &Inspection{
		Request:   &req,
		Fields:    Extract(&req),
		IPAddress: ip,
		Login: e.tracker.Observe(&req, ip,
			snap.cfg.BruteForceWindow, snap.cfg.BruteForceThreshold),
	}

	v := Verdict{
		AttackType: AttackNone,
		Severity:   SeverityOf(AttackNone),
		IPAddress:  ip,
		Timestamp:  FormatTimestamp(now),
	}
	for _, d := range snap.detectors {
		payload, hit := e.inspect(d, in)
		if !hit {
			continue
		}
		v.IsAttack = true
		v.AttackType = d.Type()
		v.Severity = SeverityOf(d.Type())
		v.Payload = payload
		break
	}
	v.ShouldBlock = v.IsAttack && snap.cfg.Mode == ModeBlock
	return v
}

// inspect runs one detector, treating a panic as no hit.
func (e *Engine) inspect(d Detector, in *Inspection) (payload string, hit bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("detector panicked", "detector", string(d.Type()), "panic", r)
			payload, hit = "", false
		}
	}()
	return d.Inspect(in)
}
