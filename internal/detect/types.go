// Package detect classifies normalized HTTP request descriptors into attack
// categories. It performs no I/O: callers hand it a Request and receive a
// Verdict.
package detect

import "time"

// AttackType is the category tag reported in a Verdict.
type AttackType string

const (
	AttackSQLI             AttackType = "SQLI"
	AttackXSS              AttackType = "XSS"
	AttackPathTraversal    AttackType = "PATH_TRAVERSAL"
	AttackCommandInjection AttackType = "COMMAND_INJECTION"
	AttackBruteForce       AttackType = "BRUTE_FORCE"
	AttackSSRF             AttackType = "SSRF"
	AttackSuspiciousUA     AttackType = "SUSPICIOUS_UA"
	AttackNone             AttackType = "NONE"
)

// AttackTypes lists every reportable category in detection priority order,
// NONE last.
var AttackTypes = []AttackType{
	AttackSQLI,
	AttackXSS,
	AttackPathTraversal,
	AttackCommandInjection,
	AttackBruteForce,
	AttackSSRF,
	AttackSuspiciousUA,
	AttackNone,
}

// Valid reports whether t is a known category.
func (t AttackType) Valid() bool {
	for _, known := range AttackTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Severity grades a verdict.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Severities lists every severity from least to most severe.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// severityOf is the fixed severity table.
var severityOf = map[AttackType]Severity{
	AttackSQLI:             SeverityHigh,
	AttackXSS:              SeverityMedium,
	AttackPathTraversal:    SeverityHigh,
	AttackCommandInjection: SeverityCritical,
	AttackBruteForce:       SeverityMedium,
	AttackSSRF:             SeverityHigh,
	AttackSuspiciousUA:     SeverityLow,
	AttackNone:             SeverityLow,
}

// SeverityOf returns the severity assigned to an attack type.
func SeverityOf(t AttackType) Severity {
	if s, ok := severityOf[t]; ok {
		return s
	}
	return SeverityLow
}

// Mode is the enforcement mode.
type Mode string

const (
	ModeLogOnly Mode = "LOG_ONLY"
	ModeBlock   Mode = "BLOCK"
)

// Request is the immutable request descriptor handed to the engine. Param
// and body values are untyped scalars; see Text for the coercion rules.
type Request struct {
	IPAddress  string         `json:"ip_address"`
	URL        string         `json:"url"`
	HTTPMethod string         `json:"http_method"`
	Params     map[string]any `json:"params"`
	Body       map[string]any `json:"body"`
	UserAgent  string         `json:"user_agent"`
}

// Verdict is the classification result. A fresh Verdict is built for every
// call.
type Verdict struct {
	IsAttack    bool       `json:"is_attack"`
	AttackType  AttackType `json:"attack_type"`
	Severity    Severity   `json:"severity"`
	Payload     string     `json:"payload"`
	ShouldBlock bool       `json:"should_block"`
	IPAddress   string     `json:"ip_address"`
	Timestamp   string     `json:"timestamp"`
}

// TimestampLayout is the civil-time layout of Verdict.Timestamp.
const TimestampLayout = "2006-01-02 15:04:05 -0700"

// Zone is the fixed UTC+8 zone verdict timestamps are rendered in.
var Zone = time.FixedZone("UTC+8", 8*60*60)

// FormatTimestamp renders t the way verdicts carry it.
func FormatTimestamp(t time.Time) string {
	return t.In(Zone).Format(TimestampLayout)
}
