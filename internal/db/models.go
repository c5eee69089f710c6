package db

import (
	"context"
	"time"
)

// AttackLog is one stored attack record.
type AttackLog struct {
	ID         int64     `json:"id"`
	EventID    string    `json:"event_id"`
	Timestamp  time.Time `json:"timestamp"`
	IPAddress  string    `json:"ip_address"`
	URL        string    `json:"url"`
	HTTPMethod string    `json:"http_method,omitempty"`
	Payload    string    `json:"payload"`
	AttackType string    `json:"attack_type"`
	Severity   string    `json:"severity"`
	Blocked    bool      `json:"blocked"`
	UserAgent  string    `json:"user_agent,omitempty"`
}

// AttackStats aggregates every stored record.
type AttackStats struct {
	Total      int64            `json:"total"`
	Blocked    int64            `json:"blocked"`
	ByType     map[string]int64 `json:"by_type"`
	BySeverity map[string]int64 `json:"by_severity"`
}

func newAttackStats() *AttackStats {
	return &AttackStats{ByType: map[string]int64{}, BySeverity: map[string]int64{}}
}

func (s *AttackStats) add(attackType, severity string, blocked bool, n int64) {
	s.Total += n
	if blocked {
		s.Blocked += n
	}
	s.ByType[attackType] += n
	s.BySeverity[severity] += n
}

// Store persists attack records. Both DB and MemoryStore implement it.
type Store interface {
	// InsertAttackLog stores l unless a record with the same event ID exists.
	// It reports whether a row was written and fills in ID and Timestamp.
	InsertAttackLog(ctx context.Context, l *AttackLog) (bool, error)
	// GetAttackLog returns ErrNotFound for an unknown event ID.
	GetAttackLog(ctx context.Context, eventID string) (*AttackLog, error)
	// RecentAttackLogs returns up to limit records, newest first. An empty
	// attackType matches every record.
	RecentAttackLogs(ctx context.Context, limit int, attackType string) ([]AttackLog, error)
	AttackStats(ctx context.Context) (*AttackStats, error)
	PingContext(ctx context.Context) error
	Close()
}
