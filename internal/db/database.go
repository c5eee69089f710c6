package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a queried entity does not exist.
var ErrNotFound = errors.New("not found")

//go:embed migrations/*.sql
var migrations embed.FS

// DB wraps a pgx connection pool holding the attack_logs table.
type DB struct {
	Pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ Store = (*DB)(nil)

// Connect creates a new DB instance, connects to PostgreSQL, and runs migrations.
func Connect(ctx context.Context, dsn string, logger *slog.Logger) (*DB, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	config.MaxConns = 20
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	db := &DB{Pool: pool, logger: logger}
	if err := db.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Migrate reads and executes the embedded SQL migration files.
func (db *DB) Migrate(ctx context.Context) error {
	sql, err := migrations.ReadFile("migrations/001_init.sql")
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}
	if _, err := db.Pool.Exec(ctx, string(sql)); err != nil {
		return fmt.Errorf("exec migration: %w", err)
	}
	db.logger.Info("database migrated")
	return nil
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}

// PingContext checks the database connection.
func (db *DB) PingContext(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// ---------------------------------------------------------------------------
// Attack logs
// ---------------------------------------------------------------------------

const attackLogColumns = `id, event_id::text, timestamp, ip_address, url, http_method, payload, attack_type, severity, blocked, user_agent`

// InsertAttackLog inserts an attack record. A duplicate event ID is not an
// error; it reports false and leaves the stored row untouched.
func (db *DB) InsertAttackLog(ctx context.Context, l *AttackLog) (bool, error) {
	ts := l.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	err := db.Pool.QueryRow(ctx,
		`INSERT INTO attack_logs (event_id, timestamp, ip_address, url, http_method, payload, attack_type, severity, blocked, user_agent)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (event_id) DO NOTHING
		 RETURNING id, timestamp`,
		l.EventID, ts, l.IPAddress, l.URL, l.HTTPMethod, l.Payload, l.AttackType, l.Severity, l.Blocked, l.UserAgent,
	).Scan(&l.ID, &l.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert attack log: %w", err)
	}
	return true, nil
}

// GetAttackLog retrieves a record by event ID.
func (db *DB) GetAttackLog(ctx context.Context, eventID string) (*AttackLog, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+attackLogColumns+` FROM attack_logs WHERE event_id = $1::uuid`, eventID)
	if err != nil {
		return nil, fmt.Errorf("get attack log: %w", err)
	}
	l, err := pgx.CollectExactlyOneRow(rows, scanAttackLog)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get attack log: %w", err)
	}
	return &l, nil
}

// RecentAttackLogs retrieves the most recent records, optionally of one type.
func (db *DB) RecentAttackLogs(ctx context.Context, limit int, attackType string) ([]AttackLog, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+attackLogColumns+`
		 FROM attack_logs
		 WHERE $1 = '' OR attack_type = $1
		 ORDER BY timestamp DESC, id DESC
		 LIMIT $2`, attackType, limit)
	if err != nil {
		return nil, fmt.Errorf("recent attack logs: %w", err)
	}
	logs, err := pgx.CollectRows(rows, scanAttackLog)
	if err != nil {
		return nil, fmt.Errorf("recent attack logs: %w", err)
	}
	return logs, nil
}

// AttackStats counts records by type, severity and block status.
func (db *DB) AttackStats(ctx context.Context) (*AttackStats, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT attack_type, severity, blocked, COUNT(*) FROM attack_logs GROUP BY attack_type, severity, blocked`)
	if err != nil {
		return nil, fmt.Errorf("attack stats: %w", err)
	}
	defer rows.Close()

	stats := newAttackStats()
	for rows.Next() {
		var (
			attackType, severity string
			blocked              bool
			n                    int64
		)
		if err := rows.Scan(&attackType, &severity, &blocked, &n); err != nil {
			return nil, fmt.Errorf("attack stats: %w", err)
		}
		stats.add(attackType, severity, blocked, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("attack stats: %w", err)
	}
	return stats, nil
}

func scanAttackLog(row pgx.CollectableRow) (AttackLog, error) {
	var l AttackLog
	err := row.Scan(&l.ID, &l.EventID, &l.Timestamp, &l.IPAddress, &l.URL, &l.HTTPMethod,
		&l.Payload, &l.AttackType, &l.Severity, &l.Blocked, &l.UserAgent)
	return l, err
}
