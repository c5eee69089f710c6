package sse

import (
	"context"
	"log/slog"

	"github.com/veil-waf/veil-detect/internal/db"
)

// NotifyChannel is the PostgreSQL channel the attack_logs insert trigger
// notifies with the new row's event ID.
const NotifyChannel = "attack_stream"

// PGListener subscribes to the attack_logs NOTIFY channel and hands every new
// record to publish. It lets several server processes sharing one database
// feed each other's live streams.
type PGListener struct {
	db      *db.DB
	publish func(db.AttackLog)
	logger  *slog.Logger
}

// NewPGListener creates a new PGListener that bridges PostgreSQL notifications to publish.
func NewPGListener(database *db.DB, publish func(db.AttackLog), logger *slog.Logger) *PGListener {
	return &PGListener{db: database, publish: publish, logger: logger}
}

// Listen blocks until ctx is cancelled or the connection fails.
// It should be run inside RunWithRecovery so it auto-restarts on failure.
func (pl *PGListener) Listen(ctx context.Context) {
	conn, err := pl.db.Pool.Acquire(ctx)
	if err != nil {
		pl.logger.Error("pg-listen: acquire connection failed", "err", err)
		return
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		pl.logger.Error("pg-listen: LISTEN failed", "channel", NotifyChannel, "err", err)
		return
	}
	pl.logger.Info("pg-listen: subscribed", "channel", NotifyChannel)

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return // graceful shutdown
			}
			pl.logger.Error("pg-listen: notification error", "err", err)
			return // RunWithRecovery will reconnect
		}

		l, err := pl.db.GetAttackLog(ctx, notification.Payload)
		if err != nil {
			pl.logger.Warn("pg-listen: load attack log failed", "event_id", notification.Payload, "err", err)
			continue
		}
		pl.publish(*l)
	}
}
