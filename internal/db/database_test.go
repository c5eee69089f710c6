package db

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs only against a disposable database named by TEST_DATABASE_URL.
func connectTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := Connect(ctx, dsn, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestDBAttackLogRoundTrip(t *testing.T) {
	db := connectTestDB(t)
	ctx := context.Background()

	typ := "TEST_" + uuid.NewString()[:8]
	l := &AttackLog{
		EventID:    uuid.NewString(),
		IPAddress:  "10.1.2.3",
		URL:        "/login",
		HTTPMethod: "POST",
		Payload:    "body.username: ' OR 1=1 --",
		AttackType: typ,
		Severity:   "HIGH",
		Blocked:    true,
	}
	ok, err := db.InsertAttackLog(ctx, l)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotZero(t, l.ID)

	ok, err = db.InsertAttackLog(ctx, &AttackLog{EventID: l.EventID, AttackType: "XSS", Severity: "MEDIUM"})
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := db.GetAttackLog(ctx, l.EventID)
	require.NoError(t, err)
	assert.Equal(t, l.Payload, got.Payload)
	assert.Equal(t, typ, got.AttackType)

	recent, err := db.RecentAttackLogs(ctx, 5, typ)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, l.EventID, recent[0].EventID)

	stats, err := db.AttackStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ByType[typ])

	_, err = db.GetAttackLog(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}
