package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veil-waf/veil-detect/internal/db"
	"github.com/veil-waf/veil-detect/internal/detect"
	"github.com/veil-waf/veil-detect/internal/guard"
	"github.com/veil-waf/veil-detect/internal/ratelimit"
	"github.com/veil-waf/veil-detect/internal/report"
	"github.com/veil-waf/veil-detect/internal/sse"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixture struct {
	store      *db.MemoryStore
	hub        *sse.Hub
	dispatcher *report.Dispatcher
	router     http.Handler
}

func newFixture(t *testing.T, bucket ratelimit.Bucket) *fixture {
	t.Helper()
	store := db.NewMemoryStore(0)
	hub := sse.NewHub(discard)
	recorder := report.NewRecorder(store, hub)
	dispatcher := report.NewDispatcher(report.NewStoreReporter(recorder), 16, nil, discard)
	inspector := guard.NewInspector(detect.New(detect.DefaultConfig()), dispatcher, nil, discard)

	return &fixture{
		store:      store,
		hub:        hub,
		dispatcher: dispatcher,
		router: NewRouter(Routes{
			Detect: NewDetectHandler(inspector, ratelimit.New(), bucket, discard),
			Logs:   NewLogsHandler(store, recorder, discard),
			Stream: NewStreamHandler(hub, store, discard),
		}),
	}
}

func defaultFixture(t *testing.T) *fixture {
	return newFixture(t, ratelimit.Bucket{MaxRequests: 1000, Window: time.Minute})
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func ingestBody(eventID, attackType string) string {
	return `{"event_id": "` + eventID + `", "is_attack": true, "attack_type": "` + attackType + `",
		"severity": "HIGH", "payload": "param.id: 1 or 1=1", "should_block": false,
		"ip_address": "1.2.3.4", "timestamp": "2025-11-26 22:45:12 +0800", "url": "/item"}`
}

func TestPing(t *testing.T) {
	rec := defaultFixture(t).do(http.MethodGet, "/ping", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
}

func TestDetectSingle(t *testing.T) {
	f := defaultFixture(t)
	rec := f.do(http.MethodPost, "/v1/detect", `{
		"ip_address": "1.2.3.4", "url": "/login", "http_method": "POST",
		"body": {"username": "admin' OR 1=1 --", "password": "x"}, "user_agent": "Mozilla/5.0"
	}`)
	require.Equal(t, http.StatusOK, rec.Code)

	v := decode[detect.Verdict](t, rec)
	assert.True(t, v.IsAttack)
	assert.Equal(t, detect.AttackSQLI, v.AttackType)
	assert.Equal(t, detect.SeverityHigh, v.Severity)
	assert.False(t, v.ShouldBlock)
	assert.Equal(t, "1.2.3.4", v.IPAddress)

	// the attack reaches the store through the dispatcher
	f.dispatcher.Drain(context.Background())
	stats, err := f.store.AttackStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ByType["SQLI"])
}

func TestDetectBatch(t *testing.T) {
	f := defaultFixture(t)
	rec := f.do(http.MethodPost, "/v1/detect", `[
		{"url": "/home", "user_agent": "Mozilla/5.0"},
		{"url": "/x", "user_agent": "sqlmap/1.7"}
	]`)
	require.Equal(t, http.StatusOK, rec.Code)

	vs := decode[[]detect.Verdict](t, rec)
	require.Len(t, vs, 2)
	assert.False(t, vs[0].IsAttack)
	assert.Equal(t, detect.AttackNone, vs[0].AttackType)
	assert.Equal(t, detect.AttackSuspiciousUA, vs[1].AttackType)
}

func TestDetectMalformed(t *testing.T) {
	f := defaultFixture(t)
	for _, body := range []string{"", "not json", `"str"`, `{"url":`} {
		rec := f.do(http.MethodPost, "/v1/detect", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestDetectRateLimited(t *testing.T) {
	f := newFixture(t, ratelimit.Bucket{MaxRequests: 1, Window: time.Minute})
	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/v1/detect", `{}`).Code)

	rec := f.do(http.MethodPost, "/v1/detect", `{}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRules(t *testing.T) {
	rec := defaultFixture(t).do(http.MethodGet, "/v1/rules", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "LOG_ONLY", body["mode"])
	assert.Equal(t, float64(60), body["brute_force_window_seconds"])
	assert.Equal(t, float64(5), body["brute_force_threshold"])
	assert.Len(t, body["detector_order"], 7)
}

func TestIngestIsIdempotent(t *testing.T) {
	f := defaultFixture(t)
	id := uuid.NewString()

	rec := f.do(http.MethodPost, "/api/logs", ingestBody(id, "SQLI"))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, ingestResponse{EventID: id, Stored: true}, decode[ingestResponse](t, rec))

	rec = f.do(http.MethodPost, "/api/logs", ingestBody(id, "SQLI"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[ingestResponse](t, rec).Stored)

	rec = f.do(http.MethodGet, "/api/logs/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	l := decode[db.AttackLog](t, rec)
	assert.Equal(t, "param.id: 1 or 1=1", l.Payload)
	assert.True(t, l.Timestamp.Equal(time.Date(2025, 11, 26, 14, 45, 12, 0, time.UTC)))
}

func TestIngestValidation(t *testing.T) {
	f := defaultFixture(t)
	cases := map[string]string{
		"bad json":      `{"event_id":`,
		"bad event id":  ingestBody("not-a-uuid", "SQLI"),
		"none type":     ingestBody(uuid.NewString(), "NONE"),
		"unknown type":  ingestBody(uuid.NewString(), "SQLi"),
		"unknown sever": strings.Replace(ingestBody(uuid.NewString(), "XSS"), `"HIGH"`, `"SEVERE"`, 1),
	}
	for name, body := range cases {
		rec := f.do(http.MethodPost, "/api/logs", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
}

func TestIngestDefaultsSeverity(t *testing.T) {
	f := defaultFixture(t)
	id := uuid.NewString()
	body := strings.Replace(ingestBody(id, "COMMAND_INJECTION"), `"severity": "HIGH",`, "", 1)
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/logs", body).Code)

	l, err := f.store.GetAttackLog(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "CRITICAL", l.Severity)
}

func TestListLogs(t *testing.T) {
	f := defaultFixture(t)
	ids := []string{uuid.NewString(), uuid.NewString(), uuid.NewString()}
	for i, typ := range []string{"SQLI", "XSS", "SQLI"} {
		require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/logs", ingestBody(ids[i], typ)).Code)
	}

	rec := f.do(http.MethodGet, "/api/logs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[[]db.AttackLog](t, rec)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].EventID)

	rec = f.do(http.MethodGet, "/api/logs?type=SQLI&limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	one := decode[[]db.AttackLog](t, rec)
	require.Len(t, one, 1)
	assert.Equal(t, ids[2], one[0].EventID)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/logs?limit=0", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/logs?limit=ten", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/logs?type=NONE", "").Code)

	rec = f.do(http.MethodGet, "/api/logs?type=SSRF", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestGetLogErrors(t *testing.T) {
	f := defaultFixture(t)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/logs/abc", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/logs/"+uuid.NewString(), "").Code)
}

func TestStats(t *testing.T) {
	f := defaultFixture(t)
	f.do(http.MethodPost, "/api/logs", ingestBody(uuid.NewString(), "SQLI"))
	f.do(http.MethodPost, "/api/logs", ingestBody(uuid.NewString(), "XSS"))

	rec := f.do(http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[db.AttackStats](t, rec)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.ByType["XSS"])
	assert.Equal(t, int64(2), stats.BySeverity["HIGH"])
}

func readSSEData(t *testing.T, sc *bufio.Scanner) string {
	t.Helper()
	for sc.Scan() {
		if data, ok := strings.CutPrefix(sc.Text(), "data: "); ok {
			return data
		}
	}
	t.Fatalf("stream ended: %v", sc.Err())
	return ""
}

func TestStreamHydratesThenStreamsLive(t *testing.T) {
	f := defaultFixture(t)
	old := uuid.NewString()
	f.do(http.MethodPost, "/api/logs", ingestBody(old, "XSS"))

	srv := httptest.NewServer(f.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/stream/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	sc := bufio.NewScanner(resp.Body)
	var hydrated db.AttackLog
	require.NoError(t, json.Unmarshal([]byte(readSSEData(t, sc)), &hydrated))
	assert.Equal(t, old, hydrated.EventID)

	require.Eventually(t, func() bool { return f.hub.SubscriberCount(sse.TopicAll) == 1 }, 2*time.Second, 10*time.Millisecond)

	live := uuid.NewString()
	f.do(http.MethodPost, "/api/logs", ingestBody(live, "SQLI"))
	var got db.AttackLog
	require.NoError(t, json.Unmarshal([]byte(readSSEData(t, sc)), &got))
	assert.Equal(t, live, got.EventID)
}

func TestStreamRejectsUnknownType(t *testing.T) {
	rec := defaultFixture(t).do(http.MethodGet, "/api/stream/events?type=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
