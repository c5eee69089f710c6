package proxy

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veil-waf/veil-detect/internal/detect"
	"github.com/veil-waf/veil-detect/internal/guard"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestNewHandlerRejectsBadUpstream(t *testing.T) {
	for _, raw := range []string{"", "origin:8080", "ftp://origin", "http://"} {
		_, err := NewHandler(raw, discard)
		assert.Error(t, err, raw)
	}
}

func TestProxyForwardsCleanRequests(t *testing.T) {
	var gotPath, gotQuery, gotBody, gotFwd string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotFwd = r.Header.Get("X-Forwarded-For")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusAccepted)
		io.WriteString(w, "ok")
	}))
	defer upstream.Close()

	h, err := NewHandler(upstream.URL+"/base/", discard)
	require.NoError(t, err)

	cfg := detect.DefaultConfig()
	cfg.Mode = detect.ModeBlock
	guarded := h.Guarded(guard.NewInspector(detect.New(cfg), nil, nil, discard))

	req := httptest.NewRequest(http.MethodPost, "/p/orders?page=2", strings.NewReader("name=widget"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Forwarded-For", "6.6.6.6")
	req.RemoteAddr = "198.51.100.7:4000"
	rec := httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.Equal(t, "yes", rec.Header().Get("X-Upstream"))
	assert.Equal(t, "/base/orders", gotPath)
	assert.Equal(t, "page=2", gotQuery)
	assert.Equal(t, "name=widget", gotBody)
	assert.Equal(t, "198.51.100.7", gotFwd)
}

func TestProxyBlocksAttacks(t *testing.T) {
	called := false
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer upstream.Close()

	h, err := NewHandler(upstream.URL, discard)
	require.NoError(t, err)
	cfg := detect.DefaultConfig()
	cfg.Mode = detect.ModeBlock
	guarded := h.Guarded(guard.NewInspector(detect.New(cfg), nil, nil, discard))

	rec := httptest.NewRecorder()
	guarded.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/p/search?q=1%20UNION%20SELECT%20password", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, called)
}

func TestProxyUpstreamDown(t *testing.T) {
	h, err := NewHandler("http://127.0.0.1:1", discard)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/p/", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
