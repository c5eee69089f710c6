// Package proxy forwards inspected traffic to a single upstream.
package proxy

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	stdpath "path"
	"strings"
	"time"

	"github.com/veil-waf/veil-detect/internal/guard"
)

// Prefix is the mount point of the proxy on the server's router.
const Prefix = "/p"

var (
	// Hop-by-hop and spoofable forwarded headers are never copied upstream.
	strippedHeaders = map[string]bool{
		"host": true, "connection": true, "transfer-encoding": true,
		"content-length": true, "x-forwarded-host": true, "x-forwarded-proto": true,
		"x-forwarded-for": true, "x-real-ip": true, "via": true,
	}
	excludedResponseHeaders = map[string]bool{
		"transfer-encoding": true,
		"connection":        true,
		"content-length":    true,
	}
)

// Handler forwards requests under Prefix to the upstream once the guard has
// let them through.
type Handler struct {
	upstream *url.URL
	client   *http.Client
	logger   *slog.Logger
}

// NewHandler creates a proxy to upstream, which must be an absolute http(s)
// URL.
func NewHandler(upstream string, logger *slog.Logger) (*Handler, error) {
	u, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("parse upstream: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("upstream %q must be an absolute http(s) URL", upstream)
	}
	return &Handler{
		upstream: u,
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
			// Redirects are the client's business.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
	}, nil
}

// Guarded returns the proxy wrapped in the blocking guard.
func (h *Handler) Guarded(i *guard.Inspector) http.Handler {
	return guard.Middleware(i)(h)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Cleaning a rooted path drops any ".." that would climb above the
	// upstream base.
	clean := stdpath.Clean("/" + strings.TrimPrefix(r.URL.Path, Prefix))

	target := *h.upstream
	target.Path = strings.TrimRight(h.upstream.Path, "/") + clean
	target.RawPath = ""
	target.RawQuery = r.URL.RawQuery

	proxyReq, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), r.Body)
	if err != nil {
		jsonError(w, "Failed to create upstream request", http.StatusBadGateway)
		return
	}
	proxyReq.ContentLength = r.ContentLength

	for key, values := range r.Header {
		if strippedHeaders[strings.ToLower(key)] {
			continue
		}
		for _, v := range values {
			proxyReq.Header.Add(key, v)
		}
	}
	// Set trusted forwarded headers from our own knowledge
	proxyReq.Header.Set("X-Forwarded-For", guard.ClientIP(r))
	proxyReq.Header.Set("X-Forwarded-Host", r.Host)
	if r.TLS != nil {
		proxyReq.Header.Set("X-Forwarded-Proto", "https")
	} else {
		proxyReq.Header.Set("X-Forwarded-Proto", "http")
	}

	resp, err := h.client.Do(proxyReq)
	if err != nil {
		h.logger.Warn("upstream request failed", "url", target.String(), "err", err)
		jsonError(w, "Could not reach backend", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		if excludedResponseHeaders[strings.ToLower(key)] {
			continue
		}
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
