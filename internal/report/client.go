package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	httpTimeout    = 5 * time.Second
	maxResponseLen = 1 << 20 // 1 MiB
	ingestPath     = "/api/logs"
)

// HTTPReporter posts events to a log service's ingest endpoint.
type HTTPReporter struct {
	baseURL string
	http    *http.Client
}

// NewHTTPReporter creates a reporter for the log service at baseURL.
func NewHTTPReporter(baseURL string) *HTTPReporter {
	return &HTTPReporter{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: httpTimeout,
		},
	}
}

// Report posts one event. Any 2xx response, including the one for an
// already-stored event ID, is success.
func (c *HTTPReporter) Report(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("report: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ingestPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("report: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("report: post event: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseLen))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("report: log service returned status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	return nil
}
