// Package guard classifies live HTTP traffic with the detection engine.
package guard

import (
	"bytes"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/veil-waf/veil-detect/internal/detect"
)

// MaxBodyBytes caps how much of a request body is inspected.
const MaxBodyBytes = 1 << 20 // 1 MiB

// RequestFromHTTP builds a descriptor from r. The inspected prefix of the
// body is put back so the next handler still sees the whole body.
func RequestFromHTTP(r *http.Request) detect.Request {
	req := detect.Request{
		IPAddress:  ClientIP(r),
		URL:        r.RequestURI,
		HTTPMethod: r.Method,
		UserAgent:  r.UserAgent(),
	}
	if req.URL == "" {
		req.URL = r.URL.RequestURI()
	}

	if q := r.URL.Query(); len(q) > 0 {
		req.Params = firstValues(q)
	}

	if r.Body != nil && r.Body != http.NoBody {
		body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes))
		r.Body = restoredBody{Reader: io.MultiReader(bytes.NewReader(body), r.Body), Closer: r.Body}
		if err == nil {
			req.Body = bodyFields(r.Header.Get("Content-Type"), body)
		}
	}
	return req
}

// ClientIP returns RemoteAddr without its port. Run chi's RealIP middleware
// first to honour X-Real-IP and X-Forwarded-For.
func ClientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func bodyFields(contentType string, body []byte) map[string]any {
	if len(body) == 0 {
		return nil
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil
	}
	switch {
	case mediaType == "application/x-www-form-urlencoded":
		form, err := url.ParseQuery(string(body))
		if err != nil && len(form) == 0 {
			return nil
		}
		return firstValues(form)
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		fields, ok := detect.DecodeFields(body)
		if !ok {
			return nil
		}
		return fields
	}
	return nil
}

func firstValues(v url.Values) map[string]any {
	out := make(map[string]any, len(v))
	for k, vs := range v {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}

type restoredBody struct {
	io.Reader
	io.Closer
}
