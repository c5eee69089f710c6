package detect

import (
	"strings"

	"github.com/veil-waf/veil-detect/internal/netguard"
)

// ExtractURL returns the http(s) URL embedded in value: the whole value when
// it starts with a scheme, otherwise the tail from the first "http://" or,
// failing that, the first "https://".
func ExtractURL(value string) (string, bool) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", false
	}
	lower := strings.ToLower(v)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return v, true
	}
	idx := strings.Index(lower, "http://")
	if idx == -1 {
		idx = strings.Index(lower, "https://")
	}
	if idx == -1 {
		return "", false
	}
	return v[idx:], true
}

// TargetHost returns the lowercased hostname of an absolute URL. Only the
// authority is read: the path, query and fragment may hold anything, so a
// malformed escape or control byte after the host never hides it. Tabs and
// newlines are dropped first. A target without "://", or with unbalanced
// IPv6 brackets, is reported as not ok.
func TargetHost(target string) (string, bool) {
	target = strings.Map(func(r rune) rune {
		if r == '\t' || r == '\r' || r == '\n' {
			return -1
		}
		return r
	}, target)
	i := strings.Index(target, "://")
	if i < 0 {
		return "", false
	}
	authority := target[i+3:]
	if end := strings.IndexAny(authority, "/?#\\"); end >= 0 {
		authority = authority[:end]
	}
	if at := strings.LastIndexByte(authority, '@'); at >= 0 {
		authority = authority[at+1:]
	}

	open, closed := strings.Contains(authority, "["), strings.Contains(authority, "]")
	if open != closed {
		return "", false
	}
	host := authority
	if open {
		start := strings.IndexByte(authority, '[')
		end := strings.IndexByte(authority, ']')
		if end < start {
			return "", false
		}
		host = authority[start+1 : end]
	} else if colon := strings.IndexByte(authority, ':'); colon >= 0 {
		host = authority[:colon]
	}
	return strings.ToLower(host), true
}

// ssrfDetector looks for URL-valued fields that target private or metadata
// hosts.
type ssrfDetector struct{}

func (ssrfDetector) Type() AttackType { return AttackSSRF }

func (ssrfDetector) Inspect(in *Inspection) (string, bool) {
	for _, f := range in.Fields {
		if !ssrfCandidate(f.Name) {
			continue
		}
		target, ok := ExtractURL(f.Value)
		if !ok {
			continue
		}
		host, ok := TargetHost(target)
		if !ok || host == "" {
			continue
		}
		if netguard.IsPrivateHost(host) {
			return "target_url: " + target, true
		}
	}
	return "", false
}

func ssrfCandidate(name string) bool {
	return name == FieldURL || strings.HasPrefix(name, paramPrefix) || strings.HasPrefix(name, bodyPrefix)
}
