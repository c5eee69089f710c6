package detect

import (
	"strings"
	"time"
)

// Category names a pattern list in a RuleSet.
type Category string

const (
	CategorySQLI             Category = "SQLI"
	CategoryXSS              Category = "XSS"
	CategoryPathTraversal    Category = "PATH_TRAVERSAL"
	CategoryCommandInjection Category = "COMMAND_INJECTION"
	CategorySuspiciousUA     Category = "SUSPICIOUS_UA"
)

// Categories lists every pattern category.
var Categories = []Category{
	CategorySQLI,
	CategoryXSS,
	CategoryPathTraversal,
	CategoryCommandInjection,
	CategorySuspiciousUA,
}

var defaultPatterns = map[Category][]string{
	CategorySQLI: {
		" or 1=1",
		"' or '1'='1",
		`" or "1"="1`,
		" or '1'='1",
		" or 1=1 --",
		" or 1=1--",
		" or 1=1#",
		" or 1=1/*",
		" union select",
		"union select",
		"--",
		";--",
		"/*",
		"*/",
		"sleep(",
		"benchmark(",
		"pg_sleep(",
		"waitfor delay",
	},
	CategoryXSS: {
		"<script",
		"onerror=",
		"onload=",
		"javascript:",
		"alert(",
		"onclick=",
		"onmouseover=",
		"onmouseenter=",
		"onfocus=",
		"onblur=",
		"onchange=",
		"onsubmit=",
	},
	CategoryPathTraversal: {
		"../",
		`..\`,
		"..%2f",
		"%2e%2e%2f",
		"/etc/passwd",
		"/etc/shadow",
		`c:\windows`,
		"c:/windows",
		`windows\system32`,
	},
	CategoryCommandInjection: {
		";",
		"&&",
		"||",
		"|",
		"`",
		"$(",
		"bash -c",
		"sh -c",
		"cmd /c",
		"powershell",
		"nc ",
		"netcat",
		"wget ",
		"curl ",
		" cat /etc/passwd",
		" rm -rf /",
	},
	CategorySuspiciousUA: {
		"sqlmap",
		"python-requests",
		"curl",
		"scanner",
		"nmap",
		"acunetix",
		"burp",
		"fuzzer",
	},
}

// RuleSet maps each category to its ordered, lowercase substring patterns.
// A RuleSet is never modified after construction.
type RuleSet struct {
	patterns map[Category][]string
}

// DefaultRuleSet returns the built-in patterns.
func DefaultRuleSet() RuleSet {
	return NewRuleSet(nil)
}

// NewRuleSet builds a RuleSet from overrides layered on the defaults. A
// category present in overrides replaces the default list entirely, even
// when the override is empty. Patterns are lowercased and empty patterns
// dropped.
func NewRuleSet(overrides map[Category][]string) RuleSet {
	rs := RuleSet{patterns: make(map[Category][]string, len(Categories))}
	for _, c := range Categories {
		src, ok := overrides[c]
		if !ok {
			src = defaultPatterns[c]
		}
		rs.patterns[c] = normalizePatterns(src)
	}
	return rs
}

// Patterns returns a copy of the patterns for c.
func (rs RuleSet) Patterns(c Category) []string {
	return append([]string(nil), rs.patterns[c]...)
}

// list returns the shared slice; callers must not modify it.
func (rs RuleSet) list(c Category) []string {
	if rs.patterns == nil {
		return normalizePatterns(defaultPatterns[c])
	}
	return rs.patterns[c]
}

// Map returns a copy of every category's patterns.
func (rs RuleSet) Map() map[Category][]string {
	out := make(map[Category][]string, len(Categories))
	for _, c := range Categories {
		out[c] = rs.Patterns(c)
	}
	return out
}

func normalizePatterns(src []string) []string {
	out := make([]string, 0, len(src))
	for _, p := range src {
		if p == "" {
			continue
		}
		out = append(out, strings.ToLower(p))
	}
	return out
}

const (
	DefaultBruteForceWindow    = 60 * time.Second
	DefaultBruteForceThreshold = 5
)

// Config is the full engine configuration: rules, enforcement mode and the
// brute-force window.
type Config struct {
	Rules               RuleSet
	Mode                Mode
	BruteForceWindow    time.Duration
	BruteForceThreshold int
}

// DefaultConfig returns the built-in rules in LOG_ONLY mode with a 60 second,
// 5 attempt brute-force window.
func DefaultConfig() Config {
	return Config{
		Rules:               DefaultRuleSet(),
		Mode:                ModeLogOnly,
		BruteForceWindow:    DefaultBruteForceWindow,
		BruteForceThreshold: DefaultBruteForceThreshold,
	}
}

// normalized fills zero or invalid fields with defaults.
func (c Config) normalized() Config {
	if c.Rules.patterns == nil {
		c.Rules = DefaultRuleSet()
	}
	if c.Mode != ModeBlock {
		c.Mode = ModeLogOnly
	}
	if c.BruteForceWindow <= 0 {
		c.BruteForceWindow = DefaultBruteForceWindow
	}
	if c.BruteForceThreshold <= 0 {
		c.BruteForceThreshold = DefaultBruteForceThreshold
	}
	return c
}
