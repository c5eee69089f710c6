package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/veil-waf/veil-detect/internal/detect"
)

// ErrInvalidDocument is returned when a rule document is not a JSON object.
var ErrInvalidDocument = errors.New("rule document is not a JSON object")

// Rule document keys besides the category names.
const (
	keyMode             = "MODE"
	keyBruteForceWindow = "BRUTE_FORCE_WINDOW_SECONDS"
	keyBruteForceLimit  = "BRUTE_FORCE_THRESHOLD"
)

// LoadRules reads the rule document at path and layers it over the built-in
// defaults. Files ending in .yaml or .yml are read as YAML with the same keys.
// The returned config is always usable: on a missing or unreadable file it is
// exactly detect.DefaultConfig(), and the error says why.
func LoadRules(path string) (detect.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return detect.DefaultConfig(), fmt.Errorf("read rules: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAMLRules(data)
	}
	return ParseRules(data)
}

// ParseYAMLRules converts a YAML rule document to JSON and validates it with
// ParseRules. Anything that is not a mapping with string keys is
// ErrInvalidDocument.
func ParseYAMLRules(data []byte) (detect.Config, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return detect.DefaultConfig(), fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if doc == nil {
		return detect.DefaultConfig(), ErrInvalidDocument
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return detect.DefaultConfig(), fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return ParseRules(raw)
}

// ParseRules validates each field of a rule document independently and keeps
// the default for any field that is absent or invalid. The error, if any,
// joins one warning per rejected field; the returned config is still valid.
func ParseRules(data []byte) (detect.Config, error) {
	cfg := detect.DefaultConfig()
	if !gjson.ValidBytes(data) {
		return cfg, ErrInvalidDocument
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return cfg, ErrInvalidDocument
	}

	var warnings []error
	overrides := make(map[detect.Category][]string)
	for _, c := range detect.Categories {
		for _, key := range []string{string(c), string(c) + "_PATTERNS"} {
			r := doc.Get(key)
			if !r.Exists() {
				continue
			}
			patterns, ok := stringArray(r)
			if !ok {
				warnings = append(warnings, fmt.Errorf("%s: expected an array of strings", key))
				continue
			}
			overrides[c] = patterns
		}
	}
	cfg.Rules = detect.NewRuleSet(overrides)

	if r := doc.Get(keyMode); r.Exists() {
		mode, ok := parseMode(r)
		if ok {
			cfg.Mode = mode
		} else {
			warnings = append(warnings, fmt.Errorf("%s: expected LOG_ONLY or BLOCK, got %s", keyMode, r.Raw))
		}
	}

	if r := doc.Get(keyBruteForceWindow); r.Exists() {
		if n, ok := positiveInt(r); ok {
			cfg.BruteForceWindow = time.Duration(n) * time.Second
		} else {
			warnings = append(warnings, fmt.Errorf("%s: expected a positive integer, got %s", keyBruteForceWindow, r.Raw))
		}
	}
	if r := doc.Get(keyBruteForceLimit); r.Exists() {
		if n, ok := positiveInt(r); ok {
			cfg.BruteForceThreshold = n
		} else {
			warnings = append(warnings, fmt.Errorf("%s: expected a positive integer, got %s", keyBruteForceLimit, r.Raw))
		}
	}

	return cfg, errors.Join(warnings...)
}

func stringArray(r gjson.Result) ([]string, bool) {
	if !r.IsArray() {
		return nil, false
	}
	out := []string{}
	ok := true
	r.ForEach(func(_, v gjson.Result) bool {
		if v.Type != gjson.String {
			ok = false
			return false
		}
		out = append(out, v.Str)
		return true
	})
	return out, ok
}

func parseMode(r gjson.Result) (detect.Mode, bool) {
	if r.Type != gjson.String {
		return "", false
	}
	switch m := detect.Mode(strings.ToUpper(strings.TrimSpace(r.Str))); m {
	case detect.ModeLogOnly, detect.ModeBlock:
		return m, true
	}
	return "", false
}

// positiveInt accepts JSON integer literals only; 5.0 and "5" are rejected.
func positiveInt(r gjson.Result) (int, bool) {
	if r.Type != gjson.Number || strings.ContainsAny(r.Raw, ".eE") {
		return 0, false
	}
	if r.Num <= 0 || r.Num > math.MaxInt32 {
		return 0, false
	}
	return int(r.Int()), true
}
