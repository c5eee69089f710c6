package detect

import "strings"

// Match scans fields in order and, within each field, patterns in order.
// It returns the first field whose lowercased value contains a pattern.
// Patterns are expected to be lowercase already; empty patterns never match.
func Match(fields Fields, patterns []string) (Field, bool) {
	for _, f := range fields {
		lower := strings.ToLower(f.Value)
		for _, p := range patterns {
			if p != "" && strings.Contains(lower, p) {
				return f, true
			}
		}
	}
	return Field{}, false
}

// patternDetector reports the first field containing one of a category's
// patterns.
type patternDetector struct {
	attack   AttackType
	patterns []string
}

func (d patternDetector) Type() AttackType { return d.attack }

func (d patternDetector) Inspect(in *Inspection) (string, bool) {
	f, ok := Match(in.Fields, d.patterns)
	if !ok {
		return "", false
	}
	return f.Name + ": " + f.Value, true
}
