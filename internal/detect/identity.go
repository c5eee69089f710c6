package detect

import "strings"

// identityDetector flags user agents that name a scanner or attack tool.
type identityDetector struct {
	tokens []string
}

func (identityDetector) Type() AttackType { return AttackSuspiciousUA }

func (d identityDetector) Inspect(in *Inspection) (string, bool) {
	ua := strings.ToLower(in.Request.UserAgent)
	if ua == "" {
		return "", false
	}
	for _, tok := range d.tokens {
		if tok != "" && strings.Contains(ua, tok) {
			return "user_agent: " + ua, true
		}
	}
	return "", false
}
