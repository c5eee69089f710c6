package guard

import (
	"encoding/json"
	"net/http"
)

type blockedResponse struct {
	Error      string `json:"error"`
	AttackType string `json:"attack_type"`
	Severity   string `json:"severity"`
}

// Middleware inspects every request and answers 403 when the verdict says
// to block. Other requests, attacks included in log-only mode, pass through.
func Middleware(i *Inspector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v := i.Inspect(RequestFromHTTP(r))
			if v.ShouldBlock {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				json.NewEncoder(w).Encode(blockedResponse{
					Error:      "Blocked by Veil",
					AttackType: string(v.AttackType),
					Severity:   string(v.Severity),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
