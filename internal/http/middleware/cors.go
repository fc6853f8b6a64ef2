package middleware

import (
	"net/http"
	"strings"
)

const (
	corsHeaders = "Authorization, Content-Type"
	corsMethods = "GET, POST, OPTIONS"
	corsMaxAge  = "600"
)

// CORS answers cross-origin requests for the admin surface, the only
// part of the bridge a browser talks to. Origins are matched
// case-insensitively against the allowlist; a "*" entry admits every
// origin, echoed back rather than wildcarded so requests carrying the
// admin token keep working.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAny := false
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		o = strings.ToLower(strings.TrimSpace(o))
		switch o {
		case "":
		case "*":
			allowAny = true
		default:
			allowed[o] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			w.Header().Add("Vary", "Origin")

			ok := origin != ""
			if ok && !allowAny {
				_, ok = allowed[strings.ToLower(origin)]
			}
			if ok {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Headers", corsHeaders)
				h.Set("Access-Control-Allow-Methods", corsMethods)
				h.Set("Access-Control-Max-Age", corsMaxAge)
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
