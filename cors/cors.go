package cors

import (
	"net/http"
	"net/url"
	"strings"
)

type Options struct {
	AllowedOrigins   []string
	AllowCredentials bool
	// AllowLocalhost accepts any localhost/127.0.0.1 origin, for development.
	AllowLocalhost bool
}

func Cors(opts Options) func(http.Handler) http.Handler {
	orig := make(map[string]struct{}, len(opts.AllowedOrigins))
	wildcard := false
	for _, o := range opts.AllowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch o {
		case "":
		case "*":
			wildcard = true
		default:
			orig[o] = struct{}{}
		}
	}

	isDevLocalhost := func(origin string) bool {
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := u.Hostname()
		return host == "localhost" || host == "127.0.0.1"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowOrigin := ""

			if origin != "" {
				if _, ok := orig[origin]; ok || wildcard {
					allowOrigin = origin
				}
				if allowOrigin == "" && opts.AllowLocalhost && isDevLocalhost(origin) {
					allowOrigin = origin
				}
			}

			if allowOrigin != "" {
				w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
				w.Header().Add("Vary", "Origin")
				if opts.AllowCredentials {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
			w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition, RateLimit-Limit, RateLimit-Remaining, RateLimit-Reset, Retry-After")
			// cache preflight for 10 min
			w.Header().Set("Access-Control-Max-Age", "600")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
