package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/cors"
)

// Chart endpoints are read-only, so these are all a browser ever needs.
var (
	defaultCORSMethods       = []string{http.MethodGet, http.MethodHead, http.MethodOptions}
	defaultCORSExposeHeaders = []string{"Content-Disposition"}
)

// CORSConfig configures Cross-Origin Resource Sharing (CORS) policies.
type CORSConfig struct {
	Enabled          bool
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           int
}

// CORSMiddleware adds CORS headers and answers preflight requests. Empty
// method and expose lists fall back to what chart reads and exports use.
func CORSMiddleware(cfg CORSConfig) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	methods := trimmed(cfg.AllowedMethods)
	if len(methods) == 0 {
		methods = defaultCORSMethods
	}
	exposed := trimmed(cfg.ExposeHeaders)
	if len(exposed) == 0 {
		exposed = defaultCORSExposeHeaders
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   trimmed(cfg.AllowedOrigins),
		AllowedMethods:   methods,
		AllowedHeaders:   trimmed(cfg.AllowedHeaders),
		ExposedHeaders:   exposed,
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	})
	return c.Handler
}

func trimmed(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
