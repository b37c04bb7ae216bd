package mw

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS wraps the router so browser front-ends on the allowed origins can call the
// API. No origins means any origin without credentials.
func CORS(allowedOrigins []string, next http.Handler) http.Handler {
	options := cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}
	if len(allowedOrigins) > 0 {
		options.AllowedOrigins = allowedOrigins
		options.AllowCredentials = true
	}
	return cors.New(options).Handler(next)
}
