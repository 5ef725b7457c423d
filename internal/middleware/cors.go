package middleware

import (
	"github.com/go-chi/cors"

	"github.com/examprep/practice-api/internal/config"
)

// CORS returns cors.Options for the web front end. With no configured
// origins only the local dev server is allowed; a "*" origin disables
// credentials since browsers reject that combination.
func CORS(cfg config.CORSConfig) cors.Options {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}

	allowCreds := true
	for _, o := range origins {
		if o == "*" {
			allowCreds = false
			break
		}
	}

	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader, "Retry-After"},
		AllowCredentials: allowCreds,
		MaxAge:           300,
	}
}
