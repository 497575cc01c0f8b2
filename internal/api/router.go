/**
 * @description
 * This file sets up the HTTP router for the slot service using the go-chi/chi
 * router. It defines the API routes, applies middleware for logging, CORS, and
 * authentication, and maps the routes to their corresponding handler functions.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SlotRoutes creates and returns a new router for the slot service.
func SlotRoutes(h *SlotHandlers, jwksURL, internalAPIKey string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Internal-API-Key"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Group routes that require user authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwksURL))

		r.Post("/requests", h.RequestSlotHandler)
		r.Get("/requests", h.ListRequestsHandler)
		r.Post("/requests/{requestID}/cancel", h.CancelRequestHandler)

		r.Get("/", h.ListSlotsHandler)
		r.Delete("/{slotID}", h.ReleaseSlotHandler)
	})

	// Internal server-to-server endpoints.
	r.Group(func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalAPIKey))

		r.Post("/internal/requests/{requestID}/reject", h.RejectRequestHandler)
	})

	return r
}
