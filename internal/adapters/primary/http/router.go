package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"github.com/MiguelitoPsi/care-lifecycle-service/internal/core/ports"
)

func NewRouter(handler *Handler, stream *StreamHandler, gate ports.SessionGate) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	r.Route("/v1", func(r chi.Router) {
		// Ouvert : c'est le Session Gate lui-même qui décide.
		r.Post("/sessions", handler.openSession)

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(gate))

			// Admin
			r.Post("/identities/{id}/suspend", handler.suspend)
			r.Post("/identities/{id}/reactivate", handler.reactivate)

			// Thérapeute
			r.Post("/relationships", handler.createRelationship)
			r.Post("/relationships/{id}/unlink", handler.unlink)
			r.Post("/relationships/{id}/discharge", handler.discharge)
			r.Post("/relationships/{id}/transfer", handler.transfer)

			// Poll + stream de hints (tout client authentifié)
			r.Get("/access/{id}", handler.checkAccess)
			r.Get("/access/{id}/stream", stream.stream)
		})
	})

	return cors.AllowAll().Handler(r)
}
