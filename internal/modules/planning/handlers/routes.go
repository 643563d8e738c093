package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all run routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/policy", h.HandleGetPolicy)

	r.Route("/runs", func(r chi.Router) {
		r.Get("/", h.HandleListRuns)
		r.Post("/", h.HandleCreateRun)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGetRun)
			r.Post("/sequence", h.HandleSequence)
			r.Get("/executions", h.HandleListExecutions)
			r.Get("/executions/{execID}/projection", h.HandleProjection)
		})
	})
}
