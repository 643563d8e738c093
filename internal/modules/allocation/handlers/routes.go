package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all allocation routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/allocation", func(r chi.Router) {
		r.Get("/tiers", h.HandleGetTierTargets)
		r.Get("/position-range", h.HandleGetPositionRange)
		r.Post("/normalize", h.HandleNormalize)
	})
}
