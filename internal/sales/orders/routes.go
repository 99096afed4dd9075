package orders

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers the sales order routes under /sales.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/orders", h.List)
	r.Post("/orders", h.Create)
	r.Get("/orders/{id}", h.Show)
	r.Put("/orders/{id}", h.Update)
	r.Get("/orders/{id}/summary", h.Summary)
	r.Post("/orders/{id}/confirm", h.Confirm)
	r.Post("/orders/{id}/cancel", h.Cancel)
	r.Post("/orders/{id}/recompute", h.Recompute)
	r.With(h.rateLimit).Post("/orders/{id}/invoice", h.Invoice)
	r.Patch("/order-lines/{id}/discounts", h.UpdateLineDiscounts)
	r.Post("/discounts/preview", h.PreviewDiscount)
}
