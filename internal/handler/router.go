package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mellooticas/desenrola-dcl/internal/middleware"
)

// SetupRouter configures the HTTP routes and middleware of the API.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.Gzip)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Route("/pedidos", func(r chi.Router) {
			r.Get("/", h.ListPedidos)
			r.Post("/", h.CreatePedido)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetPedido)
				r.Get("/timeline", h.Timeline)

				r.Post("/avancar", h.Advance)
				r.Post("/regredir", h.Regress)
				r.Post("/finalizar", h.Finalize)
				r.Post("/cancelar", h.Cancel)
				r.Post("/pagamento", h.ConfirmPayment)
			})
		})

		r.Get("/dashboard", h.Dashboard)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
