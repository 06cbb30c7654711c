package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/mmeshcher/autoservice-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса автосервиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/user/register", h.Register)
		r.Post("/user/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Route("/vehicles", func(r chi.Router) {
				r.Post("/", h.AddVehicle)
				r.Get("/", h.ListVehicles)
				r.Delete("/{id}", h.DeleteVehicle)
			})

			r.Post("/bookings", h.CreateBooking)

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", h.CreateOrder)
				r.Get("/", h.ListOrders)
				r.Get("/history", h.RepairHistory)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.GetOrder)
					r.Patch("/", h.EditOrder)
					r.Delete("/", h.DeleteOrder)

					r.Post("/mechanic", h.AssignMechanic)
					r.Post("/parts", h.ConsumePart)
					r.Post("/missing-part", h.ReportMissingPart)
					r.Post("/notes", h.AppendNotes)
					r.Post("/complete", h.CompleteOrder)
					r.Post("/status", h.SetStatus)
					r.Get("/status", h.GetStatus)
					r.Put("/services", h.ReplaceServices)

					r.Get("/total", h.OrderTotal)
					r.Get("/invoice", h.Invoice)
				})
			})

			r.Get("/reports/income", h.IncomeReport)

			r.Route("/parts", func(r chi.Router) {
				r.Post("/", h.AddPart)
				r.Get("/", h.ListParts)
				r.Post("/{id}/restock", h.RestockPart)
				r.Delete("/{id}", h.DeletePart)
			})

			r.Route("/services", func(r chi.Router) {
				r.Post("/", h.AddCatalogService)
				r.Get("/", h.ListCatalogServices)
				r.Put("/{id}", h.UpdateCatalogService)
				r.Delete("/{id}", h.DeleteCatalogService)
			})

			r.Route("/employees", func(r chi.Router) {
				r.Post("/", h.AddEmployee)
				r.Get("/", h.ListEmployees)
				r.Delete("/{id}", h.DeleteEmployee)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
