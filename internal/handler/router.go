package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/tableside/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/payments/stripe/webhook", h.PaymentWebhook)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Route("/restaurants/{restaurantID}", func(r chi.Router) {
				r.Post("/tables/{tableID}/claim", h.ClaimTable)
				r.Post("/tables/{tableID}/book", h.BookTable)
				r.Put("/tables/{tableID}", h.SaveTable)

				r.Get("/wallet", h.GetWallet)
				r.Get("/transactions", h.ListTransactions)
				r.Post("/withdrawals", h.Withdraw)

				r.Get("/offers", h.ListOffers)
				r.Post("/offers", h.SaveOffer)
				r.Get("/offers/{offerID}/usages", h.ListOfferUsages)

				r.Get("/billing-config", h.GetBillingConfig)
				r.Put("/billing-config", h.SaveBillingConfig)
				r.Put("/reservation-policy", h.SaveReservationPolicy)

				r.Get("/events", h.RestaurantEvents)
			})

			r.Route("/reservations/{reservationID}", func(r chi.Router) {
				r.Get("/", h.GetReservation)
				r.Post("/accept", h.AcceptReservation)
				r.Post("/decline", h.DeclineReservation)
				r.Post("/cancel", h.CancelReservation)
				r.Post("/counter-request", h.RequestCounterPayment)

				r.Post("/orders", h.PlaceOrder)
				r.Post("/coupon", h.ApplyCoupon)
				r.Post("/settle", h.SettleAtCounter)

				r.Get("/bill", h.GetLiveBill)
				r.Get("/bill/items", h.GetBillItems)
				r.Get("/events", h.ReservationEvents)
			})

			r.Patch("/orders/{orderID}/items/{itemID}", h.UpdateItemStatus)
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
