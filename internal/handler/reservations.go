package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/tableside/internal/model"
	"github.com/mmeshcher/tableside/internal/validation"
)

// ClaimTable занимает свободный столик для гостя «с улицы».
func (h *Handler) ClaimTable(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	restaurantID, tableID := chi.URLParam(r, "restaurantID"), chi.URLParam(r, "tableID")
	res, err := h.service.ClaimTable(r.Context(), actor, restaurantID, tableID)
	if err != nil {
		h.writeError(w, "claim table", err, zap.String("tableID", tableID))
		return
	}

	h.writeJSON(w, http.StatusCreated, newReservationResponse(res))
}

type bookRequest struct {
	Fee        decimal.Decimal `json:"fee"`
	PaymentRef string          `json:"paymentRef"`
}

// BookTable создаёт предварительное бронирование с оплаченной предоплатой.
func (h *Handler) BookTable(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req bookRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if req.PaymentRef != "" && !validation.IsValidReference(req.PaymentRef) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	restaurantID, tableID := chi.URLParam(r, "restaurantID"), chi.URLParam(r, "tableID")
	res, err := h.service.BookTable(r.Context(), actor, restaurantID, tableID, req.Fee, req.PaymentRef)
	if err != nil {
		h.writeError(w, "book table", err, zap.String("tableID", tableID))
		return
	}

	h.writeJSON(w, http.StatusCreated, newReservationResponse(res))
}

type reservationAction func(ctx context.Context, actor model.Actor, reservationID string) (*model.Reservation, error)

// reservationTransition оборачивает операции, которые меняют статус сессии и возвращают её.
func (h *Handler) reservationTransition(op string, action reservationAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		id := chi.URLParam(r, "reservationID")
		res, err := action(r.Context(), actor, id)
		if err != nil {
			h.writeError(w, op, err, zap.String("reservationID", id))
			return
		}

		h.writeJSON(w, http.StatusOK, newReservationResponse(res))
	}
}

// AcceptReservation подтверждает бронирование сотрудником ресторана.
func (h *Handler) AcceptReservation(w http.ResponseWriter, r *http.Request) {
	h.reservationTransition("accept reservation", h.service.AcceptReservation)(w, r)
}

// DeclineReservation отклоняет бронирование и возвращает предоплату.
func (h *Handler) DeclineReservation(w http.ResponseWriter, r *http.Request) {
	h.reservationTransition("decline reservation", h.service.DeclineReservation)(w, r)
}

// CancelReservation отменяет сессию по правилам возврата ресторана.
func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	h.reservationTransition("cancel reservation", h.service.CancelReservation)(w, r)
}

// RequestCounterPayment сообщает персоналу, что гость хочет оплатить на кассе.
func (h *Handler) RequestCounterPayment(w http.ResponseWriter, r *http.Request) {
	h.reservationTransition("counter request", h.service.RequestCounterPayment)(w, r)
}

// GetReservation возвращает сессию гостю или персоналу ресторана.
func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	h.reservationTransition("get reservation", h.service.GetReservation)(w, r)
}
