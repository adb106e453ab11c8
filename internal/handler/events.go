package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/tableside/internal/model"
)

const keepAliveInterval = 15 * time.Second

// ReservationEvents транслирует события сессии в формате Server-Sent Events.
func (h *Handler) ReservationEvents(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "reservationID")
	if _, err := h.service.GetReservation(r.Context(), actor, id); err != nil {
		h.writeError(w, "reservation events", err, zap.String("reservationID", id))
		return
	}
	if h.broker == nil {
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}

	h.stream(w, r, h.broker.SubscribeReservation(r.Context(), id))
}

// RestaurantEvents транслирует персоналу все события ресторана.
func (h *Handler) RestaurantEvents(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	restaurantID := chi.URLParam(r, "restaurantID")
	if !actor.IsStaffOf(restaurantID) {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}
	if h.broker == nil {
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}

	h.stream(w, r, h.broker.SubscribeRestaurant(r.Context(), restaurantID))
}

func (h *Handler) stream(w http.ResponseWriter, r *http.Request, events <-chan model.Event) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case e, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				h.logger.Warn("encode event", zap.Error(err), zap.String("eventID", e.ID))
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", e.ID, e.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
