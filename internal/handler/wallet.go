package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GetWallet возвращает балансы ресторана.
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	restaurantID := chi.URLParam(r, "restaurantID")
	stats, err := h.service.GetWalletStats(r.Context(), actor, restaurantID)
	if err != nil {
		h.writeError(w, "get wallet", err, zap.String("restaurantID", restaurantID))
		return
	}

	h.writeJSON(w, http.StatusOK, walletResponse{
		Available:     money(stats.Available),
		Pending:       money(stats.Pending),
		TotalEarnings: money(stats.TotalEarnings),
	})
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}

// ListTransactions возвращает журнал ресторана за период, заданный параметрами from и to в RFC 3339.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	from, err := parseTime(r.URL.Query().Get("from"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	to, err := parseTime(r.URL.Query().Get("to"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	restaurantID := chi.URLParam(r, "restaurantID")
	txns, err := h.service.ListTransactions(r.Context(), actor, restaurantID, from, to)
	if err != nil {
		h.writeError(w, "list transactions", err, zap.String("restaurantID", restaurantID))
		return
	}

	if len(txns) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]transactionResponse, 0, len(txns))
	for i := range txns {
		resp = append(resp, newTransactionResponse(&txns[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type withdrawRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// Withdraw создаёт заявку на вывод средств ресторана.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req withdrawRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	restaurantID := chi.URLParam(r, "restaurantID")
	entry, err := h.service.RequestWithdrawal(r.Context(), actor, restaurantID, req.Amount)
	if err != nil {
		h.writeError(w, "withdraw", err, zap.String("restaurantID", restaurantID), zap.Stringer("amount", req.Amount))
		return
	}

	h.writeJSON(w, http.StatusAccepted, newTransactionResponse(entry))
}
