package handler

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/tableside/internal/model"
	"github.com/mmeshcher/tableside/internal/service"
	"github.com/mmeshcher/tableside/internal/validation"
)

const maxWebhookBody = 64 << 10

type orderLineRequest struct {
	MenuItemID string   `json:"menuItemId"`
	Quantity   int      `json:"quantity"`
	AddOnIDs   []string `json:"addOnIds"`
	Note       string   `json:"note"`
}

type placeOrderRequest struct {
	Items []orderLineRequest `json:"items"`
}

// PlaceOrder оформляет новый тикет в открытой сессии.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req placeOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	lines := make([]service.OrderLine, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, service.OrderLine{
			MenuItemID: it.MenuItemID,
			Quantity:   it.Quantity,
			AddOnIDs:   it.AddOnIDs,
			Note:       it.Note,
		})
	}

	id := chi.URLParam(r, "reservationID")
	order, err := h.service.PlaceOrder(r.Context(), actor, id, lines)
	if err != nil {
		h.writeError(w, "place order", err, zap.String("reservationID", id))
		return
	}

	h.writeJSON(w, http.StatusCreated, newOrderResponse(order))
}

type itemStatusRequest struct {
	Status model.OrderStatus `json:"status"`
}

// UpdateItemStatus продвигает позицию заказа по кухонному конвейеру.
func (h *Handler) UpdateItemStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req itemStatusRequest
	if err := decodeJSON(r, &req); err != nil || req.Status == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	orderID, itemID := chi.URLParam(r, "orderID"), chi.URLParam(r, "itemID")
	order, err := h.service.UpdateItemStatus(r.Context(), actor, orderID, itemID, req.Status)
	if err != nil {
		h.writeError(w, "update item status", err, zap.String("orderID", orderID), zap.String("itemID", itemID))
		return
	}

	h.writeJSON(w, http.StatusOK, newOrderResponse(order))
}

// GetBillItems возвращает сгруппированные позиции счёта и хронологию заказов.
func (h *Handler) GetBillItems(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "reservationID")
	items, err := h.service.GetBillItems(r.Context(), actor, id)
	if err != nil {
		h.writeError(w, "get bill items", err, zap.String("reservationID", id))
		return
	}

	h.writeJSON(w, http.StatusOK, newBillItemsResponse(items))
}

// GetLiveBill возвращает текущий расчёт счёта.
func (h *Handler) GetLiveBill(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "reservationID")
	bill, err := h.service.GetLiveBill(r.Context(), actor, id)
	if err != nil {
		h.writeError(w, "get live bill", err, zap.String("reservationID", id))
		return
	}

	h.writeJSON(w, http.StatusOK, newBillResponse(bill))
}

type couponRequest struct {
	Code string `json:"code"`
}

type couponResponse struct {
	Code    string `json:"code"`
	Savings string `json:"savings"`
}

// ApplyCoupon закрепляет купон за сессией.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req couponRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id := chi.URLParam(r, "reservationID")
	savings, err := h.service.ApplyCoupon(r.Context(), actor, id, req.Code)
	if err != nil {
		h.writeError(w, "apply coupon", err, zap.String("reservationID", id))
		return
	}

	code, _ := validation.NormalizeCouponCode(req.Code)
	h.writeJSON(w, http.StatusOK, couponResponse{Code: code, Savings: money(savings)})
}

type settleRequest struct {
	PaymentRef    string              `json:"paymentRef"`
	ExpectedTotal decimal.NullDecimal `json:"expectedTotal"`
}

// SettleAtCounter закрывает счёт после оплаты на кассе.
func (h *Handler) SettleAtCounter(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req settleRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if req.PaymentRef != "" && !validation.IsValidReference(req.PaymentRef) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	id := chi.URLParam(r, "reservationID")
	snapshot, err := h.service.SettleAtCounter(r.Context(), actor, id, req.PaymentRef, req.ExpectedTotal)
	if err != nil {
		h.writeError(w, "settle at counter", err, zap.String("reservationID", id))
		return
	}

	h.writeJSON(w, http.StatusOK, snapshot)
}

// PaymentWebhook принимает подтверждения онлайн-оплаты. Подлинность проверяется по подписи.
// Неуспешные и посторонние события подтверждаются без изменения состояния.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	snapshot, err := h.service.HandlePaymentCallback(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if model.KindOf(err) == model.KindExternal {
			h.logger.Warn("payment webhook rejected", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		h.writeError(w, "payment webhook", err)
		return
	}

	if snapshot == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	h.writeJSON(w, http.StatusOK, snapshot)
}
