package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/tableside/internal/model"
)

type tableRequest struct {
	Name  string `json:"name"`
	Seats int    `json:"seats"`
	Area  string `json:"area"`
}

// SaveTable создаёт или обновляет столик ресторана.
func (h *Handler) SaveTable(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req tableRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	t := &model.Table{
		ID:           chi.URLParam(r, "tableID"),
		RestaurantID: chi.URLParam(r, "restaurantID"),
		Name:         req.Name,
		Seats:        req.Seats,
		Area:         req.Area,
	}
	if err := h.service.SaveTable(r.Context(), actor, t); err != nil {
		h.writeError(w, "save table", err, zap.String("tableID", t.ID))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type offerRequest struct {
	ID                string              `json:"id"`
	Title             string              `json:"title"`
	Type              model.OfferType     `json:"type"`
	Code              string              `json:"code"`
	RewardType        model.RewardType    `json:"rewardType"`
	DiscountKind      model.DiscountKind  `json:"discountKind"`
	DiscountValue     decimal.Decimal     `json:"discountValue"`
	MaxDiscount       decimal.NullDecimal `json:"maxDiscount"`
	MinSpend          decimal.Decimal     `json:"minSpend"`
	ApplicableItemIDs []string            `json:"applicableItemIds"`
	TriggerItemID     string              `json:"triggerItemId"`
	FreeItemID        string              `json:"freeItemId"`
	ValidFrom         *time.Time          `json:"validFrom"`
	ValidUntil        *time.Time          `json:"validUntil"`
	IsActive          bool                `json:"isActive"`
	MaxUsage          int                 `json:"maxUsage"`
	GlobalBudget      decimal.NullDecimal `json:"globalBudget"`
}

// SaveOffer создаёт или обновляет акцию либо купон ресторана.
func (h *Handler) SaveOffer(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req offerRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	o := &model.Offer{
		ID:                req.ID,
		RestaurantID:      chi.URLParam(r, "restaurantID"),
		Title:             req.Title,
		Type:              req.Type,
		Code:              req.Code,
		RewardType:        req.RewardType,
		DiscountKind:      req.DiscountKind,
		DiscountValue:     req.DiscountValue,
		MaxDiscount:       req.MaxDiscount,
		MinSpend:          req.MinSpend,
		ApplicableItemIDs: req.ApplicableItemIDs,
		TriggerItemID:     req.TriggerItemID,
		FreeItemID:        req.FreeItemID,
		ValidFrom:         req.ValidFrom,
		ValidUntil:        req.ValidUntil,
		IsActive:          req.IsActive,
		MaxUsage:          req.MaxUsage,
		GlobalBudget:      req.GlobalBudget,
	}
	if err := h.service.SaveOffer(r.Context(), actor, o); err != nil {
		h.writeError(w, "save offer", err, zap.String("title", req.Title))
		return
	}

	h.writeJSON(w, http.StatusOK, newOfferResponse(o))
}

// ListOffers возвращает акции ресторана вместе со счётчиками использования.
func (h *Handler) ListOffers(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	restaurantID := chi.URLParam(r, "restaurantID")
	offers, err := h.service.ListOffers(r.Context(), actor, restaurantID)
	if err != nil {
		h.writeError(w, "list offers", err, zap.String("restaurantID", restaurantID))
		return
	}

	resp := make([]offerResponse, 0, len(offers))
	for i := range offers {
		resp = append(resp, newOfferResponse(&offers[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// ListOfferUsages возвращает историю применений акции.
func (h *Handler) ListOfferUsages(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	offerID := chi.URLParam(r, "offerID")
	usages, err := h.service.ListOfferUsages(r.Context(), actor, offerID)
	if err != nil {
		h.writeError(w, "list offer usages", err, zap.String("offerID", offerID))
		return
	}

	resp := make([]offerUsageResponse, 0, len(usages))
	for _, u := range usages {
		resp = append(resp, offerUsageResponse{
			ID:            u.ID,
			OfferID:       u.OfferID,
			UserID:        u.UserID,
			ReservationID: u.ReservationID,
			OrderID:       u.OrderID,
			Discount:      money(u.Discount),
			CreatedAt:     u.CreatedAt.Format(time.RFC3339),
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type billingConfigBody struct {
	ServiceChargeRate      decimal.Decimal `json:"serviceChargeRate"`
	ServiceChargeInclusive bool            `json:"serviceChargeInclusive"`
	SalesTaxRate           decimal.Decimal `json:"salesTaxRate"`
	SalesTaxInclusive      bool            `json:"salesTaxInclusive"`
}

// GetBillingConfig возвращает ставки сбора и налога ресторана.
func (h *Handler) GetBillingConfig(w http.ResponseWriter, r *http.Request) {
	restaurantID := chi.URLParam(r, "restaurantID")
	cfg, err := h.service.GetBillingConfig(r.Context(), restaurantID)
	if err != nil {
		h.writeError(w, "get billing config", err, zap.String("restaurantID", restaurantID))
		return
	}

	h.writeJSON(w, http.StatusOK, billingConfigBody(cfg))
}

// SaveBillingConfig обновляет ставки сбора и налога ресторана.
func (h *Handler) SaveBillingConfig(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req billingConfigBody
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	restaurantID := chi.URLParam(r, "restaurantID")
	if err := h.service.SaveBillingConfig(r.Context(), actor, restaurantID, model.BillingConfig(req)); err != nil {
		h.writeError(w, "save billing config", err, zap.String("restaurantID", restaurantID))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type reservationPolicyRequest struct {
	RefundPercent   decimal.Decimal `json:"refundPercent"`
	CancellationFee decimal.Decimal `json:"cancellationFee"`
}

// SaveReservationPolicy обновляет правила возврата предоплаты.
func (h *Handler) SaveReservationPolicy(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req reservationPolicyRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	restaurantID := chi.URLParam(r, "restaurantID")
	policy := model.ReservationPolicy{RefundPercent: req.RefundPercent, CancellationFee: req.CancellationFee}
	if err := h.service.SaveReservationPolicy(r.Context(), actor, restaurantID, policy); err != nil {
		h.writeError(w, "save reservation policy", err, zap.String("restaurantID", restaurantID))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
