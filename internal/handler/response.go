package handler

import (
	"time"

	"github.com/mmeshcher/tableside/internal/model"
	"github.com/mmeshcher/tableside/internal/service"
)

type reservationResponse struct {
	ID              string `json:"id"`
	RestaurantID    string `json:"restaurantId"`
	TableID         string `json:"tableId"`
	TableName       string `json:"tableName,omitempty"`
	UserID          string `json:"userId"`
	UserName        string `json:"userName,omitempty"`
	Status          string `json:"status"`
	Type            string `json:"type"`
	PaymentStatus   string `json:"paymentStatus"`
	ReservationFee  string `json:"reservationFee"`
	TotalBillAmount string `json:"totalBillAmount"`
	PlatformShare   string `json:"platformShare"`
	RestaurantShare string `json:"restaurantShare"`
	RefundAmount    string `json:"refundAmount"`
	AppliedCouponID string `json:"appliedCouponId,omitempty"`
	CreatedAt       string `json:"createdAt"`
	UpdatedAt       string `json:"updatedAt"`
}

func newReservationResponse(r *model.Reservation) reservationResponse {
	return reservationResponse{
		ID:              r.ID,
		RestaurantID:    r.RestaurantID,
		TableID:         r.TableID,
		TableName:       r.TableName,
		UserID:          r.UserID,
		UserName:        r.UserName,
		Status:          string(r.Status),
		Type:            string(r.Type),
		PaymentStatus:   string(r.PaymentStatus),
		ReservationFee:  money(r.ReservationFee),
		TotalBillAmount: money(r.TotalBillAmount),
		PlatformShare:   money(r.Split.Platform),
		RestaurantShare: money(r.Split.Restaurant),
		RefundAmount:    money(r.Split.Refund),
		AppliedCouponID: r.AppliedCouponID,
		CreatedAt:       r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       r.UpdatedAt.Format(time.RFC3339),
	}
}

type orderResponse struct {
	ID            string            `json:"id"`
	ReservationID string            `json:"reservationId"`
	TableID       string            `json:"tableId"`
	Items         []model.OrderItem `json:"items"`
	TotalAmount   string            `json:"totalAmount"`
	Status        string            `json:"status"`
	CreatedAt     string            `json:"createdAt"`
}

func newOrderResponse(o *model.Order) orderResponse {
	return orderResponse{
		ID:            o.ID,
		ReservationID: o.ReservationID,
		TableID:       o.TableID,
		Items:         o.Items,
		TotalAmount:   money(o.TotalAmount),
		Status:        string(o.Status),
		CreatedAt:     o.CreatedAt.Format(time.RFC3339),
	}
}

type billResponse struct {
	ReservationID       string              `json:"reservationId"`
	Status              string              `json:"status"`
	PaymentStatus       string              `json:"paymentStatus"`
	Subtotal            string              `json:"subtotal"`
	ServiceCharge       string              `json:"serviceCharge"`
	Tax                 string              `json:"tax"`
	Discount            string              `json:"discount"`
	DiscountSource      string              `json:"discountSource"`
	OfferID             string              `json:"offerId,omitempty"`
	DiscountDescription string              `json:"discountDescription,omitempty"`
	GrandTotal          string              `json:"grandTotal"`
	Settled             *model.BillSnapshot `json:"settled,omitempty"`
}

func newBillResponse(b *service.LiveBill) billResponse {
	return billResponse{
		ReservationID:       b.ReservationID,
		Status:              string(b.Status),
		PaymentStatus:       string(b.PaymentStatus),
		Subtotal:            money(b.Quote.MenuSubtotal),
		ServiceCharge:       money(b.Quote.ServiceCharge),
		Tax:                 money(b.Quote.Tax),
		Discount:            money(b.Quote.Discount),
		DiscountSource:      string(b.Quote.Source),
		OfferID:             b.Quote.OfferID,
		DiscountDescription: b.Quote.Description,
		GrandTotal:          money(b.Quote.GrandTotal),
		Settled:             b.Settled,
	}
}

type groupedLineResponse struct {
	MenuItemID string        `json:"menuItemId"`
	Name       string        `json:"name"`
	AddOns     []model.AddOn `json:"addOns,omitempty"`
	UnitTotal  string        `json:"unitTotal"`
	Quantity   int           `json:"quantity"`
	Total      string        `json:"total"`
}

type timelineResponse struct {
	OrderID   string          `json:"orderId"`
	OrderedAt string          `json:"orderedAt"`
	Item      model.OrderItem `json:"item"`
}

type billItemsResponse struct {
	Groups    []groupedLineResponse `json:"groups"`
	Timeline  []timelineResponse    `json:"timeline"`
	Cancelled int                   `json:"cancelledCount"`
}

func newBillItemsResponse(b *service.BillItems) billItemsResponse {
	resp := billItemsResponse{
		Groups:    make([]groupedLineResponse, 0, len(b.Groups)),
		Timeline:  make([]timelineResponse, 0, len(b.Timeline)),
		Cancelled: b.Cancelled,
	}
	for _, g := range b.Groups {
		resp.Groups = append(resp.Groups, groupedLineResponse{
			MenuItemID: g.MenuItemID,
			Name:       g.Name,
			AddOns:     g.AddOns,
			UnitTotal:  money(g.UnitTotal),
			Quantity:   g.Quantity,
			Total:      money(g.Total),
		})
	}
	for _, l := range b.Timeline {
		resp.Timeline = append(resp.Timeline, timelineResponse{
			OrderID:   l.OrderID,
			OrderedAt: l.OrderCreatedAt.Format(time.RFC3339),
			Item:      l.Item,
		})
	}
	return resp
}

type walletResponse struct {
	Available     string `json:"availableBalance"`
	Pending       string `json:"pendingBalance"`
	TotalEarnings string `json:"totalEarnings"`
}

type transactionResponse struct {
	ID            string            `json:"id"`
	Type          string            `json:"type"`
	Amount        string            `json:"amount"`
	Status        string            `json:"status"`
	ReservationID string            `json:"reservationId,omitempty"`
	OrderID       string            `json:"orderId,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     string            `json:"createdAt"`
}

func newTransactionResponse(t *model.Transaction) transactionResponse {
	return transactionResponse{
		ID:            t.ID,
		Type:          string(t.Type),
		Amount:        money(t.Amount),
		Status:        string(t.Status),
		ReservationID: t.ReservationID,
		OrderID:       t.OrderID,
		Metadata:      t.Metadata,
		CreatedAt:     t.CreatedAt.Format(time.RFC3339),
	}
}

type offerResponse struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	Type               string   `json:"type"`
	Code               string   `json:"code,omitempty"`
	RewardType         string   `json:"rewardType"`
	DiscountKind       string   `json:"discountKind,omitempty"`
	DiscountValue      string   `json:"discountValue"`
	MaxDiscount        *string  `json:"maxDiscount,omitempty"`
	MinSpend           string   `json:"minSpend"`
	ApplicableItemIDs  []string `json:"applicableItemIds,omitempty"`
	TriggerItemID      string   `json:"triggerItemId,omitempty"`
	FreeItemID         string   `json:"freeItemId,omitempty"`
	IsActive           bool     `json:"isActive"`
	MaxUsage           int      `json:"maxUsage,omitempty"`
	GlobalBudget       *string  `json:"globalBudget,omitempty"`
	UsageCount         int      `json:"usageCount"`
	TotalDiscountGiven string   `json:"totalDiscountGiven"`
	ValidFrom          *string  `json:"validFrom,omitempty"`
	ValidUntil         *string  `json:"validUntil,omitempty"`
}

func newOfferResponse(o *model.Offer) offerResponse {
	resp := offerResponse{
		ID:                 o.ID,
		Title:              o.Title,
		Type:               string(o.Type),
		Code:               o.Code,
		RewardType:         string(o.RewardType),
		DiscountKind:       string(o.DiscountKind),
		DiscountValue:      o.DiscountValue.String(),
		MinSpend:           money(o.MinSpend),
		ApplicableItemIDs:  o.ApplicableItemIDs,
		TriggerItemID:      o.TriggerItemID,
		FreeItemID:         o.FreeItemID,
		IsActive:           o.IsActive,
		MaxUsage:           o.MaxUsage,
		UsageCount:         o.UsageCount,
		TotalDiscountGiven: money(o.TotalDiscountGiven),
	}
	if o.MaxDiscount.Valid {
		v := money(o.MaxDiscount.Decimal)
		resp.MaxDiscount = &v
	}
	if o.GlobalBudget.Valid {
		v := money(o.GlobalBudget.Decimal)
		resp.GlobalBudget = &v
	}
	if o.ValidFrom != nil {
		v := o.ValidFrom.Format(time.RFC3339)
		resp.ValidFrom = &v
	}
	if o.ValidUntil != nil {
		v := o.ValidUntil.Format(time.RFC3339)
		resp.ValidUntil = &v
	}
	return resp
}

type offerUsageResponse struct {
	ID            string `json:"id"`
	OfferID       string `json:"offerId"`
	UserID        string `json:"userId"`
	ReservationID string `json:"reservationId"`
	OrderID       string `json:"orderId,omitempty"`
	Discount      string `json:"discount"`
	CreatedAt     string `json:"createdAt"`
}
