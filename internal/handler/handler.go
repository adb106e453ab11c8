// Package handler содержит HTTP-обработчики API сервиса обслуживания столиков.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/tableside/internal/middleware"
	"github.com/mmeshcher/tableside/internal/model"
	"github.com/mmeshcher/tableside/internal/notify"
	"github.com/mmeshcher/tableside/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	ClaimTable(ctx context.Context, actor model.Actor, restaurantID, tableID string) (*model.Reservation, error)
	BookTable(ctx context.Context, actor model.Actor, restaurantID, tableID string, fee decimal.Decimal, paymentRef string) (*model.Reservation, error)
	AcceptReservation(ctx context.Context, actor model.Actor, reservationID string) (*model.Reservation, error)
	DeclineReservation(ctx context.Context, actor model.Actor, reservationID string) (*model.Reservation, error)
	CancelReservation(ctx context.Context, actor model.Actor, reservationID string) (*model.Reservation, error)
	RequestCounterPayment(ctx context.Context, actor model.Actor, reservationID string) (*model.Reservation, error)
	GetReservation(ctx context.Context, actor model.Actor, reservationID string) (*model.Reservation, error)

	PlaceOrder(ctx context.Context, actor model.Actor, reservationID string, lines []service.OrderLine) (*model.Order, error)
	UpdateItemStatus(ctx context.Context, actor model.Actor, orderID, itemID string, status model.OrderStatus) (*model.Order, error)
	GetBillItems(ctx context.Context, actor model.Actor, reservationID string) (*service.BillItems, error)
	GetLiveBill(ctx context.Context, actor model.Actor, reservationID string) (*service.LiveBill, error)
	ApplyCoupon(ctx context.Context, actor model.Actor, reservationID, code string) (decimal.Decimal, error)
	SettleAtCounter(ctx context.Context, actor model.Actor, reservationID, paymentRef string, expectedTotal decimal.NullDecimal) (*model.BillSnapshot, error)
	HandlePaymentCallback(ctx context.Context, payload []byte, signature string) (*model.BillSnapshot, error)

	GetWalletStats(ctx context.Context, actor model.Actor, restaurantID string) (model.WalletStats, error)
	ListTransactions(ctx context.Context, actor model.Actor, restaurantID string, from, to time.Time) ([]model.Transaction, error)
	RequestWithdrawal(ctx context.Context, actor model.Actor, restaurantID string, amount decimal.Decimal) (*model.Transaction, error)

	SaveTable(ctx context.Context, actor model.Actor, t *model.Table) error
	SaveOffer(ctx context.Context, actor model.Actor, o *model.Offer) error
	ListOffers(ctx context.Context, actor model.Actor, restaurantID string) ([]model.Offer, error)
	ListOfferUsages(ctx context.Context, actor model.Actor, offerID string) ([]model.OfferUsage, error)
	GetBillingConfig(ctx context.Context, restaurantID string) (model.BillingConfig, error)
	SaveBillingConfig(ctx context.Context, actor model.Actor, restaurantID string, cfg model.BillingConfig) error
	SaveReservationPolicy(ctx context.Context, actor model.Actor, restaurantID string, p model.ReservationPolicy) error
}

// Handler реализует HTTP-обработчики API сервиса обслуживания столиков.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	broker         *notify.Broker
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
// Без брокера потоки событий отвечают 503.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, broker *notify.Broker) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		broker:         broker,
	}
}

type errorResponse struct {
	Error         string `json:"error"`
	Kind          string `json:"kind,omitempty"`
	ReservationID string `json:"reservationId,omitempty"`
	OccupiedBy    string `json:"occupiedBy,omitempty"`
}

// statusFor сопоставляет вид доменной ошибки с HTTP-статусом.
func statusFor(err error) int {
	if errors.Is(err, service.ErrInsufficientFunds) {
		return http.StatusPaymentRequired
	}

	switch model.KindOf(err) {
	case model.KindValidation:
		return http.StatusUnprocessableEntity
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindForbidden:
		return http.StatusForbidden
	case model.KindConflict:
		return http.StatusConflict
	case model.KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// message возвращает текст ошибки, безопасный для клиента.
func message(err error, status int) string {
	var coupon *model.CouponNotApplicableError
	if errors.As(err, &coupon) {
		return coupon.Error()
	}

	var e *model.Error
	if status < http.StatusInternalServerError && errors.As(err, &e) {
		if e.Msg != "" {
			return e.Msg
		}
		if e.Err != nil {
			return e.Err.Error()
		}
	}
	return http.StatusText(status)
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error, fields ...zap.Field) {
	status := statusFor(err)

	resp := errorResponse{Error: message(err, status)}
	if kind := model.KindOf(err); kind != model.KindUnknown {
		resp.Kind = kind.String()
	}

	var occupied *model.TableOccupiedError
	if errors.As(err, &occupied) {
		resp.Error = "table is occupied"
		resp.ReservationID = occupied.ReservationID
		resp.OccupiedBy = occupied.UserName
	}

	if status >= http.StatusInternalServerError || status == http.StatusBadGateway {
		h.logger.Error(op+" error", append(fields, zap.Error(err))...)
	} else {
		h.logger.Debug(op+" rejected", append(fields, zap.Error(err))...)
	}

	h.writeJSON(w, status, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("encode response", zap.Error(err))
	}
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func actorFrom(w http.ResponseWriter, r *http.Request) (model.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	}
	return actor, ok
}

func money(d decimal.Decimal) string {
	return model.Round(d).StringFixed(2)
}
