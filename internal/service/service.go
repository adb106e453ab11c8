// Package service реализует бизнес-логику обслуживания столиков: сессии, заказы, счёт, расчёт и кошелёк ресторана.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/tableside/internal/lock"
	"github.com/mmeshcher/tableside/internal/model"
	"github.com/mmeshcher/tableside/internal/notify"
	"github.com/mmeshcher/tableside/internal/payment"
	"github.com/mmeshcher/tableside/internal/payout"
	"github.com/mmeshcher/tableside/internal/repository"
)

// ErrInsufficientFunds возвращается, если сумма вывода превышает доступный остаток.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	WithTx(ctx context.Context, fn repository.TxFunc) error

	GetTable(ctx context.Context, restaurantID, tableID string) (*model.Table, error)
	SaveTable(ctx context.Context, t *model.Table) error
	GetReservation(ctx context.Context, id string) (*model.Reservation, error)
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	ListOrdersByReservation(ctx context.Context, reservationID string) ([]model.Order, error)

	ListOffers(ctx context.Context, restaurantID string) ([]model.Offer, error)
	GetOffer(ctx context.Context, id string) (*model.Offer, error)
	GetOfferByCode(ctx context.Context, restaurantID, code string) (*model.Offer, error)
	SaveOffer(ctx context.Context, o *model.Offer) error
	ListOfferUsages(ctx context.Context, offerID string) ([]model.OfferUsage, error)

	GetBillingConfig(ctx context.Context, restaurantID string) (*model.BillingConfig, error)
	SaveBillingConfig(ctx context.Context, restaurantID string, cfg model.BillingConfig) error
	GetReservationPolicy(ctx context.Context, restaurantID string) (*model.ReservationPolicy, error)
	SaveReservationPolicy(ctx context.Context, restaurantID string, p model.ReservationPolicy) error

	GetWalletStats(ctx context.Context, restaurantID string) (model.WalletStats, error)
	ListTransactions(ctx context.Context, restaurantID string, from, to time.Time) ([]model.Transaction, error)
	ListPendingWithdrawals(ctx context.Context, limit int) ([]model.Transaction, error)

	FetchOutbox(ctx context.Context, limit int) ([]model.Event, error)
	MarkOutboxDelivered(ctx context.Context, ids []string) error
}

// MenuCatalog возвращает снимки позиций меню на момент заказа.
type MenuCatalog interface {
	GetMenuItem(ctx context.Context, restaurantID, id string) (*model.MenuItem, error)
}

// PayoutSystem описывает внешнюю систему выплат ресторанам.
type PayoutSystem interface {
	Submit(ctx context.Context, p payout.Payout) (int, time.Duration, error)
	GetPayout(ctx context.Context, id string) (*payout.Payout, int, time.Duration, error)
}

// PaymentVerifier проверяет уведомления платёжного шлюза.
type PaymentVerifier interface {
	Parse(payload []byte, signature string) (*payment.Confirmation, error)
}

// Options задаёт зависимости сервиса. Незаданные поля получают значения по умолчанию.
type Options struct {
	Catalog            MenuCatalog
	Payouts            PayoutSystem
	Verifier           PaymentVerifier
	Locker             lock.Locker
	Publisher          notify.Publisher
	Logger             *zap.Logger
	PlatformFeePercent decimal.Decimal
	Now                func() time.Time
}

// Service содержит бизнес-логику сервиса.
type Service struct {
	repo        Repository
	catalog     MenuCatalog
	payouts     PayoutSystem
	verifier    PaymentVerifier
	locker      lock.Locker
	publisher   notify.Publisher
	logger      *zap.Logger
	platformFee decimal.Decimal
	now         func() time.Time
}

// NewService создаёт сервис с указанным репозиторием и зависимостями.
func NewService(repo Repository, opts Options) *Service {
	s := &Service{
		repo:        repo,
		catalog:     opts.Catalog,
		payouts:     opts.Payouts,
		verifier:    opts.Verifier,
		locker:      opts.Locker,
		publisher:   opts.Publisher,
		logger:      opts.Logger,
		platformFee: opts.PlatformFeePercent,
		now:         opts.Now,
	}
	if s.locker == nil {
		s.locker = lock.NewLocal()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// translate переводит ошибки хранилища в доменные виды ошибок.
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case model.KindOf(err) != model.KindUnknown:
		return err
	case errors.Is(err, repository.ErrNotFound):
		return model.Wrap(model.KindNotFound, op, err)
	case errors.Is(err, repository.ErrTableOccupied),
		errors.Is(err, repository.ErrDuplicateCoupon),
		errors.Is(err, repository.ErrInvalidTransition):
		return model.Wrap(model.KindConflict, op, err)
	case errors.Is(err, repository.ErrOfferExhausted):
		return model.Wrap(model.KindConflict, op, fmt.Errorf("conditions changed, please retry: %w", err))
	case errors.Is(err, repository.ErrDuplicateSettlement):
		return model.Wrap(model.KindConsistency, op, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func (s *Service) getReservation(ctx context.Context, op, id string) (*model.Reservation, error) {
	res, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return nil, translate(op, err)
	}
	return res, nil
}

func (s *Service) billingConfig(ctx context.Context, restaurantID string) (*model.BillingConfig, error) {
	cfg, err := s.repo.GetBillingConfig(ctx, restaurantID)
	if errors.Is(err, repository.ErrNotFound) {
		def := model.DefaultBillingConfig()
		return &def, nil
	}
	return cfg, err
}

func (s *Service) reservationPolicy(ctx context.Context, restaurantID string) (model.ReservationPolicy, error) {
	p, err := s.repo.GetReservationPolicy(ctx, restaurantID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.DefaultReservationPolicy(), nil
	}
	if err != nil {
		return model.ReservationPolicy{}, err
	}
	return *p, nil
}

func (s *Service) withLock(ctx context.Context, key string, fn func() error) error {
	unlock, err := s.locker.Lock(ctx, key)
	if err != nil {
		return model.Wrap(model.KindConflict, "service.lock", err)
	}
	defer unlock()
	return fn()
}

func newEvent(typ model.EventType, restaurantID, reservationID string, now time.Time, payload map[string]string) model.Event {
	return model.Event{
		ID:            uuid.NewString(),
		Type:          typ,
		RestaurantID:  restaurantID,
		ReservationID: reservationID,
		Payload:       payload,
		CreatedAt:     now,
	}
}

func reservationEvent(typ model.EventType, r *model.Reservation, now time.Time) model.Event {
	return newEvent(typ, r.RestaurantID, r.ID, now, map[string]string{
		"status":        string(r.Status),
		"paymentStatus": string(r.PaymentStatus),
		"tableId":       r.TableID,
	})
}

func requireUser(op string, actor model.Actor) error {
	if actor.UserID == "" {
		return model.Errorf(model.KindForbidden, op, "authentication required")
	}
	return nil
}

func requireStaff(op string, actor model.Actor, restaurantID string) error {
	if !actor.IsStaffOf(restaurantID) {
		return model.Errorf(model.KindForbidden, op, "staff access to restaurant %s required", restaurantID)
	}
	return nil
}

func requireOwner(op string, actor model.Actor, r *model.Reservation) error {
	if actor.UserID == "" || actor.UserID != r.UserID {
		return model.Errorf(model.KindForbidden, op, "reservation %s belongs to another guest", r.ID)
	}
	return nil
}

func canView(actor model.Actor, r *model.Reservation) bool {
	return (actor.UserID != "" && actor.UserID == r.UserID) || actor.IsStaffOf(r.RestaurantID)
}

func requireViewer(op string, actor model.Actor, r *model.Reservation) error {
	if !canView(actor, r) {
		return model.Errorf(model.KindForbidden, op, "no access to reservation %s", r.ID)
	}
	return nil
}
