package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/tableside/internal/billing"
	"github.com/mmeshcher/tableside/internal/model"
	"github.com/mmeshcher/tableside/internal/offer"
	"github.com/mmeshcher/tableside/internal/repository"
	"github.com/mmeshcher/tableside/internal/validation"
)

// LiveBill: предварительный расчёт открытого счёта или замороженный итог закрытого.
type LiveBill struct {
	ReservationID string
	Status        model.ReservationStatus
	PaymentStatus model.PaymentStatus
	Quote         billing.Quote
	Settled       *model.BillSnapshot
}

// quote рассчитывает счёт и выбирает единственный источник скидки.
// Применённый купон побеждает публичную акцию. Если купон перестал подходить, берётся лучшая публичная акция.
func (s *Service) quote(items []model.OrderItem, cfg *model.BillingConfig, public []model.Offer, coupon *model.Offer, now time.Time) (billing.Quote, *model.Offer) {
	breakdown := billing.Calculate(items, cfg)

	if coupon != nil {
		savings, err := offer.ValidateCoupon(coupon, coupon.Code, breakdown.MenuSubtotal, items, now)
		if err == nil {
			return billing.ApplyDiscount(breakdown, savings, billing.DiscountCoupon, coupon.ID, offer.Describe(*coupon)), coupon
		}
		s.logger.Debug("applied coupon no longer qualifies", zap.String("offerID", coupon.ID), zap.Error(err))
	}

	best, savings := offer.Best(public, breakdown.MenuSubtotal, items, now)
	if best == nil {
		return billing.ApplyDiscount(breakdown, decimal.Zero, billing.DiscountNone, "", ""), nil
	}
	return billing.ApplyDiscount(breakdown, savings, billing.DiscountOffer, best.ID, offer.Describe(*best)), best
}

// GetLiveBill возвращает расчёт счёта без побочных эффектов. Результат носит рекомендательный характер
// и заново проверяется при закрытии счёта.
func (s *Service) GetLiveBill(ctx context.Context, actor model.Actor, reservationID string) (*LiveBill, error) {
	const op = "service.GetLiveBill"

	res, err := s.getReservation(ctx, op, reservationID)
	if err != nil {
		return nil, err
	}
	if err := requireViewer(op, actor, res); err != nil {
		return nil, err
	}

	orders, err := s.repo.ListOrdersByReservation(ctx, reservationID)
	if err != nil {
		return nil, translate(op, err)
	}

	bill := &LiveBill{
		ReservationID: res.ID,
		Status:        res.Status,
		PaymentStatus: res.PaymentStatus,
	}
	if res.Status == model.ReservationCompleted {
		for _, o := range orders {
			if o.Snapshot != nil {
				snap := *o.Snapshot
				bill.Settled = &snap
				break
			}
		}
	}

	cfg, err := s.billingConfig(ctx, res.RestaurantID)
	if err != nil {
		return nil, translate(op, err)
	}
	public, err := s.repo.ListOffers(ctx, res.RestaurantID)
	if err != nil {
		return nil, translate(op, err)
	}

	var coupon *model.Offer
	if res.AppliedCouponID != "" {
		coupon, err = s.repo.GetOffer(ctx, res.AppliedCouponID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, translate(op, err)
		}
	}

	items := billing.Billable(billing.Flatten(orders))
	bill.Quote, _ = s.quote(items, cfg, public, coupon, s.now())
	return bill, nil
}

// ApplyCoupon проверяет купон по текущему счёту и закрепляет его за сессией.
// Скидка будет заново рассчитана и зафиксирована только при закрытии счёта.
func (s *Service) ApplyCoupon(ctx context.Context, actor model.Actor, reservationID, code string) (decimal.Decimal, error) {
	const op = "service.ApplyCoupon"

	res, err := s.getReservation(ctx, op, reservationID)
	if err != nil {
		return decimal.Zero, err
	}
	if err := requireViewer(op, actor, res); err != nil {
		return decimal.Zero, err
	}
	if res.Status != model.ReservationActive {
		return decimal.Zero, model.Errorf(model.KindConflict, op, "reservation %s is %s", res.ID, res.Status)
	}

	normalized, ok := validation.NormalizeCouponCode(code)
	if !ok {
		return decimal.Zero, &model.CouponNotApplicableError{Code: code, Reason: "malformed coupon code"}
	}
	coupon, err := s.repo.GetOfferByCode(ctx, res.RestaurantID, normalized)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return decimal.Zero, translate(op, err)
	}

	orders, err := s.repo.ListOrdersByReservation(ctx, reservationID)
	if err != nil {
		return decimal.Zero, translate(op, err)
	}
	items := billing.Billable(billing.Flatten(orders))

	savings, err := offer.ValidateCoupon(coupon, code, billing.Subtotal(items), items, s.now())
	if err != nil {
		return decimal.Zero, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		r, err := tx.LockReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if r.Status != model.ReservationActive {
			return model.Errorf(model.KindConflict, op, "reservation %s is %s", r.ID, r.Status)
		}
		if r.AppliedCouponID == coupon.ID {
			return nil
		}

		r.AppliedCouponID = coupon.ID
		r.UpdatedAt = s.now()
		if err := tx.UpdateReservation(ctx, r); err != nil {
			return err
		}
		return tx.EnqueueEvents(ctx, newEvent(model.EventCouponApplied, r.RestaurantID, r.ID, r.UpdatedAt, map[string]string{
			"offerId": coupon.ID,
			"savings": model.Round(savings).StringFixed(2),
		}))
	})
	if err != nil {
		return decimal.Zero, translate(op, err)
	}

	return model.Round(savings), nil
}
