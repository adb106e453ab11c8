package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/tableside/internal/billing"
	"github.com/mmeshcher/tableside/internal/ledger"
	"github.com/mmeshcher/tableside/internal/model"
	"github.com/mmeshcher/tableside/internal/offer"
	"github.com/mmeshcher/tableside/internal/repository"
	"github.com/mmeshcher/tableside/internal/session"
	"github.com/mmeshcher/tableside/internal/validation"
)

// SettleRequest описывает закрытие счёта сессии.
type SettleRequest struct {
	ReservationID  string
	Method         model.PaymentMethod
	IdempotencyKey string
	PaymentRef     string
	// ExpectedTotal: итог, который видел плательщик. Расхождение со свежим расчётом отменяет закрытие.
	ExpectedTotal decimal.NullDecimal
}

// SettleAtCounter закрывает счёт после подтверждения оплаты на кассе сотрудником ресторана.
func (s *Service) SettleAtCounter(ctx context.Context, actor model.Actor, reservationID, paymentRef string, expectedTotal decimal.NullDecimal) (*model.BillSnapshot, error) {
	const op = "service.SettleAtCounter"

	res, err := s.getReservation(ctx, op, reservationID)
	if err != nil {
		return nil, err
	}
	if err := requireStaff(op, actor, res.RestaurantID); err != nil {
		return nil, err
	}

	return s.Settle(ctx, SettleRequest{
		ReservationID:  reservationID,
		Method:         model.PaymentMethodCounter,
		IdempotencyKey: model.CounterSettlementKey,
		PaymentRef:     paymentRef,
		ExpectedTotal:  expectedTotal,
	})
}

// HandlePaymentCallback обрабатывает уведомление платёжного шлюза.
// Неуспешная оплата подтверждается без изменения состояния.
func (s *Service) HandlePaymentCallback(ctx context.Context, payload []byte, signature string) (*model.BillSnapshot, error) {
	const op = "service.HandlePaymentCallback"

	if s.verifier == nil {
		return nil, model.Errorf(model.KindExternal, op, "payment gateway is not configured")
	}

	conf, err := s.verifier.Parse(payload, signature)
	if err != nil {
		s.logger.Warn("payment callback rejected", zap.Error(err))
		return nil, err
	}
	if conf.Ignored {
		return nil, nil
	}
	if !conf.Succeeded {
		s.logger.Info("online payment failed",
			zap.String("reservationID", conf.ReservationID),
			zap.String("paymentRef", conf.PaymentRef))
		return nil, nil
	}

	return s.Settle(ctx, SettleRequest{
		ReservationID:  conf.ReservationID,
		Method:         model.PaymentMethodOnline,
		IdempotencyKey: conf.PaymentRef,
		PaymentRef:     conf.PaymentRef,
		ExpectedTotal:  decimal.NewNullDecimal(conf.Amount),
	})
}

// Settle закрывает счёт сессии: фиксирует скидку, проводит оплату в журнале, отмечает позиции оплаченными
// и освобождает столик. Всё выполняется одной транзакцией.
//
// Повтор с тем же ключом идемпотентности возвращает сохранённый итог и ничего не меняет.
// Повтор с другим ключом после закрытия считается нарушением целостности.
func (s *Service) Settle(ctx context.Context, req SettleRequest) (*model.BillSnapshot, error) {
	const op = "service.Settle"

	if !validation.IsValidReference(req.IdempotencyKey) {
		return nil, model.Errorf(model.KindValidation, op, "idempotency key is missing or malformed")
	}

	res, err := s.getReservation(ctx, op, req.ReservationID)
	if err != nil {
		return nil, err
	}
	cfg, err := s.billingConfig(ctx, res.RestaurantID)
	if err != nil {
		return nil, translate(op, err)
	}

	var (
		snapshot model.BillSnapshot
		replayed bool
	)
	err = s.withLock(ctx, "settle:"+req.ReservationID, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			replayed = false

			r, err := tx.LockReservation(ctx, req.ReservationID)
			if err != nil {
				return err
			}

			existing, err := tx.GetSettlement(ctx, r.ID)
			if err != nil {
				return err
			}
			if existing != nil {
				if existing.IdempotencyKey != req.IdempotencyKey {
					return model.Errorf(model.KindConsistency, op, "reservation %s already settled with key %q", r.ID, existing.IdempotencyKey)
				}
				snapshot = existing.Snapshot
				replayed = true
				return nil
			}
			if r.Status != model.ReservationActive {
				return model.Errorf(model.KindConflict, op, "reservation %s is %s", r.ID, r.Status)
			}

			snapshot, err = s.commitSettlement(ctx, tx, r, cfg, req)
			return err
		})
	})
	if err != nil {
		err = translate(op, err)
		if model.KindOf(err) == model.KindConsistency {
			s.logger.Error("settlement rejected", zap.String("reservationID", req.ReservationID), zap.Error(err))
		}
		return nil, err
	}

	if replayed {
		s.logger.Info("settlement replayed", zap.String("reservationID", req.ReservationID))
	}
	return &snapshot, nil
}

func (s *Service) commitSettlement(ctx context.Context, tx repository.Tx, r *model.Reservation, cfg *model.BillingConfig, req SettleRequest) (model.BillSnapshot, error) {
	const op = "service.Settle"

	orders, err := tx.ListOrders(ctx, r.ID)
	if err != nil {
		return model.BillSnapshot{}, err
	}
	items := billing.Billable(billing.Flatten(orders))
	if len(items) == 0 {
		return model.BillSnapshot{}, model.Errorf(model.KindValidation, op, "reservation %s has nothing to settle", r.ID)
	}

	// Публичные акции блокируются раньше купона: единый порядок для всех закрытий.
	public, err := tx.LockPublicOffers(ctx, r.RestaurantID)
	if err != nil {
		return model.BillSnapshot{}, err
	}
	var coupon *model.Offer
	if r.AppliedCouponID != "" {
		locked, err := tx.LockOffers(ctx, r.RestaurantID, []string{r.AppliedCouponID})
		if err != nil {
			return model.BillSnapshot{}, err
		}
		if len(locked) == 1 {
			coupon = &locked[0]
		}
	}

	now := s.now()

	// Купон, показанный гостю, либо применяется, либо закрытие отклоняется. Подмена скидки недопустима.
	if r.AppliedCouponID != "" {
		code := r.AppliedCouponID
		if coupon != nil {
			code = coupon.Code
		}
		if _, err := offer.ValidateCoupon(coupon, code, billing.Subtotal(items), items, now); err != nil {
			return model.BillSnapshot{}, model.Wrap(model.KindConflict, op,
				fmt.Errorf("conditions changed, please retry: %w: %v", repository.ErrOfferExhausted, err))
		}
	}

	q, applied := s.quote(items, cfg, public, coupon, now)
	snapshot := q.Snapshot(now)

	if req.ExpectedTotal.Valid && !model.Round(req.ExpectedTotal.Decimal).Equal(snapshot.GrandTotal) {
		return model.BillSnapshot{}, model.Errorf(model.KindConflict, op,
			"bill changed: expected %s, now %s", model.Round(req.ExpectedTotal.Decimal).StringFixed(2), snapshot.GrandTotal.StringFixed(2))
	}

	platform, restaurant := ledger.Split(snapshot.GrandTotal, s.platformFee)

	var transactionID string
	if restaurant.Sign() > 0 {
		entry, err := ledger.NewEntry(r.RestaurantID, model.TransactionBillPayment, restaurant, model.TransactionCompleted, now)
		if err != nil {
			return model.BillSnapshot{}, err
		}
		entry.ReservationID = r.ID
		entry.Metadata["gross"] = snapshot.GrandTotal.StringFixed(2)
		entry.Metadata["platform_fee"] = platform.StringFixed(2)
		entry.Metadata["method"] = string(req.Method)
		entry.Metadata["payment_ref"] = req.PaymentRef
		entry.Metadata["idempotency_key"] = req.IdempotencyKey
		if snapshot.OfferID != "" {
			entry.Metadata["offer_id"] = snapshot.OfferID
			entry.Metadata["discount"] = snapshot.Discount.StringFixed(2)
		}
		if err := tx.AppendTransaction(ctx, &entry); err != nil {
			return model.BillSnapshot{}, err
		}
		transactionID = entry.ID
	}

	paymentRef := req.PaymentRef
	if paymentRef == "" {
		paymentRef = transactionID
	}

	var lastOrderID string
	for i := range orders {
		o := &orders[i]
		for j := range o.Items {
			if o.Items[j].Billable() {
				o.Items[j].Status = model.OrderPaid
			}
		}
		o.Status = orderStatus(o.Items)
		o.PaymentRef = paymentRef
		o.AppliedOfferID = snapshot.OfferID
		o.AppliedDiscount = snapshot.Discount
		o.Snapshot = &snapshot
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return model.BillSnapshot{}, err
		}
		lastOrderID = o.ID
	}

	if applied != nil && snapshot.Discount.Sign() > 0 {
		usage := &model.OfferUsage{
			ID:            uuid.NewString(),
			OfferID:       applied.ID,
			RestaurantID:  r.RestaurantID,
			UserID:        r.UserID,
			ReservationID: r.ID,
			OrderID:       lastOrderID,
			TransactionID: transactionID,
			Discount:      snapshot.Discount,
			CreatedAt:     now,
		}
		if err := tx.RecordOfferUsage(ctx, usage); err != nil {
			return model.BillSnapshot{}, err
		}
	}

	if err := session.Apply(r, session.ActionComplete, now); err != nil {
		return model.BillSnapshot{}, err
	}
	r.PaymentStatus = model.PaymentPaid
	r.TotalBillAmount = snapshot.GrandTotal
	r.Split.Platform = platform
	r.Split.Restaurant = r.Split.Restaurant.Add(restaurant)
	if err := tx.UpdateReservation(ctx, r); err != nil {
		return model.BillSnapshot{}, err
	}
	if err := tx.SetTableStatus(ctx, r.RestaurantID, r.TableID, session.TableStatusAfter(r.Status)); err != nil {
		return model.BillSnapshot{}, err
	}

	if err := tx.CreateSettlement(ctx, &model.Settlement{
		ReservationID:  r.ID,
		IdempotencyKey: req.IdempotencyKey,
		Method:         req.Method,
		PaymentRef:     req.PaymentRef,
		TransactionID:  transactionID,
		Snapshot:       snapshot,
		CreatedAt:      now,
	}); err != nil {
		return model.BillSnapshot{}, err
	}

	err = tx.EnqueueEvents(ctx,
		newEvent(model.EventBillSettled, r.RestaurantID, r.ID, now, map[string]string{
			"grandTotal":    snapshot.GrandTotal.StringFixed(2),
			"method":        string(req.Method),
			"transactionId": transactionID,
		}),
		newEvent(model.EventTableReleased, r.RestaurantID, r.ID, now, map[string]string{"tableId": r.TableID}),
	)
	return snapshot, err
}
