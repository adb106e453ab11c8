package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/tableside/internal/billing"
	"github.com/mmeshcher/tableside/internal/ledger"
	"github.com/mmeshcher/tableside/internal/model"
	"github.com/mmeshcher/tableside/internal/repository"
	"github.com/mmeshcher/tableside/internal/session"
)

// ClaimTable открывает сессию гостя «с улицы» на свободном столике.
// Если столик уже удерживает другая сессия, возвращается *model.TableOccupiedError.
// Повторный запрос того же гостя возвращает его открытую сессию.
func (s *Service) ClaimTable(ctx context.Context, actor model.Actor, restaurantID, tableID string) (*model.Reservation, error) {
	return s.openSession(ctx, "service.ClaimTable", actor, restaurantID, tableID, model.ReservationTypeWalkIn, decimal.Zero, "")
}

// BookTable оформляет предварительное бронирование. Предоплата, если она есть, сразу попадает в журнал ресторана.
func (s *Service) BookTable(ctx context.Context, actor model.Actor, restaurantID, tableID string, fee decimal.Decimal, paymentRef string) (*model.Reservation, error) {
	const op = "service.BookTable"

	if fee.Sign() < 0 {
		return nil, model.Errorf(model.KindValidation, op, "reservation fee cannot be negative")
	}
	if fee.Sign() > 0 && strings.TrimSpace(paymentRef) == "" {
		return nil, model.Errorf(model.KindValidation, op, "payment reference is required for a paid booking")
	}
	return s.openSession(ctx, op, actor, restaurantID, tableID, model.ReservationTypeReservation, model.Round(fee), paymentRef)
}

func (s *Service) openSession(ctx context.Context, op string, actor model.Actor, restaurantID, tableID string, typ model.ReservationType, fee decimal.Decimal, paymentRef string) (*model.Reservation, error) {
	if err := requireUser(op, actor); err != nil {
		return nil, err
	}

	var res *model.Reservation
	err := s.withLock(ctx, "claim:"+restaurantID+"/"+tableID, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			table, err := tx.LockTable(ctx, restaurantID, tableID)
			if err != nil {
				return err
			}

			existing, err := tx.OpenReservationForTable(ctx, restaurantID, tableID)
			if err != nil {
				return err
			}
			if existing != nil && existing.UserID == actor.UserID && existing.Type == typ {
				res = existing
				return nil
			}
			if err := session.Admit(tableID, existing); err != nil {
				return err
			}

			now := s.now()
			res = &model.Reservation{
				ID:             uuid.NewString(),
				RestaurantID:   restaurantID,
				TableID:        tableID,
				TableName:      table.Name,
				UserID:         actor.UserID,
				UserName:       actor.Name,
				Status:         model.ReservationPending,
				Type:           typ,
				PaymentStatus:  model.PaymentUnpaid,
				ReservationFee: fee,
				CreatedAt:      now,
				UpdatedAt:      now,
			}

			var events []model.Event
			if fee.Sign() > 0 {
				entry, err := ledger.NewEntry(restaurantID, model.TransactionReservation, fee, model.TransactionCompleted, now)
				if err != nil {
					return err
				}
				entry.ReservationID = res.ID
				entry.Metadata["payment_ref"] = paymentRef
				if err := tx.AppendTransaction(ctx, &entry); err != nil {
					return err
				}
				res.PaymentStatus = model.PaymentPaid
				res.Split.Restaurant = fee
			}

			if err := tx.CreateReservation(ctx, res); err != nil {
				return err
			}
			if err := tx.SetTableStatus(ctx, restaurantID, tableID, session.TableStatusAfter(res.Status)); err != nil {
				return err
			}

			events = append(events, reservationEvent(model.EventReservationCreated, res, now))
			return tx.EnqueueEvents(ctx, events...)
		})
	})
	if err != nil {
		return nil, translate(op, err)
	}

	s.logger.Debug("reservation opened",
		zap.String("reservationID", res.ID),
		zap.String("tableID", tableID),
		zap.String("type", string(typ)))
	return res, nil
}

// AcceptReservation подтверждает сессию. Столик становится занятым в той же транзакции.
func (s *Service) AcceptReservation(ctx context.Context, actor model.Actor, reservationID string) (*model.Reservation, error) {
	const op = "service.AcceptReservation"

	return s.transition(ctx, op, reservationID, func(r *model.Reservation) error {
		if err := requireStaff(op, actor, r.RestaurantID); err != nil {
			return err
		}
		return session.Apply(r, session.ActionAccept, s.now())
	}, model.EventReservationAccepted)
}

// DeclineReservation отклоняет ожидающую сессию и возвращает предоплату по политике ресторана.
func (s *Service) DeclineReservation(ctx context.Context, actor model.Actor, reservationID string) (*model.Reservation, error) {
	const op = "service.DeclineReservation"

	return s.transition(ctx, op, reservationID, func(r *model.Reservation) error {
		if err := requireStaff(op, actor, r.RestaurantID); err != nil {
			return err
		}
		return session.Apply(r, session.ActionDecline, s.now())
	}, model.EventReservationDeclined)
}

// CancelReservation отменяет сессию по запросу гостя или персонала.
// Активную сессию с неотменёнными позициями отменить нельзя: счёт должен быть закрыт.
func (s *Service) CancelReservation(ctx context.Context, actor model.Actor, reservationID string) (*model.Reservation, error) {
	const op = "service.CancelReservation"

	return s.transition(ctx, op, reservationID, func(r *model.Reservation) error {
		if !canView(actor, r) {
			return model.Errorf(model.KindForbidden, op, "no access to reservation %s", r.ID)
		}
		return session.Apply(r, session.ActionCancel, s.now())
	}, model.EventReservationCanceled)
}

// transition выполняет переход сессии вместе со сменой статуса столика и возвратом предоплаты.
func (s *Service) transition(ctx context.Context, op, reservationID string, apply func(r *model.Reservation) error, eventType model.EventType) (*model.Reservation, error) {
	current, err := s.getReservation(ctx, op, reservationID)
	if err != nil {
		return nil, err
	}
	policy, err := s.reservationPolicy(ctx, current.RestaurantID)
	if err != nil {
		return nil, translate(op, err)
	}

	var res *model.Reservation
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		r, err := tx.LockReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		wasActive := r.Status == model.ReservationActive

		if err := apply(r); err != nil {
			return err
		}

		if r.Status == model.ReservationCancelled && wasActive {
			orders, err := tx.ListOrders(ctx, r.ID)
			if err != nil {
				return err
			}
			if n := len(billing.Billable(billing.Flatten(orders))); n > 0 {
				return model.Errorf(model.KindConflict, op, "reservation %s has %d open items, settle the bill first", r.ID, n)
			}
		}

		if r.Status == model.ReservationDeclined || r.Status == model.ReservationCancelled {
			if err := s.refund(ctx, tx, r, policy); err != nil {
				return err
			}
		}

		if err := tx.UpdateReservation(ctx, r); err != nil {
			return err
		}
		if err := tx.SetTableStatus(ctx, r.RestaurantID, r.TableID, session.TableStatusAfter(r.Status)); err != nil {
			return err
		}

		events := []model.Event{reservationEvent(eventType, r, r.UpdatedAt)}
		if !r.Status.IsOpen() {
			events = append(events, newEvent(model.EventTableReleased, r.RestaurantID, r.ID, r.UpdatedAt, map[string]string{"tableId": r.TableID}))
		}
		res = r
		return tx.EnqueueEvents(ctx, events...)
	})
	if err != nil {
		return nil, translate(op, err)
	}
	return res, nil
}

// feeRefundable сообщает, что предоплата брони внесена и ещё не возвращалась.
// Статус оплаты счёта здесь не учитывается: запрос оплаты на кассе его меняет.
func feeRefundable(r *model.Reservation) bool {
	return r.ReservationFee.Sign() > 0 &&
		r.PaymentStatus != model.PaymentRefunded &&
		r.Split.Refund.IsZero()
}

// refund проводит возврат предоплаты и фиксирует распределение суммы брони.
func (s *Service) refund(ctx context.Context, tx repository.Tx, r *model.Reservation, policy model.ReservationPolicy) error {
	if !feeRefundable(r) {
		return nil
	}

	amount := ledger.Refund(policy, r.ReservationFee)
	r.Split.Refund = amount
	r.Split.Restaurant = r.ReservationFee.Sub(amount)
	if amount.Sign() <= 0 {
		return nil
	}

	entry, err := ledger.NewEntry(r.RestaurantID, model.TransactionCancellation, amount.Neg(), model.TransactionCompleted, r.UpdatedAt)
	if err != nil {
		return err
	}
	entry.ReservationID = r.ID
	entry.Metadata["reason"] = string(r.Status)
	if err := tx.AppendTransaction(ctx, &entry); err != nil {
		return err
	}

	r.PaymentStatus = model.PaymentRefunded
	return nil
}

// RequestCounterPayment отмечает, что гость хочет оплатить счёт на кассе.
func (s *Service) RequestCounterPayment(ctx context.Context, actor model.Actor, reservationID string) (*model.Reservation, error) {
	const op = "service.RequestCounterPayment"

	var res *model.Reservation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		r, err := tx.LockReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if err := requireOwner(op, actor, r); err != nil {
			return err
		}
		if r.Status != model.ReservationActive {
			return model.Errorf(model.KindConflict, op, "reservation %s is %s", r.ID, r.Status)
		}

		res = r
		switch r.PaymentStatus {
		case model.PaymentPendingCounter:
			return nil
		case model.PaymentUnpaid, model.PaymentPaid:
		default:
			return model.Errorf(model.KindConflict, op, "reservation %s payment is %s", r.ID, r.PaymentStatus)
		}

		r.PaymentStatus = model.PaymentPendingCounter
		r.UpdatedAt = s.now()
		if err := tx.UpdateReservation(ctx, r); err != nil {
			return err
		}
		return tx.EnqueueEvents(ctx, reservationEvent(model.EventCounterRequested, r, r.UpdatedAt))
	})
	if err != nil {
		return nil, translate(op, err)
	}
	return res, nil
}

// GetReservation возвращает сессию гостю-владельцу или персоналу ресторана.
func (s *Service) GetReservation(ctx context.Context, actor model.Actor, reservationID string) (*model.Reservation, error) {
	const op = "service.GetReservation"

	res, err := s.getReservation(ctx, op, reservationID)
	if err != nil {
		return nil, err
	}
	if err := requireViewer(op, actor, res); err != nil {
		return nil, err
	}
	return res, nil
}
