package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/tableside/internal/model"
	"github.com/mmeshcher/tableside/internal/payout"
	"github.com/mmeshcher/tableside/internal/repository"
)

const (
	payoutBatchSize = 100
	outboxBatchSize = 100
)

// StartPayoutUpdates запускает фоновый процесс, который сверяет ожидающие выводы с системой выплат.
func (s *Service) StartPayoutUpdates(ctx context.Context) {
	if s.payouts == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.processPayoutBatch(ctx)
			}
		}
	}()
}

func (s *Service) processPayoutBatch(ctx context.Context) {
	pending, err := s.repo.ListPendingWithdrawals(ctx, payoutBatchSize)
	if err != nil {
		s.logger.Warn("list pending withdrawals", zap.Error(err))
		return
	}

	for _, t := range pending {
		p, statusCode, retryAfter, err := s.payouts.GetPayout(ctx, t.ID)
		if err != nil {
			s.logger.Warn("get payout", zap.String("transactionID", t.ID), zap.Error(err))
			continue
		}

		if statusCode == http.StatusNoContent {
			statusCode, retryAfter, err = s.payouts.Submit(ctx, payout.Payout{
				ID:           t.ID,
				RestaurantID: t.RestaurantID,
				Amount:       t.Amount.Neg(),
				Status:       payout.StatusRegistered,
			})
			if err != nil {
				s.logger.Warn("submit payout", zap.String("transactionID", t.ID), zap.Error(err))
				continue
			}
		}

		if statusCode == http.StatusTooManyRequests {
			if !wait(ctx, retryAfter) {
				return
			}
			continue
		}

		if p == nil || !p.Final() {
			continue
		}

		status := model.TransactionFailed
		if p.Succeeded() {
			status = model.TransactionCompleted
		}
		if err := s.resolveWithdrawal(ctx, t.ID, status, p.Status); err != nil {
			s.logger.Warn("resolve withdrawal", zap.String("transactionID", t.ID), zap.Error(err))
		}
	}
}

// resolveWithdrawal меняет только статус заявки. Сумма записи журнала неизменна.
func (s *Service) resolveWithdrawal(ctx context.Context, id string, status model.TransactionStatus, payoutStatus string) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		t, err := tx.UpdateTransactionStatus(ctx, id, status)
		if err != nil {
			return err
		}
		return tx.EnqueueEvents(ctx, newEvent(model.EventWithdrawalResolved, t.RestaurantID, "", s.now(), map[string]string{
			"transactionId": t.ID,
			"status":        string(status),
			"payoutStatus":  payoutStatus,
		}))
	})
	if errors.Is(err, repository.ErrInvalidTransition) {
		return nil
	}
	return err
}

func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// StartOutboxRelay периодически доставляет события из outbox подписчикам.
func (s *Service) StartOutboxRelay(ctx context.Context, interval time.Duration) {
	if s.publisher == nil {
		return
	}
	if interval <= 0 {
		interval = time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.RelayOutbox(ctx); err != nil && ctx.Err() == nil {
					s.logger.Warn("relay outbox", zap.Error(err))
				}
			}
		}
	}()
}

// RelayOutbox публикует накопленные события по порядку и отмечает доставленные.
// Доставка останавливается на первой ошибке, чтобы не нарушить порядок событий.
func (s *Service) RelayOutbox(ctx context.Context) (int, error) {
	if s.publisher == nil {
		return 0, nil
	}

	events, err := s.repo.FetchOutbox(ctx, outboxBatchSize)
	if err != nil {
		return 0, err
	}

	delivered := make([]string, 0, len(events))
	var publishErr error
	for _, e := range events {
		if err := s.publisher.Publish(ctx, e); err != nil {
			publishErr = err
			break
		}
		delivered = append(delivered, e.ID)
	}

	if len(delivered) > 0 {
		if err := s.repo.MarkOutboxDelivered(ctx, delivered); err != nil {
			return 0, errors.Join(publishErr, err)
		}
	}
	return len(delivered), publishErr
}
