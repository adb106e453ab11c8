package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/tableside/internal/ledger"
	"github.com/mmeshcher/tableside/internal/model"
	"github.com/mmeshcher/tableside/internal/repository"
	"github.com/mmeshcher/tableside/internal/validation"
)

// GetWalletStats возвращает балансы ресторана, пересчитанные из журнала транзакций.
func (s *Service) GetWalletStats(ctx context.Context, actor model.Actor, restaurantID string) (model.WalletStats, error) {
	const op = "service.GetWalletStats"

	if err := requireStaff(op, actor, restaurantID); err != nil {
		return model.WalletStats{}, err
	}
	stats, err := s.repo.GetWalletStats(ctx, restaurantID)
	if err != nil {
		return model.WalletStats{}, translate(op, err)
	}
	return stats, nil
}

// ListTransactions возвращает записи журнала ресторана за полуинтервал [from, to). Нулевые границы не ограничивают выборку.
func (s *Service) ListTransactions(ctx context.Context, actor model.Actor, restaurantID string, from, to time.Time) ([]model.Transaction, error) {
	const op = "service.ListTransactions"

	if err := requireStaff(op, actor, restaurantID); err != nil {
		return nil, err
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return nil, model.Errorf(model.KindValidation, op, "range start must be before its end")
	}

	txns, err := s.repo.ListTransactions(ctx, restaurantID, from, to)
	if err != nil {
		return nil, translate(op, err)
	}
	return txns, nil
}

// RequestWithdrawal создаёт ожидающую заявку на вывод средств.
// Заявки ресторана сериализуются, поэтому сумма всех ожидающих выводов не превышает доступный баланс.
func (s *Service) RequestWithdrawal(ctx context.Context, actor model.Actor, restaurantID string, amount decimal.Decimal) (*model.Transaction, error) {
	const op = "service.RequestWithdrawal"

	if err := requireStaff(op, actor, restaurantID); err != nil {
		return nil, err
	}
	if !validation.IsValidAmount(amount) {
		return nil, model.Errorf(model.KindValidation, op, "withdraw amount must be positive with at most two decimal places")
	}

	var entry model.Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		stats, err := tx.LockWallet(ctx, restaurantID)
		if err != nil {
			return err
		}
		if available := ledger.Withdrawable(stats); amount.GreaterThan(available) {
			return model.Wrap(model.KindConflict, op, fmt.Errorf("%w: requested %s, withdrawable %s",
				ErrInsufficientFunds, amount.StringFixed(2), available.StringFixed(2)))
		}

		entry, err = ledger.NewEntry(restaurantID, model.TransactionWithdrawal, amount.Neg(), model.TransactionPending, s.now())
		if err != nil {
			return err
		}
		entry.Metadata["requested_by"] = actor.UserID
		if err := tx.AppendTransaction(ctx, &entry); err != nil {
			return err
		}

		return tx.EnqueueEvents(ctx, newEvent(model.EventWithdrawalRequested, restaurantID, "", entry.CreatedAt, map[string]string{
			"transactionId": entry.ID,
			"amount":        amount.StringFixed(2),
		}))
	})
	if err != nil {
		return nil, translate(op, err)
	}
	return &entry, nil
}
