// Package ledger содержит правила журнала транзакций ресторана и расчёт балансов.
package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/tableside/internal/model"
)

// Stats выводит балансы из журнала. Результат не зависит от порядка записей.
//
// available: сумма завершённых записей с учётом знака, pending: сумма ожидающих,
// totalEarnings: сумма завершённых поступлений.
func Stats(txns []model.Transaction) model.WalletStats {
	stats := model.WalletStats{
		Available:      decimal.Zero,
		Pending:        decimal.Zero,
		TotalEarnings:  decimal.Zero,
		PendingOutflow: decimal.Zero,
	}
	for _, t := range txns {
		switch t.Status {
		case model.TransactionCompleted:
			stats.Available = stats.Available.Add(t.Amount)
			if t.Amount.Sign() > 0 {
				stats.TotalEarnings = stats.TotalEarnings.Add(t.Amount)
			}
		case model.TransactionPending:
			stats.Pending = stats.Pending.Add(t.Amount)
			if t.Amount.Sign() < 0 {
				stats.PendingOutflow = stats.PendingOutflow.Add(t.Amount)
			}
		}
	}
	return stats
}

// Withdrawable возвращает сумму, доступную к выводу: доступный баланс минус ожидающие списания.
func Withdrawable(stats model.WalletStats) decimal.Decimal {
	amount := stats.Available.Add(stats.PendingOutflow)
	if amount.Sign() < 0 {
		return decimal.Zero
	}
	return amount
}

// CanTransition сообщает, допустим ли переход статуса записи. Разрешён только pending → completed|failed.
func CanTransition(from, to model.TransactionStatus) bool {
	return from == model.TransactionPending && (to == model.TransactionCompleted || to == model.TransactionFailed)
}

// NewEntry создаёт запись журнала и проверяет знак суммы для её типа.
func NewEntry(restaurantID string, typ model.TransactionType, amount decimal.Decimal, status model.TransactionStatus, now time.Time) (model.Transaction, error) {
	const op = "ledger.NewEntry"

	amount = model.Round(amount)
	switch typ {
	case model.TransactionReservation, model.TransactionBillPayment:
		if amount.Sign() <= 0 {
			return model.Transaction{}, model.Errorf(model.KindConsistency, op, "%s entry must be positive, got %s", typ, amount)
		}
	case model.TransactionCancellation, model.TransactionWithdrawal, model.TransactionSubscription:
		if amount.Sign() >= 0 {
			return model.Transaction{}, model.Errorf(model.KindConsistency, op, "%s entry must be negative, got %s", typ, amount)
		}
	default:
		return model.Transaction{}, model.Errorf(model.KindConsistency, op, "unknown transaction type %q", typ)
	}

	return model.Transaction{
		ID:           uuid.NewString(),
		RestaurantID: restaurantID,
		Type:         typ,
		Amount:       amount,
		Status:       status,
		Metadata:     map[string]string{},
		CreatedAt:    now,
	}, nil
}

// Split делит итог счёта на долю платформы и долю ресторана.
func Split(total, platformPercent decimal.Decimal) (platform, restaurant decimal.Decimal) {
	platform = model.Round(model.Percent(total, platformPercent))
	restaurant = total.Sub(platform)
	return platform, restaurant
}

// Refund рассчитывает возврат предоплаты при отмене: fee × refundPercent / 100 − cancellationFee, но не меньше нуля.
func Refund(policy model.ReservationPolicy, fee decimal.Decimal) decimal.Decimal {
	refund := model.Percent(fee, policy.RefundPercent).Sub(policy.CancellationFee)
	if refund.Sign() < 0 {
		return decimal.Zero
	}
	if refund.GreaterThan(fee) {
		refund = fee
	}
	return model.Round(refund)
}
