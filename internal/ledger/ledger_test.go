package ledger

import (
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/tableside/internal/model"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func entry(amount string, status model.TransactionStatus) model.Transaction {
	return model.Transaction{Amount: d(amount), Status: status}
}

func TestStats(t *testing.T) {
	txns := []model.Transaction{
		entry("100", model.TransactionCompleted),
		entry("25.50", model.TransactionCompleted),
		entry("-40", model.TransactionCompleted),
		entry("-30", model.TransactionPending),
		entry("12", model.TransactionPending),
		entry("-500", model.TransactionFailed),
	}

	stats := Stats(txns)

	assert.Equal(t, "85.50", stats.Available.StringFixed(2))
	assert.Equal(t, "-18.00", stats.Pending.StringFixed(2))
	assert.Equal(t, "125.50", stats.TotalEarnings.StringFixed(2))
	assert.Equal(t, "55.50", Withdrawable(stats).StringFixed(2))
}

func TestStats_OrderIndependent(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	statuses := []model.TransactionStatus{model.TransactionPending, model.TransactionCompleted, model.TransactionFailed}

	var txns []model.Transaction
	expected := decimal.Zero
	for i := 0; i < 300; i++ {
		amount := decimal.New(int64(rnd.Intn(20000)-10000), -2)
		status := statuses[rnd.Intn(len(statuses))]
		if status == model.TransactionCompleted {
			expected = expected.Add(amount)
		}
		txns = append(txns, model.Transaction{Amount: amount, Status: status})
	}

	first := Stats(txns)
	for i := 0; i < 10; i++ {
		rnd.Shuffle(len(txns), func(a, b int) { txns[a], txns[b] = txns[b], txns[a] })
		again := Stats(txns)
		require.True(t, again.Available.Equal(first.Available))
		require.True(t, again.Pending.Equal(first.Pending))
		require.True(t, again.TotalEarnings.Equal(first.TotalEarnings))
	}
	assert.True(t, first.Available.Equal(expected))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(model.TransactionPending, model.TransactionCompleted))
	assert.True(t, CanTransition(model.TransactionPending, model.TransactionFailed))
	assert.False(t, CanTransition(model.TransactionCompleted, model.TransactionFailed))
	assert.False(t, CanTransition(model.TransactionFailed, model.TransactionCompleted))
	assert.False(t, CanTransition(model.TransactionPending, model.TransactionPending))
}

func TestNewEntry_EnforcesSign(t *testing.T) {
	now := time.Now()

	e, err := NewEntry("r1", model.TransactionBillPayment, d("10.005"), model.TransactionCompleted, now)
	require.NoError(t, err)
	assert.Equal(t, "10.01", e.Amount.StringFixed(2))
	assert.NotEmpty(t, e.ID)

	_, err = NewEntry("r1", model.TransactionBillPayment, d("-1"), model.TransactionCompleted, now)
	assert.Equal(t, model.KindConsistency, model.KindOf(err))

	_, err = NewEntry("r1", model.TransactionWithdrawal, d("5"), model.TransactionPending, now)
	assert.Error(t, err)

	_, err = NewEntry("r1", model.TransactionCancellation, d("-5"), model.TransactionCompleted, now)
	assert.NoError(t, err)
}

func TestSplitAndRefund(t *testing.T) {
	platform, restaurant := Split(d("118.80"), d("5"))
	assert.Equal(t, "5.94", platform.StringFixed(2))
	assert.Equal(t, "112.86", restaurant.StringFixed(2))

	policy := model.ReservationPolicy{RefundPercent: d("80"), CancellationFee: d("2")}
	assert.Equal(t, "14.00", Refund(policy, d("20")).StringFixed(2))
	assert.True(t, Refund(model.ReservationPolicy{RefundPercent: d("10"), CancellationFee: d("5")}, d("20")).IsZero())
	assert.Equal(t, "20.00", Refund(model.DefaultReservationPolicy(), d("20")).StringFixed(2))
}
