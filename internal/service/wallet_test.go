package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/tableside/internal/ledger"
	"github.com/mmeshcher/tableside/internal/model"
	"github.com/mmeshcher/tableside/internal/payout"
)

// funded создаёт журнал ресторана с одной предоплатой брони.
func funded(t *testing.T, f *fixture, amount string) {
	t.Helper()
	_, err := f.svc.BookTable(context.Background(), guest, "r1", "t8", d(amount), "pi_fund")
	require.NoError(t, err)
}

func TestRequestWithdrawal_Limits(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	funded(t, f, "20")

	tests := []struct {
		name   string
		amount string
		expect model.ErrorKind
	}{
		{"negative", "-5", model.KindValidation},
		{"zero", "0", model.KindValidation},
		{"sub-cent", "1.001", model.KindValidation},
		{"over balance", "20.01", model.KindConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.RequestWithdrawal(ctx, staff, "r1", d(tt.amount))
			assert.Equal(t, tt.expect, model.KindOf(err), "got %v", err)
		})
	}

	w, err := f.svc.RequestWithdrawal(ctx, staff, "r1", d("15"))
	require.NoError(t, err)
	assert.Equal(t, model.TransactionPending, w.Status)
	assert.Equal(t, "-15.00", w.Amount.StringFixed(2))

	_, err = f.svc.RequestWithdrawal(ctx, staff, "r1", d("10"))
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	stats, err := f.svc.GetWalletStats(ctx, staff, "r1")
	require.NoError(t, err)
	assert.Equal(t, "20.00", stats.Available.StringFixed(2))
	assert.Equal(t, "-15.00", stats.Pending.StringFixed(2))
	assert.Equal(t, "5.00", ledger.Withdrawable(stats).StringFixed(2))
}

func TestRequestWithdrawal_ConcurrentRequestsNeverOverdraw(t *testing.T) {
	f := setup(t)
	funded(t, f, "20")

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.RequestWithdrawal(context.Background(), staff, "r1", d("5")); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, ok)
}

func TestListTransactions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	funded(t, f, "20")

	txns, err := f.svc.ListTransactions(ctx, staff, "r1", now.Add(-time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, model.TransactionReservation, txns[0].Type)

	txns, err = f.svc.ListTransactions(ctx, staff, "r1", now.Add(time.Minute), time.Time{})
	require.NoError(t, err)
	assert.Empty(t, txns)

	_, err = f.svc.ListTransactions(ctx, staff, "r1", now, now)
	assert.Equal(t, model.KindValidation, model.KindOf(err))
}

func TestProcessPayoutBatch(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	funded(t, f, "20")

	paid, err := f.svc.RequestWithdrawal(ctx, staff, "r1", d("8"))
	require.NoError(t, err)
	rejected, err := f.svc.RequestWithdrawal(ctx, staff, "r1", d("4"))
	require.NoError(t, err)

	f.svc.processPayoutBatch(ctx)
	if len(f.payouts.submitted) != 2 {
		t.Fatalf("expected both withdrawals to be submitted, got %+v", f.payouts.submitted)
	}
	total := f.payouts.submitted[0].Amount.Add(f.payouts.submitted[1].Amount)
	assert.Equal(t, "12.00", total.StringFixed(2), "payouts carry positive amounts")

	f.payouts.statuses[paid.ID] = payout.StatusPaid
	f.payouts.statuses[rejected.ID] = payout.StatusRejected
	f.svc.processPayoutBatch(ctx)

	status := map[string]model.TransactionStatus{}
	for _, tr := range f.transactions(t) {
		status[tr.ID] = tr.Status
	}
	assert.Equal(t, model.TransactionCompleted, status[paid.ID])
	assert.Equal(t, model.TransactionFailed, status[rejected.ID])

	stats, err := f.svc.GetWalletStats(ctx, staff, "r1")
	require.NoError(t, err)
	assert.Equal(t, "12.00", stats.Available.StringFixed(2), "failed payouts return to the balance")
	assert.True(t, stats.Pending.IsZero())

	pending, err := f.repo.ListPendingWithdrawals(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestProcessPayoutBatch_HonoursThrottling(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	funded(t, f, "20")
	_, err := f.svc.RequestWithdrawal(ctx, staff, "r1", d("8"))
	require.NoError(t, err)

	f.payouts.throttle = true
	f.svc.processPayoutBatch(ctx)

	assert.Empty(t, f.payouts.submitted)
	pending, err := f.repo.ListPendingWithdrawals(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestStartPayoutUpdates_NoClient(t *testing.T) {
	svc := &Service{}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		svc.StartPayoutUpdates(ctx)
		svc.StartOutboxRelay(ctx, time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("workers did not return without collaborators")
	}
}

func TestRelayOutbox(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	res := f.activeSession(t, guest, "t1")

	f.publisher.err = errors.New("broker down")
	n, err := f.svc.RelayOutbox(ctx)
	require.Error(t, err)
	assert.Zero(t, n)

	f.publisher.err = nil
	n, err = f.svc.RelayOutbox(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, f.publisher.events, 2)
	assert.Equal(t, model.EventReservationCreated, f.publisher.events[0].Type)
	assert.Equal(t, model.EventReservationAccepted, f.publisher.events[1].Type)
	assert.Equal(t, res.ID, f.publisher.events[1].ReservationID)

	n, err = f.svc.RelayOutbox(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "delivered events are not sent twice")
}
