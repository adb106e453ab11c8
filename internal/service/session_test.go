package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/tableside/internal/model"
)

func TestClaimTable_ConcurrentClaimsAdmitOne(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	const guests = 10
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted []*model.Reservation
		occupied int
	)
	for i := 0; i < guests; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			actor := model.Actor{UserID: fmt.Sprintf("guest-%d", i), Role: model.RoleCustomer}
			res, err := f.svc.ClaimTable(ctx, actor, "r1", "t1")

			mu.Lock()
			defer mu.Unlock()
			var occ *model.TableOccupiedError
			switch {
			case err == nil:
				admitted = append(admitted, res)
			case errors.As(err, &occ):
				occupied++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Len(t, admitted, 1)
	assert.Equal(t, guests-1, occupied)
	assert.Equal(t, model.ReservationPending, admitted[0].Status)

	table, err := f.repo.GetTable(ctx, "r1", "t1")
	require.NoError(t, err)
	assert.Equal(t, model.TableReserved, table.Status)
}

func TestClaimTable_OccupiedCarriesOwner(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first, err := f.svc.ClaimTable(ctx, guest, "r1", "t1")
	require.NoError(t, err)

	_, err = f.svc.ClaimTable(ctx, other, "r1", "t1")
	var occ *model.TableOccupiedError
	require.True(t, errors.As(err, &occ), "got %v", err)
	assert.Equal(t, first.ID, occ.ReservationID)
	assert.Equal(t, guest.UserID, occ.UserID)
	assert.Equal(t, "Ann", occ.UserName)
	assert.Equal(t, model.KindConflict, model.KindOf(err))

	again, err := f.svc.ClaimTable(ctx, guest, "r1", "t1")
	require.NoError(t, err, "the same guest retrying gets the open session back")
	assert.Equal(t, first.ID, again.ID)

	_, err = f.svc.ClaimTable(ctx, guest, "r1", "missing")
	assert.Equal(t, model.KindNotFound, model.KindOf(err))
}

func TestAcceptReservation_OccupiesTable(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	res := f.activeSession(t, guest, "t1")
	assert.Equal(t, model.ReservationActive, res.Status)

	table, err := f.repo.GetTable(ctx, "r1", "t1")
	require.NoError(t, err)
	assert.Equal(t, model.TableOccupied, table.Status)

	_, err = f.svc.AcceptReservation(ctx, staff, res.ID)
	assert.Equal(t, model.KindConflict, model.KindOf(err), "accepting twice is an invalid transition")
}

func TestDeclineReservation_RefundsByPolicy(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.svc.SaveReservationPolicy(ctx, staff, "r1", model.ReservationPolicy{
		RefundPercent:   d("80"),
		CancellationFee: d("2"),
	}))

	res, err := f.svc.BookTable(ctx, guest, "r1", "t1", d("20"), "pi_booking")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, res.PaymentStatus)

	res, err = f.svc.DeclineReservation(ctx, staff, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationDeclined, res.Status)
	assert.Equal(t, model.PaymentRefunded, res.PaymentStatus)
	assert.Equal(t, "14.00", res.Split.Refund.StringFixed(2))
	assert.Equal(t, "6.00", res.Split.Restaurant.StringFixed(2))

	stats, err := f.svc.GetWalletStats(ctx, staff, "r1")
	require.NoError(t, err)
	assert.Equal(t, "6.00", stats.Available.StringFixed(2))
	assert.Equal(t, "20.00", stats.TotalEarnings.StringFixed(2))

	table, err := f.repo.GetTable(ctx, "r1", "t1")
	require.NoError(t, err)
	assert.Equal(t, model.TableAvailable, table.Status)

	_, err = f.svc.ClaimTable(ctx, other, "r1", "t1")
	assert.NoError(t, err, "a declined booking releases the table")
}

func TestBookTable_Validation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.BookTable(ctx, guest, "r1", "t1", d("-1"), "pi")
	assert.Equal(t, model.KindValidation, model.KindOf(err))

	_, err = f.svc.BookTable(ctx, guest, "r1", "t1", d("10"), "")
	assert.Equal(t, model.KindValidation, model.KindOf(err))

	res, err := f.svc.BookTable(ctx, guest, "r1", "t1", d("0"), "")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentUnpaid, res.PaymentStatus)
	assert.Empty(t, f.transactions(t), "a free booking posts nothing")
}

func TestCancelReservation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	res := f.activeSession(t, guest, "t1")
	o := f.order(t, guest, res.ID, OrderLine{MenuItemID: "wine", Quantity: 1})

	_, err := f.svc.CancelReservation(ctx, other, res.ID)
	assert.Equal(t, model.KindForbidden, model.KindOf(err))

	_, err = f.svc.CancelReservation(ctx, guest, res.ID)
	assert.Equal(t, model.KindConflict, model.KindOf(err), "open items block cancellation")

	_, err = f.svc.UpdateItemStatus(ctx, staff, o.ID, o.Items[0].ID, model.OrderCancelled)
	require.NoError(t, err)

	res, err = f.svc.CancelReservation(ctx, guest, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationCancelled, res.Status)

	table, err := f.repo.GetTable(ctx, "r1", "t1")
	require.NoError(t, err)
	assert.Equal(t, model.TableAvailable, table.Status)
}

func TestCancelReservation_RefundsFeeAfterCounterRequest(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	res, err := f.svc.BookTable(ctx, guest, "r1", "t3", d("20"), "pi_fee")
	require.NoError(t, err)
	_, err = f.svc.AcceptReservation(ctx, staff, res.ID)
	require.NoError(t, err)

	res, err = f.svc.RequestCounterPayment(ctx, guest, res.ID)
	require.NoError(t, err)
	require.Equal(t, model.PaymentPendingCounter, res.PaymentStatus)

	res, err = f.svc.CancelReservation(ctx, guest, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationCancelled, res.Status)
	assert.Equal(t, model.PaymentRefunded, res.PaymentStatus)
	assert.Equal(t, "20.00", res.Split.Refund.StringFixed(2))
	assert.Equal(t, "0.00", res.Split.Restaurant.StringFixed(2))

	var refunds []model.Transaction
	for _, txn := range f.transactions(t) {
		if txn.Type == model.TransactionCancellation {
			refunds = append(refunds, txn)
		}
	}
	require.Len(t, refunds, 1)
	assert.Equal(t, "-20.00", refunds[0].Amount.StringFixed(2))
	assert.Equal(t, res.ID, refunds[0].ReservationID)

	stats, err := f.svc.GetWalletStats(ctx, staff, "r1")
	require.NoError(t, err)
	assert.Equal(t, "0.00", stats.Available.StringFixed(2))

	_, err = f.svc.CancelReservation(ctx, guest, res.ID)
	assert.Error(t, err)
	assert.Len(t, f.transactions(t), 2, "the fee is refunded once")
}

func TestRequestCounterPayment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	res, err := f.svc.ClaimTable(ctx, guest, "r1", "t1")
	require.NoError(t, err)

	_, err = f.svc.RequestCounterPayment(ctx, guest, res.ID)
	assert.Equal(t, model.KindConflict, model.KindOf(err), "pending sessions cannot pay yet")

	_, err = f.svc.AcceptReservation(ctx, staff, res.ID)
	require.NoError(t, err)

	_, err = f.svc.RequestCounterPayment(ctx, other, res.ID)
	assert.Equal(t, model.KindForbidden, model.KindOf(err))

	for i := 0; i < 2; i++ {
		res, err = f.svc.RequestCounterPayment(ctx, guest, res.ID)
		require.NoError(t, err)
		assert.Equal(t, model.PaymentPendingCounter, res.PaymentStatus)
	}
}
