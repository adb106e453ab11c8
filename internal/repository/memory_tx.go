package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/mmeshcher/tableside/internal/ledger"
	"github.com/mmeshcher/tableside/internal/model"
)

// memTx накапливает изменения и удерживает блокировки ключей до фиксации или отката.
type memTx struct {
	repo *MemoryRepository
	held map[string]func()

	tables       map[string]model.Table
	reservations map[string]model.Reservation
	orders       map[string]model.Order
	offers       map[string]model.Offer
	usages       []model.OfferUsage
	settlements  map[string]model.Settlement
	txns         map[string]model.Transaction
	events       []model.Event
}

var _ Tx = (*memTx)(nil)

func newMemTx(repo *MemoryRepository) *memTx {
	return &memTx{
		repo:         repo,
		held:         make(map[string]func()),
		tables:       make(map[string]model.Table),
		reservations: make(map[string]model.Reservation),
		orders:       make(map[string]model.Order),
		offers:       make(map[string]model.Offer),
		settlements:  make(map[string]model.Settlement),
		txns:         make(map[string]model.Transaction),
	}
}

func (t *memTx) lock(ctx context.Context, key string) error {
	if _, ok := t.held[key]; ok {
		return nil
	}
	unlock, err := t.repo.locks.Lock(ctx, key)
	if err != nil {
		return fmt.Errorf("lock %s: %w", key, err)
	}
	t.held[key] = unlock
	return nil
}

func (t *memTx) release() {
	for key, unlock := range t.held {
		unlock()
		delete(t.held, key)
	}
}

func (t *memTx) commit() {
	r := t.repo
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, v := range t.tables {
		r.tables[k] = v
	}
	for k, v := range t.reservations {
		r.reservations[k] = v
	}
	for k, v := range t.orders {
		r.orders[k] = v
	}
	for k, v := range t.offers {
		r.offers[k] = v
	}
	for k, v := range t.settlements {
		r.settlements[k] = v
	}
	for k, v := range t.txns {
		r.txns[k] = v
	}
	r.usages = append(r.usages, t.usages...)
	for _, e := range t.events {
		r.outbox = append(r.outbox, outboxEntry{event: e})
	}
}

func (t *memTx) table(key string) (model.Table, bool) {
	if v, ok := t.tables[key]; ok {
		return v, true
	}
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	v, ok := t.repo.tables[key]
	return v, ok
}

func (t *memTx) LockTable(ctx context.Context, restaurantID, tableID string) (*model.Table, error) {
	key := tableKey(restaurantID, tableID)
	if err := t.lock(ctx, "table:"+key); err != nil {
		return nil, err
	}

	tbl, ok := t.table(key)
	if !ok {
		return nil, ErrNotFound
	}
	return &tbl, nil
}

func (t *memTx) SetTableStatus(ctx context.Context, restaurantID, tableID string, status model.TableStatus) error {
	tbl, err := t.LockTable(ctx, restaurantID, tableID)
	if err != nil {
		return err
	}
	tbl.Status = status
	t.tables[tableKey(restaurantID, tableID)] = *tbl
	return nil
}

func (t *memTx) reservation(id string) (model.Reservation, bool) {
	if v, ok := t.reservations[id]; ok {
		return v, true
	}
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	v, ok := t.repo.reservations[id]
	return v, ok
}

func (t *memTx) OpenReservationForTable(_ context.Context, restaurantID, tableID string) (*model.Reservation, error) {
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()

	for id, r := range t.repo.reservations {
		if s, ok := t.reservations[id]; ok {
			r = s
		}
		if r.RestaurantID == restaurantID && r.TableID == tableID && r.Status.IsOpen() {
			return &r, nil
		}
	}
	for id, r := range t.reservations {
		if _, ok := t.repo.reservations[id]; ok {
			continue
		}
		if r.RestaurantID == restaurantID && r.TableID == tableID && r.Status.IsOpen() {
			return &r, nil
		}
	}
	return nil, nil
}

func (t *memTx) CreateReservation(ctx context.Context, r *model.Reservation) error {
	if err := t.lock(ctx, "table:"+tableKey(r.RestaurantID, r.TableID)); err != nil {
		return err
	}
	if r.Status.IsOpen() {
		existing, err := t.OpenReservationForTable(ctx, r.RestaurantID, r.TableID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrTableOccupied
		}
	}
	if err := t.lock(ctx, "reservation:"+r.ID); err != nil {
		return err
	}
	t.reservations[r.ID] = *r
	return nil
}

func (t *memTx) LockReservation(ctx context.Context, id string) (*model.Reservation, error) {
	if err := t.lock(ctx, "reservation:"+id); err != nil {
		return nil, err
	}
	r, ok := t.reservation(id)
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (t *memTx) UpdateReservation(ctx context.Context, r *model.Reservation) error {
	if _, err := t.LockReservation(ctx, r.ID); err != nil {
		return err
	}
	t.reservations[r.ID] = *r
	return nil
}

func (t *memTx) ListOrders(_ context.Context, reservationID string) ([]model.Order, error) {
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()

	return t.repo.ordersOf(reservationID, t.orders), nil
}

func (t *memTx) LockOrder(ctx context.Context, id string) (*model.Order, error) {
	if err := t.lock(ctx, "order:"+id); err != nil {
		return nil, err
	}
	if o, ok := t.orders[id]; ok {
		c := cloneOrder(o)
		return &c, nil
	}

	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	o, ok := t.repo.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := cloneOrder(o)
	return &c, nil
}

func (t *memTx) CreateOrder(ctx context.Context, o *model.Order) error {
	if err := t.lock(ctx, "order:"+o.ID); err != nil {
		return err
	}
	t.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (t *memTx) UpdateOrder(ctx context.Context, o *model.Order) error {
	if _, err := t.LockOrder(ctx, o.ID); err != nil {
		return err
	}
	t.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (t *memTx) offer(id string) (model.Offer, bool) {
	if v, ok := t.offers[id]; ok {
		return v, true
	}
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	v, ok := t.repo.offers[id]
	return v, ok
}

func (t *memTx) LockOffers(ctx context.Context, restaurantID string, ids []string) ([]model.Offer, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	var res []model.Offer
	for i, id := range sorted {
		if i > 0 && sorted[i-1] == id {
			continue
		}
		if err := t.lock(ctx, "offer:"+id); err != nil {
			return nil, err
		}
		o, ok := t.offer(id)
		if ok && o.RestaurantID == restaurantID {
			res = append(res, cloneOffer(o))
		}
	}
	return res, nil
}

func (t *memTx) LockPublicOffers(ctx context.Context, restaurantID string) ([]model.Offer, error) {
	t.repo.mu.RLock()
	var ids []string
	for id, o := range t.repo.offers {
		if o.RestaurantID == restaurantID && o.Type == model.OfferTypeOffer && o.IsActive {
			ids = append(ids, id)
		}
	}
	t.repo.mu.RUnlock()

	return t.LockOffers(ctx, restaurantID, ids)
}

func (t *memTx) RecordOfferUsage(ctx context.Context, u *model.OfferUsage) error {
	if err := t.lock(ctx, "offer:"+u.OfferID); err != nil {
		return err
	}
	o, ok := t.offer(u.OfferID)
	if !ok {
		return ErrNotFound
	}

	if o.MaxUsage > 0 && o.UsageCount >= o.MaxUsage {
		return ErrOfferExhausted
	}
	given := o.TotalDiscountGiven.Add(model.Round(u.Discount))
	if o.GlobalBudget.Valid && given.GreaterThan(o.GlobalBudget.Decimal) {
		return ErrOfferExhausted
	}

	o.UsageCount++
	o.TotalDiscountGiven = given
	t.offers[o.ID] = o
	t.usages = append(t.usages, *u)
	return nil
}

func (t *memTx) GetSettlement(_ context.Context, reservationID string) (*model.Settlement, error) {
	if s, ok := t.settlements[reservationID]; ok {
		return &s, nil
	}
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	if s, ok := t.repo.settlements[reservationID]; ok {
		return &s, nil
	}
	return nil, nil
}

func (t *memTx) CreateSettlement(ctx context.Context, s *model.Settlement) error {
	if err := t.lock(ctx, "settlement:"+s.ReservationID); err != nil {
		return err
	}
	existing, err := t.GetSettlement(ctx, s.ReservationID)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrDuplicateSettlement
	}
	t.settlements[s.ReservationID] = *s
	return nil
}

func (t *memTx) LockWallet(ctx context.Context, restaurantID string) (model.WalletStats, error) {
	if err := t.lock(ctx, "wallet:"+restaurantID); err != nil {
		return model.WalletStats{}, err
	}

	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	return ledger.Stats(t.repo.transactionsOf(restaurantID, t.txns)), nil
}

func (t *memTx) AppendTransaction(_ context.Context, tr *model.Transaction) error {
	t.txns[tr.ID] = cloneTransaction(*tr)
	return nil
}

func (t *memTx) UpdateTransactionStatus(ctx context.Context, id string, status model.TransactionStatus) (*model.Transaction, error) {
	if err := t.lock(ctx, "transaction:"+id); err != nil {
		return nil, err
	}

	tr, ok := t.txns[id]
	if !ok {
		t.repo.mu.RLock()
		tr, ok = t.repo.txns[id]
		t.repo.mu.RUnlock()
	}
	if !ok {
		return nil, ErrNotFound
	}
	if !ledger.CanTransition(tr.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, tr.Status, status)
	}

	tr = cloneTransaction(tr)
	tr.Status = status
	t.txns[id] = tr
	return &tr, nil
}

func (t *memTx) EnqueueEvents(_ context.Context, events ...model.Event) error {
	t.events = append(t.events, events...)
	return nil
}
