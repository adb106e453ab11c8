package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mmeshcher/tableside/internal/ledger"
	"github.com/mmeshcher/tableside/internal/lock"
	"github.com/mmeshcher/tableside/internal/model"
)

// MemoryRepository хранит данные в памяти процесса. Используется без DATABASE_URI и в тестах.
// Транзакции сериализуются блокировками по ключам и применяются целиком при фиксации.
type MemoryRepository struct {
	mu    sync.RWMutex
	locks *lock.Local

	tables       map[string]model.Table
	reservations map[string]model.Reservation
	orders       map[string]model.Order
	offers       map[string]model.Offer
	usages       []model.OfferUsage
	settlements  map[string]model.Settlement
	txns         map[string]model.Transaction
	billing      map[string]model.BillingConfig
	policies     map[string]model.ReservationPolicy
	outbox       []outboxEntry
}

type outboxEntry struct {
	event     model.Event
	delivered bool
}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		locks:        lock.NewLocal(),
		tables:       make(map[string]model.Table),
		reservations: make(map[string]model.Reservation),
		orders:       make(map[string]model.Order),
		offers:       make(map[string]model.Offer),
		settlements:  make(map[string]model.Settlement),
		txns:         make(map[string]model.Transaction),
		billing:      make(map[string]model.BillingConfig),
		policies:     make(map[string]model.ReservationPolicy),
	}
}

func tableKey(restaurantID, tableID string) string {
	return restaurantID + "/" + tableID
}

// Close ничего не делает: ресурсов, требующих освобождения, нет.
func (r *MemoryRepository) Close() error {
	return nil
}

// WithTx выполняет fn в транзакции. Изменения становятся видны другим только после успешного завершения fn.
func (r *MemoryRepository) WithTx(ctx context.Context, fn TxFunc) error {
	tx := newMemTx(r)
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	tx.commit()
	return nil
}

// GetTable возвращает столик ресторана.
func (r *MemoryRepository) GetTable(_ context.Context, restaurantID, tableID string) (*model.Table, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tables[tableKey(restaurantID, tableID)]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

// SaveTable создаёт или обновляет описание столика, сохраняя статус занятости.
func (r *MemoryRepository) SaveTable(_ context.Context, t *model.Table) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := tableKey(t.RestaurantID, t.ID)
	saved := *t
	if existing, ok := r.tables[key]; ok {
		saved.Status = existing.Status
	} else {
		saved.Status = model.TableAvailable
	}
	r.tables[key] = saved
	return nil
}

// GetReservation возвращает сессию по идентификатору.
func (r *MemoryRepository) GetReservation(_ context.Context, id string) (*model.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, ok := r.reservations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &res, nil
}

// GetOrder возвращает заказ по идентификатору.
func (r *MemoryRepository) GetOrder(_ context.Context, id string) (*model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := cloneOrder(o)
	return &c, nil
}

// ListOrdersByReservation возвращает заказы сессии в порядке оформления.
func (r *MemoryRepository) ListOrdersByReservation(_ context.Context, reservationID string) ([]model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.ordersOf(reservationID, nil), nil
}

func (r *MemoryRepository) ordersOf(reservationID string, staged map[string]model.Order) []model.Order {
	var res []model.Order
	for id, o := range r.orders {
		if s, ok := staged[id]; ok {
			o = s
		}
		if o.ReservationID == reservationID {
			res = append(res, cloneOrder(o))
		}
	}
	for id, o := range staged {
		if _, ok := r.orders[id]; !ok && o.ReservationID == reservationID {
			res = append(res, cloneOrder(o))
		}
	}
	sortOrders(res)
	return res
}

func sortOrders(orders []model.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID < orders[j].ID
		}
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
}

// ListOffers возвращает все акции и купоны ресторана.
func (r *MemoryRepository) ListOffers(_ context.Context, restaurantID string) ([]model.Offer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []model.Offer
	for _, o := range r.offers {
		if o.RestaurantID == restaurantID {
			res = append(res, cloneOffer(o))
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].ID < res[j].ID
		}
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})
	return res, nil
}

// GetOffer возвращает акцию по идентификатору.
func (r *MemoryRepository) GetOffer(_ context.Context, id string) (*model.Offer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.offers[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := cloneOffer(o)
	return &c, nil
}

// GetOfferByCode ищет купон ресторана по коду без учёта регистра.
func (r *MemoryRepository) GetOfferByCode(_ context.Context, restaurantID, code string) (*model.Offer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, o := range r.offers {
		if o.RestaurantID == restaurantID && o.Type == model.OfferTypeCoupon && strings.EqualFold(o.Code, code) {
			c := cloneOffer(o)
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

// SaveOffer создаёт или обновляет определение акции. Счётчики использования сохраняются.
func (r *MemoryRepository) SaveOffer(_ context.Context, o *model.Offer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if o.Type == model.OfferTypeCoupon {
		for id, existing := range r.offers {
			if id != o.ID && existing.RestaurantID == o.RestaurantID &&
				existing.Type == model.OfferTypeCoupon && strings.EqualFold(existing.Code, o.Code) {
				return fmt.Errorf("%w: %s", ErrDuplicateCoupon, o.Code)
			}
		}
	}

	saved := cloneOffer(*o)
	if existing, ok := r.offers[o.ID]; ok {
		saved.UsageCount = existing.UsageCount
		saved.TotalDiscountGiven = existing.TotalDiscountGiven
		saved.CreatedAt = existing.CreatedAt
	}
	r.offers[o.ID] = saved
	return nil
}

// ListOfferUsages возвращает записи использования акции.
func (r *MemoryRepository) ListOfferUsages(_ context.Context, offerID string) ([]model.OfferUsage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []model.OfferUsage
	for _, u := range r.usages {
		if u.OfferID == offerID {
			res = append(res, u)
		}
	}
	return res, nil
}

// GetBillingConfig возвращает ставки ресторана или ErrNotFound.
func (r *MemoryRepository) GetBillingConfig(_ context.Context, restaurantID string) (*model.BillingConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.billing[restaurantID]
	if !ok {
		return nil, ErrNotFound
	}
	return &cfg, nil
}

// SaveBillingConfig сохраняет ставки ресторана.
func (r *MemoryRepository) SaveBillingConfig(_ context.Context, restaurantID string, cfg model.BillingConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.billing[restaurantID] = cfg
	return nil
}

// GetReservationPolicy возвращает правила возврата ресторана или ErrNotFound.
func (r *MemoryRepository) GetReservationPolicy(_ context.Context, restaurantID string) (*model.ReservationPolicy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.policies[restaurantID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

// SaveReservationPolicy сохраняет правила возврата ресторана.
func (r *MemoryRepository) SaveReservationPolicy(_ context.Context, restaurantID string, p model.ReservationPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.policies[restaurantID] = p
	return nil
}

// GetWalletStats выводит балансы ресторана из журнала транзакций.
func (r *MemoryRepository) GetWalletStats(_ context.Context, restaurantID string) (model.WalletStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return ledger.Stats(r.transactionsOf(restaurantID, nil)), nil
}

func (r *MemoryRepository) transactionsOf(restaurantID string, staged map[string]model.Transaction) []model.Transaction {
	var res []model.Transaction
	for id, t := range r.txns {
		if s, ok := staged[id]; ok {
			t = s
		}
		if t.RestaurantID == restaurantID {
			res = append(res, t)
		}
	}
	for id, t := range staged {
		if _, ok := r.txns[id]; !ok && t.RestaurantID == restaurantID {
			res = append(res, t)
		}
	}
	return res
}

// ListTransactions возвращает записи журнала за полуинтервал [from, to). Нулевая граница не ограничивает выборку.
func (r *MemoryRepository) ListTransactions(_ context.Context, restaurantID string, from, to time.Time) ([]model.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []model.Transaction
	for _, t := range r.transactionsOf(restaurantID, nil) {
		if !from.IsZero() && t.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !t.CreatedAt.Before(to) {
			continue
		}
		res = append(res, cloneTransaction(t))
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].ID < res[j].ID
		}
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res, nil
}

// ListPendingWithdrawals возвращает ожидающие выплаты заявки на вывод в порядке создания.
func (r *MemoryRepository) ListPendingWithdrawals(_ context.Context, limit int) ([]model.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []model.Transaction
	for _, t := range r.txns {
		if t.Type == model.TransactionWithdrawal && t.Status == model.TransactionPending {
			res = append(res, cloneTransaction(t))
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

// FetchOutbox возвращает недоставленные события в порядке записи.
func (r *MemoryRepository) FetchOutbox(_ context.Context, limit int) ([]model.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []model.Event
	for _, e := range r.outbox {
		if e.delivered {
			continue
		}
		res = append(res, e.event)
		if limit > 0 && len(res) == limit {
			break
		}
	}
	return res, nil
}

// MarkOutboxDelivered помечает события доставленными.
func (r *MemoryRepository) MarkOutboxDelivered(_ context.Context, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	done := make(map[string]bool, len(ids))
	for _, id := range ids {
		done[id] = true
	}
	for i := range r.outbox {
		if done[r.outbox[i].event.ID] {
			r.outbox[i].delivered = true
		}
	}
	return nil
}

func cloneOrder(o model.Order) model.Order {
	items := make([]model.OrderItem, len(o.Items))
	for i, item := range o.Items {
		item.AddOns = append([]model.AddOn(nil), item.AddOns...)
		items[i] = item
	}
	o.Items = items
	if o.Snapshot != nil {
		s := *o.Snapshot
		o.Snapshot = &s
	}
	return o
}

func cloneOffer(o model.Offer) model.Offer {
	o.ApplicableItemIDs = append([]string(nil), o.ApplicableItemIDs...)
	return o
}

func cloneTransaction(t model.Transaction) model.Transaction {
	meta := make(map[string]string, len(t.Metadata))
	for k, v := range t.Metadata {
		meta[k] = v
	}
	t.Metadata = meta
	return t
}
