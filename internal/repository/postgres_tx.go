package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/tableside/internal/ledger"
	"github.com/mmeshcher/tableside/internal/model"
)

const (
	tableColumns       = `restaurant_id, id, name, seats, area, status`
	reservationColumns = `id, restaurant_id, table_id, table_name, user_id, user_name, status, type, payment_status,
		reservation_fee, total_bill_amount, platform_share, restaurant_share, refund_amount, applied_coupon_id,
		created_at, updated_at`
	orderColumns = `id, reservation_id, restaurant_id, table_id, user_id, items, total_amount, status,
		applied_offer_id, applied_discount, payment_ref, snapshot, created_at`
	offerColumns = `id, restaurant_id, title, type, code, reward_type, discount_kind, discount_value::text,
		max_discount, min_spend, applicable_item_ids, trigger_item_id, free_item_id, valid_from, valid_until,
		is_active, max_usage, global_budget, usage_count, total_discount_given, created_at`
	transactionColumns = `id, restaurant_id, type, amount, status, reservation_id, order_id, metadata, created_at`
)

// pgTx реализует Tx поверх транзакции pgx.
type pgTx struct {
	tx pgx.Tx
}

var _ Tx = (*pgTx)(nil)

func (t *pgTx) LockTable(ctx context.Context, restaurantID, tableID string) (*model.Table, error) {
	return getTable(ctx, t.tx, restaurantID, tableID, true)
}

func (t *pgTx) SetTableStatus(ctx context.Context, restaurantID, tableID string, status model.TableStatus) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE restaurant_tables SET status = $3 WHERE restaurant_id = $1 AND id = $2`,
		restaurantID, tableID, string(status),
	)
	if err != nil {
		return fmt.Errorf("update table status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) OpenReservationForTable(ctx context.Context, restaurantID, tableID string) (*model.Reservation, error) {
	r, err := scanReservation(t.tx.QueryRow(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE restaurant_id = $1 AND table_id = $2 AND status IN ($3, $4)`,
		restaurantID, tableID, string(model.ReservationPending), string(model.ReservationActive),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select open reservation: %w", err)
	}
	return r, nil
}

func (t *pgTx) CreateReservation(ctx context.Context, r *model.Reservation) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO reservations (`+reservationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		r.ID, r.RestaurantID, r.TableID, r.TableName, r.UserID, r.UserName, string(r.Status), string(r.Type),
		string(r.PaymentStatus), model.Cents(r.ReservationFee), model.Cents(r.TotalBillAmount),
		model.Cents(r.Split.Platform), model.Cents(r.Split.Restaurant), model.Cents(r.Split.Refund),
		r.AppliedCouponID, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "reservations_one_open_per_table") {
			return ErrTableOccupied
		}
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

func (t *pgTx) LockReservation(ctx context.Context, id string) (*model.Reservation, error) {
	return getReservation(ctx, t.tx, id, true)
}

func (t *pgTx) UpdateReservation(ctx context.Context, r *model.Reservation) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE reservations SET
		     status = $2, payment_status = $3, total_bill_amount = $4, platform_share = $5,
		     restaurant_share = $6, refund_amount = $7, applied_coupon_id = $8, updated_at = $9
		 WHERE id = $1`,
		r.ID, string(r.Status), string(r.PaymentStatus), model.Cents(r.TotalBillAmount),
		model.Cents(r.Split.Platform), model.Cents(r.Split.Restaurant), model.Cents(r.Split.Refund),
		r.AppliedCouponID, r.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "reservations_one_open_per_table") {
			return ErrTableOccupied
		}
		return fmt.Errorf("update reservation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) ListOrders(ctx context.Context, reservationID string) ([]model.Order, error) {
	return listOrders(ctx, t.tx, reservationID)
}

func (t *pgTx) LockOrder(ctx context.Context, id string) (*model.Order, error) {
	return getOrder(ctx, t.tx, id, true)
}

func (t *pgTx) CreateOrder(ctx context.Context, o *model.Order) error {
	items, snapshot, err := encodeOrder(o)
	if err != nil {
		return err
	}

	_, err = t.tx.Exec(ctx,
		`INSERT INTO orders (`+orderColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		o.ID, o.ReservationID, o.RestaurantID, o.TableID, o.UserID, items, model.Cents(o.TotalAmount),
		string(o.Status), o.AppliedOfferID, model.Cents(o.AppliedDiscount), o.PaymentRef, snapshot, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateOrder(ctx context.Context, o *model.Order) error {
	items, snapshot, err := encodeOrder(o)
	if err != nil {
		return err
	}

	tag, err := t.tx.Exec(ctx,
		`UPDATE orders SET
		     items = $2, status = $3, applied_offer_id = $4, applied_discount = $5, payment_ref = $6, snapshot = $7
		 WHERE id = $1`,
		o.ID, items, string(o.Status), o.AppliedOfferID, model.Cents(o.AppliedDiscount), o.PaymentRef, snapshot,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) LockOffers(ctx context.Context, restaurantID string, ids []string) ([]model.Offer, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return queryOffers(ctx, t.tx,
		`SELECT `+offerColumns+` FROM offers
		 WHERE restaurant_id = $1 AND id = ANY($2)
		 ORDER BY id
		 FOR UPDATE`,
		restaurantID, ids,
	)
}

func (t *pgTx) LockPublicOffers(ctx context.Context, restaurantID string) ([]model.Offer, error) {
	return queryOffers(ctx, t.tx,
		`SELECT `+offerColumns+` FROM offers
		 WHERE restaurant_id = $1 AND type = $2 AND is_active
		 ORDER BY id
		 FOR UPDATE`,
		restaurantID, string(model.OfferTypeOffer),
	)
}

func (t *pgTx) RecordOfferUsage(ctx context.Context, u *model.OfferUsage) error {
	discount := model.Cents(u.Discount)

	// Проверка лимитов и увеличение счётчиков выполняются одним оператором.
	tag, err := t.tx.Exec(ctx,
		`UPDATE offers SET
		     usage_count = usage_count + 1,
		     total_discount_given = total_discount_given + $2
		 WHERE id = $1
		   AND (max_usage = 0 OR usage_count < max_usage)
		   AND (global_budget IS NULL OR total_discount_given + $2 <= global_budget)`,
		u.OfferID, discount,
	)
	if err != nil {
		return fmt.Errorf("increment offer counters: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOfferExhausted
	}

	_, err = t.tx.Exec(ctx,
		`INSERT INTO offer_usages (id, offer_id, restaurant_id, user_id, reservation_id, order_id, transaction_id, discount, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.ID, u.OfferID, u.RestaurantID, u.UserID, u.ReservationID, u.OrderID, u.TransactionID, discount, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert offer usage: %w", err)
	}
	return nil
}

func (t *pgTx) GetSettlement(ctx context.Context, reservationID string) (*model.Settlement, error) {
	var (
		s      model.Settlement
		method string
		raw    []byte
	)
	err := t.tx.QueryRow(ctx,
		`SELECT reservation_id, idempotency_key, method, payment_ref, transaction_id, snapshot, created_at
		 FROM settlements WHERE reservation_id = $1`,
		reservationID,
	).Scan(&s.ReservationID, &s.IdempotencyKey, &method, &s.PaymentRef, &s.TransactionID, &raw, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select settlement: %w", err)
	}

	s.Method = model.PaymentMethod(method)
	if err := unmarshalJSON(raw, &s.Snapshot); err != nil {
		return nil, err
	}
	return &s, nil
}

func (t *pgTx) CreateSettlement(ctx context.Context, s *model.Settlement) error {
	snapshot, err := json.Marshal(s.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = t.tx.Exec(ctx,
		`INSERT INTO settlements (reservation_id, idempotency_key, method, payment_ref, transaction_id, snapshot, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ReservationID, s.IdempotencyKey, string(s.Method), s.PaymentRef, s.TransactionID, string(snapshot), s.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "") {
			return ErrDuplicateSettlement
		}
		return fmt.Errorf("insert settlement: %w", err)
	}
	return nil
}

func (t *pgTx) LockWallet(ctx context.Context, restaurantID string) (model.WalletStats, error) {
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "wallet:"+restaurantID); err != nil {
		return model.WalletStats{}, fmt.Errorf("lock wallet: %w", err)
	}
	return walletStats(ctx, t.tx, restaurantID)
}

func (t *pgTx) AppendTransaction(ctx context.Context, tr *model.Transaction) error {
	metadata, err := json.Marshal(nonNilMap(tr.Metadata))
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = t.tx.Exec(ctx,
		`INSERT INTO transactions (`+transactionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		tr.ID, tr.RestaurantID, string(tr.Type), model.Cents(tr.Amount), string(tr.Status),
		tr.ReservationID, tr.OrderID, string(metadata), tr.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// UpdateTransactionStatus меняет статус записи журнала. Сумма никогда не обновляется.
func (t *pgTx) UpdateTransactionStatus(ctx context.Context, id string, status model.TransactionStatus) (*model.Transaction, error) {
	tr, err := scanTransaction(t.tx.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select transaction: %w", err)
	}
	if !ledger.CanTransition(tr.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, tr.Status, status)
	}

	if _, err := t.tx.Exec(ctx, `UPDATE transactions SET status = $2 WHERE id = $1`, id, string(status)); err != nil {
		return nil, fmt.Errorf("update transaction status: %w", err)
	}
	tr.Status = status
	return tr, nil
}

func (t *pgTx) EnqueueEvents(ctx context.Context, events ...model.Event) error {
	for _, e := range events {
		raw, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		if _, err := t.tx.Exec(ctx,
			`INSERT INTO outbox (id, event, created_at) VALUES ($1, $2, $3)`,
			e.ID, string(raw), e.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func lockClause(forUpdate bool) string {
	if forUpdate {
		return " FOR UPDATE"
	}
	return ""
}

func getTable(ctx context.Context, q querier, restaurantID, tableID string, forUpdate bool) (*model.Table, error) {
	var (
		t      model.Table
		status string
	)
	err := q.QueryRow(ctx,
		`SELECT `+tableColumns+` FROM restaurant_tables WHERE restaurant_id = $1 AND id = $2`+lockClause(forUpdate),
		restaurantID, tableID,
	).Scan(&t.RestaurantID, &t.ID, &t.Name, &t.Seats, &t.Area, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select table: %w", err)
	}
	t.Status = model.TableStatus(status)
	return &t, nil
}

func getReservation(ctx context.Context, q querier, id string, forUpdate bool) (*model.Reservation, error) {
	r, err := scanReservation(q.QueryRow(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = $1`+lockClause(forUpdate), id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select reservation: %w", err)
	}
	return r, nil
}

func scanReservation(row rowScanner) (*model.Reservation, error) {
	var (
		r                                         model.Reservation
		status, typ, payment                      string
		fee, total, platform, restaurant, refundC int64
	)
	err := row.Scan(&r.ID, &r.RestaurantID, &r.TableID, &r.TableName, &r.UserID, &r.UserName,
		&status, &typ, &payment, &fee, &total, &platform, &restaurant, &refundC,
		&r.AppliedCouponID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}

	r.Status = model.ReservationStatus(status)
	r.Type = model.ReservationType(typ)
	r.PaymentStatus = model.PaymentStatus(payment)
	r.ReservationFee = model.FromCents(fee)
	r.TotalBillAmount = model.FromCents(total)
	r.Split = model.RevenueSplit{
		Platform:   model.FromCents(platform),
		Restaurant: model.FromCents(restaurant),
		Refund:     model.FromCents(refundC),
	}
	return &r, nil
}

func getOrder(ctx context.Context, q querier, id string, forUpdate bool) (*model.Order, error) {
	o, err := scanOrder(q.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`+lockClause(forUpdate), id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select order: %w", err)
	}
	return o, nil
}

func listOrders(ctx context.Context, q querier, reservationID string) ([]model.Order, error) {
	rows, err := q.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE reservation_id = $1 ORDER BY created_at, id`,
		reservationID,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return orders, nil
}

func scanOrder(row rowScanner) (*model.Order, error) {
	var (
		o                 model.Order
		items, snapshot   []byte
		status            string
		totalC, discountC int64
	)
	err := row.Scan(&o.ID, &o.ReservationID, &o.RestaurantID, &o.TableID, &o.UserID, &items, &totalC,
		&status, &o.AppliedOfferID, &discountC, &o.PaymentRef, &snapshot, &o.CreatedAt)
	if err != nil {
		return nil, err
	}

	o.Status = model.OrderStatus(status)
	o.TotalAmount = model.FromCents(totalC)
	o.AppliedDiscount = model.FromCents(discountC)
	if err := unmarshalJSON(items, &o.Items); err != nil {
		return nil, err
	}
	if len(snapshot) > 0 {
		o.Snapshot = &model.BillSnapshot{}
		if err := unmarshalJSON(snapshot, o.Snapshot); err != nil {
			return nil, err
		}
	}
	return &o, nil
}

func encodeOrder(o *model.Order) (string, *string, error) {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return "", nil, fmt.Errorf("marshal items: %w", err)
	}
	if o.Snapshot == nil {
		return string(items), nil, nil
	}

	snapshot, err := json.Marshal(o.Snapshot)
	if err != nil {
		return "", nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	s := string(snapshot)
	return string(items), &s, nil
}

func queryOffers(ctx context.Context, q querier, sql string, args ...any) ([]model.Offer, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select offers: %w", err)
	}
	defer rows.Close()

	var offers []model.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		offers = append(offers, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return offers, nil
}

func scanOffer(row rowScanner) (*model.Offer, error) {
	var (
		o                        model.Offer
		typ, reward, kind, value string
		maxDiscount, budget      *int64
		minSpend, given          int64
	)
	err := row.Scan(&o.ID, &o.RestaurantID, &o.Title, &typ, &o.Code, &reward, &kind, &value,
		&maxDiscount, &minSpend, &o.ApplicableItemIDs, &o.TriggerItemID, &o.FreeItemID,
		&o.ValidFrom, &o.ValidUntil, &o.IsActive, &o.MaxUsage, &budget, &o.UsageCount, &given, &o.CreatedAt)
	if err != nil {
		return nil, err
	}

	o.Type = model.OfferType(typ)
	o.RewardType = model.RewardType(reward)
	o.DiscountKind = model.DiscountKind(kind)
	if o.DiscountValue, err = decimal.NewFromString(value); err != nil {
		return nil, fmt.Errorf("parse discount value: %w", err)
	}
	o.MaxDiscount = fromNullCents(maxDiscount)
	o.GlobalBudget = fromNullCents(budget)
	o.MinSpend = model.FromCents(minSpend)
	o.TotalDiscountGiven = model.FromCents(given)
	return &o, nil
}

func walletStats(ctx context.Context, q querier, restaurantID string) (model.WalletStats, error) {
	var available, pending, earned, outflow int64
	err := q.QueryRow(ctx,
		`SELECT
		     COALESCE(SUM(amount) FILTER (WHERE status = 'completed'), 0)::BIGINT,
		     COALESCE(SUM(amount) FILTER (WHERE status = 'pending'), 0)::BIGINT,
		     COALESCE(SUM(amount) FILTER (WHERE status = 'completed' AND amount > 0), 0)::BIGINT,
		     COALESCE(SUM(amount) FILTER (WHERE status = 'pending' AND amount < 0), 0)::BIGINT
		 FROM transactions
		 WHERE restaurant_id = $1`,
		restaurantID,
	).Scan(&available, &pending, &earned, &outflow)
	if err != nil {
		return model.WalletStats{}, fmt.Errorf("sum transactions: %w", err)
	}

	return model.WalletStats{
		Available:      model.FromCents(available),
		Pending:        model.FromCents(pending),
		TotalEarnings:  model.FromCents(earned),
		PendingOutflow: model.FromCents(outflow),
	}, nil
}

func queryTransactions(ctx context.Context, q querier, sql string, args ...any) ([]model.Transaction, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var res []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		res = append(res, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var (
		t           model.Transaction
		typ, status string
		amountC     int64
		metadata    []byte
	)
	if err := row.Scan(&t.ID, &t.RestaurantID, &typ, &amountC, &status, &t.ReservationID, &t.OrderID, &metadata, &t.CreatedAt); err != nil {
		return nil, err
	}

	t.Type = model.TransactionType(typ)
	t.Status = model.TransactionStatus(status)
	t.Amount = model.FromCents(amountC)
	if err := unmarshalJSON(metadata, &t.Metadata); err != nil {
		return nil, err
	}
	return &t, nil
}

func unmarshalJSON(raw []byte, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode json column: %w", err)
	}
	return nil
}

func nullCents(d decimal.NullDecimal) *int64 {
	if !d.Valid {
		return nil
	}
	c := model.Cents(d.Decimal)
	return &c
}

func fromNullCents(c *int64) decimal.NullDecimal {
	if c == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(model.FromCents(*c))
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
