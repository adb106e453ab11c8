package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/tableside/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// querier объединяет пул и транзакцию pgx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	delays []time.Duration
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{
		pool:   pool,
		delays: []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second},
	}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет операцию при конфликте сериализации, взаимной блокировке или обрыве соединения.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error

	for i := 0; i <= len(r.delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isRetryable(err) || i == len(r.delays) {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.delays[i]):
		}
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// WithTx выполняет fn в транзакции. При конфликте сериализации транзакция повторяется целиком.
func (r *PostgresRepository) WithTx(ctx context.Context, fn TxFunc) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := fn(ctx, &pgTx{tx: tx}); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// GetTable возвращает столик ресторана.
func (r *PostgresRepository) GetTable(ctx context.Context, restaurantID, tableID string) (*model.Table, error) {
	return getTable(ctx, r.pool, restaurantID, tableID, false)
}

// SaveTable создаёт или обновляет описание столика. Статус занятости не перезаписывается.
func (r *PostgresRepository) SaveTable(ctx context.Context, t *model.Table) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO restaurant_tables (restaurant_id, id, name, seats, area, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (restaurant_id, id) DO UPDATE
		 SET name = EXCLUDED.name, seats = EXCLUDED.seats, area = EXCLUDED.area`,
		t.RestaurantID, t.ID, t.Name, t.Seats, t.Area, string(model.TableAvailable),
	)
	if err != nil {
		return fmt.Errorf("save table: %w", err)
	}
	return nil
}

// GetReservation возвращает сессию по идентификатору.
func (r *PostgresRepository) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	return getReservation(ctx, r.pool, id, false)
}

// GetOrder возвращает заказ по идентификатору.
func (r *PostgresRepository) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	return getOrder(ctx, r.pool, id, false)
}

// ListOrdersByReservation возвращает заказы сессии в порядке оформления.
func (r *PostgresRepository) ListOrdersByReservation(ctx context.Context, reservationID string) ([]model.Order, error) {
	return listOrders(ctx, r.pool, reservationID)
}

// ListOffers возвращает все акции и купоны ресторана.
func (r *PostgresRepository) ListOffers(ctx context.Context, restaurantID string) ([]model.Offer, error) {
	return queryOffers(ctx, r.pool,
		`SELECT `+offerColumns+` FROM offers WHERE restaurant_id = $1 ORDER BY created_at, id`,
		restaurantID,
	)
}

// GetOffer возвращает акцию по идентификатору.
func (r *PostgresRepository) GetOffer(ctx context.Context, id string) (*model.Offer, error) {
	o, err := scanOffer(r.pool.QueryRow(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get offer: %w", err)
	}
	return o, nil
}

// GetOfferByCode ищет купон ресторана по коду без учёта регистра.
func (r *PostgresRepository) GetOfferByCode(ctx context.Context, restaurantID, code string) (*model.Offer, error) {
	o, err := scanOffer(r.pool.QueryRow(ctx,
		`SELECT `+offerColumns+` FROM offers
		 WHERE restaurant_id = $1 AND type = $2 AND UPPER(code) = UPPER($3)`,
		restaurantID, string(model.OfferTypeCoupon), code,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get offer by code: %w", err)
	}
	return o, nil
}

// SaveOffer создаёт или обновляет определение акции. Счётчики использования здесь не меняются.
func (r *PostgresRepository) SaveOffer(ctx context.Context, o *model.Offer) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO offers (id, restaurant_id, title, type, code, reward_type, discount_kind, discount_value,
		                     max_discount, min_spend, applicable_item_ids, trigger_item_id, free_item_id,
		                     valid_from, valid_until, is_active, max_usage, global_budget, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		 ON CONFLICT (id) DO UPDATE SET
		     title = EXCLUDED.title, code = EXCLUDED.code, reward_type = EXCLUDED.reward_type,
		     discount_kind = EXCLUDED.discount_kind, discount_value = EXCLUDED.discount_value,
		     max_discount = EXCLUDED.max_discount, min_spend = EXCLUDED.min_spend,
		     applicable_item_ids = EXCLUDED.applicable_item_ids, trigger_item_id = EXCLUDED.trigger_item_id,
		     free_item_id = EXCLUDED.free_item_id, valid_from = EXCLUDED.valid_from,
		     valid_until = EXCLUDED.valid_until, is_active = EXCLUDED.is_active,
		     max_usage = EXCLUDED.max_usage, global_budget = EXCLUDED.global_budget`,
		o.ID, o.RestaurantID, o.Title, string(o.Type), o.Code, string(o.RewardType), string(o.DiscountKind),
		o.DiscountValue.String(), nullCents(o.MaxDiscount), model.Cents(o.MinSpend), nonNil(o.ApplicableItemIDs),
		o.TriggerItemID, o.FreeItemID, o.ValidFrom, o.ValidUntil, o.IsActive, o.MaxUsage,
		nullCents(o.GlobalBudget), o.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "offers_coupon_code") {
			return fmt.Errorf("%w: %s", ErrDuplicateCoupon, o.Code)
		}
		return fmt.Errorf("save offer: %w", err)
	}
	return nil
}

// GetBillingConfig возвращает ставки ресторана или ErrNotFound.
func (r *PostgresRepository) GetBillingConfig(ctx context.Context, restaurantID string) (*model.BillingConfig, error) {
	var (
		cfg          model.BillingConfig
		scRate, rate string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT service_charge_rate::text, service_charge_inclusive, sales_tax_rate::text, sales_tax_inclusive
		 FROM billing_configs WHERE restaurant_id = $1`,
		restaurantID,
	).Scan(&scRate, &cfg.ServiceChargeInclusive, &rate, &cfg.SalesTaxInclusive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get billing config: %w", err)
	}

	if cfg.ServiceChargeRate, err = decimal.NewFromString(scRate); err != nil {
		return nil, fmt.Errorf("parse service charge rate: %w", err)
	}
	if cfg.SalesTaxRate, err = decimal.NewFromString(rate); err != nil {
		return nil, fmt.Errorf("parse sales tax rate: %w", err)
	}
	return &cfg, nil
}

// SaveBillingConfig сохраняет ставки ресторана.
func (r *PostgresRepository) SaveBillingConfig(ctx context.Context, restaurantID string, cfg model.BillingConfig) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO billing_configs (restaurant_id, service_charge_rate, service_charge_inclusive, sales_tax_rate, sales_tax_inclusive)
		 VALUES ($1, $2::numeric, $3, $4::numeric, $5)
		 ON CONFLICT (restaurant_id) DO UPDATE SET
		     service_charge_rate = EXCLUDED.service_charge_rate,
		     service_charge_inclusive = EXCLUDED.service_charge_inclusive,
		     sales_tax_rate = EXCLUDED.sales_tax_rate,
		     sales_tax_inclusive = EXCLUDED.sales_tax_inclusive`,
		restaurantID, cfg.ServiceChargeRate.String(), cfg.ServiceChargeInclusive, cfg.SalesTaxRate.String(), cfg.SalesTaxInclusive,
	)
	if err != nil {
		return fmt.Errorf("save billing config: %w", err)
	}
	return nil
}

// GetReservationPolicy возвращает правила возврата ресторана или ErrNotFound.
func (r *PostgresRepository) GetReservationPolicy(ctx context.Context, restaurantID string) (*model.ReservationPolicy, error) {
	var (
		percent string
		feeC    int64
	)
	err := r.pool.QueryRow(ctx,
		`SELECT refund_percent::text, cancellation_fee FROM reservation_policies WHERE restaurant_id = $1`,
		restaurantID,
	).Scan(&percent, &feeC)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get reservation policy: %w", err)
	}

	p, err := decimal.NewFromString(percent)
	if err != nil {
		return nil, fmt.Errorf("parse refund percent: %w", err)
	}
	return &model.ReservationPolicy{RefundPercent: p, CancellationFee: model.FromCents(feeC)}, nil
}

// SaveReservationPolicy сохраняет правила возврата ресторана.
func (r *PostgresRepository) SaveReservationPolicy(ctx context.Context, restaurantID string, p model.ReservationPolicy) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO reservation_policies (restaurant_id, refund_percent, cancellation_fee)
		 VALUES ($1, $2::numeric, $3)
		 ON CONFLICT (restaurant_id) DO UPDATE SET
		     refund_percent = EXCLUDED.refund_percent, cancellation_fee = EXCLUDED.cancellation_fee`,
		restaurantID, p.RefundPercent.String(), model.Cents(p.CancellationFee),
	)
	if err != nil {
		return fmt.Errorf("save reservation policy: %w", err)
	}
	return nil
}

// GetWalletStats выводит балансы ресторана из журнала транзакций.
func (r *PostgresRepository) GetWalletStats(ctx context.Context, restaurantID string) (model.WalletStats, error) {
	return walletStats(ctx, r.pool, restaurantID)
}

// ListTransactions возвращает записи журнала за полуинтервал [from, to). Нулевая граница не ограничивает выборку.
func (r *PostgresRepository) ListTransactions(ctx context.Context, restaurantID string, from, to time.Time) ([]model.Transaction, error) {
	var fromArg, toArg *time.Time
	if !from.IsZero() {
		fromArg = &from
	}
	if !to.IsZero() {
		toArg = &to
	}

	return queryTransactions(ctx, r.pool,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE restaurant_id = $1
		   AND ($2::timestamptz IS NULL OR created_at >= $2)
		   AND ($3::timestamptz IS NULL OR created_at < $3)
		 ORDER BY created_at DESC, id`,
		restaurantID, fromArg, toArg,
	)
}

// ListPendingWithdrawals возвращает ожидающие выплаты заявки на вывод в порядке создания.
func (r *PostgresRepository) ListPendingWithdrawals(ctx context.Context, limit int) ([]model.Transaction, error) {
	return queryTransactions(ctx, r.pool,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE type = $1 AND status = $2
		 ORDER BY created_at
		 LIMIT $3`,
		string(model.TransactionWithdrawal), string(model.TransactionPending), limit,
	)
}

// FetchOutbox возвращает недоставленные события в порядке записи.
func (r *PostgresRepository) FetchOutbox(ctx context.Context, limit int) ([]model.Event, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT event FROM outbox WHERE delivered_at IS NULL ORDER BY seq LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select outbox: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		var e model.Event
		if err := unmarshalJSON(raw, &e); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return events, nil
}

// MarkOutboxDelivered помечает события доставленными.
func (r *PostgresRepository) MarkOutboxDelivered(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `UPDATE outbox SET delivered_at = NOW() WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("mark outbox delivered: %w", err)
	}
	return nil
}

// ListOfferUsages возвращает записи использования акции.
func (r *PostgresRepository) ListOfferUsages(ctx context.Context, offerID string) ([]model.OfferUsage, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, offer_id, restaurant_id, user_id, reservation_id, order_id, transaction_id, discount, created_at
		 FROM offer_usages WHERE offer_id = $1 ORDER BY created_at, id`,
		offerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select offer usages: %w", err)
	}
	defer rows.Close()

	var res []model.OfferUsage
	for rows.Next() {
		var (
			u         model.OfferUsage
			discountC int64
		)
		if err := rows.Scan(&u.ID, &u.OfferID, &u.RestaurantID, &u.UserID, &u.ReservationID, &u.OrderID,
			&u.TransactionID, &discountC, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan offer usage: %w", err)
		}
		u.Discount = model.FromCents(discountC)
		res = append(res, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}
