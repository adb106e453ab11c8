// Package repository содержит реализации хранилища: PostgreSQL и хранилище в памяти.
package repository

import (
	"context"
	"errors"

	"github.com/mmeshcher/tableside/internal/model"
)

var (
	// ErrNotFound возвращается, если запись не найдена.
	ErrNotFound = errors.New("not found")
	// ErrTableOccupied возвращается, если на столике уже есть открытая сессия.
	ErrTableOccupied = errors.New("table already has an open reservation")
	// ErrOfferExhausted возвращается, если лимит использований или бюджет акции исчерпан к моменту фиксации.
	ErrOfferExhausted = errors.New("offer usage limit or budget exhausted")
	// ErrDuplicateSettlement возвращается при повторной записи закрытия счёта сессии.
	ErrDuplicateSettlement = errors.New("reservation already settled")
	// ErrDuplicateCoupon возвращается, если код купона уже занят в ресторане.
	ErrDuplicateCoupon = errors.New("coupon code already exists")
	// ErrInvalidTransition возвращается при недопустимой смене статуса записи журнала.
	ErrInvalidTransition = errors.New("invalid transaction status transition")
)

// Tx описывает операции, выполняемые внутри одной транзакции хранилища.
// Методы Lock* блокируют запись до конца транзакции.
type Tx interface {
	LockTable(ctx context.Context, restaurantID, tableID string) (*model.Table, error)
	SetTableStatus(ctx context.Context, restaurantID, tableID string, status model.TableStatus) error

	// OpenReservationForTable возвращает открытую сессию столика или nil.
	OpenReservationForTable(ctx context.Context, restaurantID, tableID string) (*model.Reservation, error)
	CreateReservation(ctx context.Context, r *model.Reservation) error
	LockReservation(ctx context.Context, id string) (*model.Reservation, error)
	UpdateReservation(ctx context.Context, r *model.Reservation) error

	ListOrders(ctx context.Context, reservationID string) ([]model.Order, error)
	LockOrder(ctx context.Context, id string) (*model.Order, error)
	CreateOrder(ctx context.Context, o *model.Order) error
	UpdateOrder(ctx context.Context, o *model.Order) error

	// LockOffers блокирует акции в порядке идентификаторов.
	LockOffers(ctx context.Context, restaurantID string, ids []string) ([]model.Offer, error)
	LockPublicOffers(ctx context.Context, restaurantID string) ([]model.Offer, error)
	// RecordOfferUsage атомарно проверяет лимиты, увеличивает счётчики акции и сохраняет запись использования.
	RecordOfferUsage(ctx context.Context, u *model.OfferUsage) error

	// GetSettlement возвращает закрытие счёта сессии или nil.
	GetSettlement(ctx context.Context, reservationID string) (*model.Settlement, error)
	CreateSettlement(ctx context.Context, s *model.Settlement) error

	// LockWallet сериализует операции с кошельком ресторана и возвращает балансы.
	LockWallet(ctx context.Context, restaurantID string) (model.WalletStats, error)
	AppendTransaction(ctx context.Context, t *model.Transaction) error
	// UpdateTransactionStatus переводит запись из pending в completed или failed.
	UpdateTransactionStatus(ctx context.Context, id string, status model.TransactionStatus) (*model.Transaction, error)

	EnqueueEvents(ctx context.Context, events ...model.Event) error
}

// TxFunc выполняется внутри транзакции. Ошибка приводит к откату.
type TxFunc func(ctx context.Context, tx Tx) error
