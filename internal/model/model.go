// Package model содержит доменные сущности сервиса обслуживания столиков.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TableStatus описывает занятость столика.
type TableStatus string

const (
	TableAvailable TableStatus = "available"
	TableOccupied  TableStatus = "occupied"
	TableReserved  TableStatus = "reserved"
)

// Table представляет физический столик ресторана.
type Table struct {
	ID           string
	RestaurantID string
	Name         string
	Seats        int
	Area         string
	Status       TableStatus
}

// ReservationStatus описывает этап жизненного цикла сессии за столиком.
type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationActive    ReservationStatus = "active"
	ReservationDeclined  ReservationStatus = "declined"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationCompleted ReservationStatus = "completed"
)

// IsOpen сообщает, удерживает ли сессия столик.
func (s ReservationStatus) IsOpen() bool {
	return s == ReservationPending || s == ReservationActive
}

// ReservationType различает предварительное бронирование и гостя «с улицы».
type ReservationType string

const (
	ReservationTypeReservation ReservationType = "reservation"
	ReservationTypeWalkIn      ReservationType = "walk_in"
)

// PaymentStatus описывает состояние оплаты сессии.
type PaymentStatus string

const (
	PaymentUnpaid         PaymentStatus = "unpaid"
	PaymentPendingCounter PaymentStatus = "pending_counter"
	PaymentPaid           PaymentStatus = "paid"
	PaymentRefunded       PaymentStatus = "refunded"
)

// RevenueSplit фиксирует распределение выручки по сессии.
type RevenueSplit struct {
	Platform   decimal.Decimal
	Restaurant decimal.Decimal
	Refund     decimal.Decimal
}

// Reservation связывает одного гостя с одним столиком на время визита.
type Reservation struct {
	ID              string
	RestaurantID    string
	TableID         string
	TableName       string
	UserID          string
	UserName        string
	Status          ReservationStatus
	Type            ReservationType
	PaymentStatus   PaymentStatus
	ReservationFee  decimal.Decimal
	TotalBillAmount decimal.Decimal
	Split           RevenueSplit
	AppliedCouponID string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderStatus описывает статус заказа и отдельной позиции.
type OrderStatus string

const (
	OrderOrdered   OrderStatus = "ordered"
	OrderPreparing OrderStatus = "preparing"
	OrderServed    OrderStatus = "served"
	OrderPaid      OrderStatus = "paid"
	OrderCancelled OrderStatus = "cancelled"
)

// AddOn описывает добавку к блюду с ценой, зафиксированной на момент заказа.
type AddOn struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// OrderItem описывает позицию заказа. Цена и добавки неизменны после добавления в заказ.
type OrderItem struct {
	ID         string          `json:"id"`
	MenuItemID string          `json:"menuItemId"`
	Name       string          `json:"name"`
	UnitPrice  decimal.Decimal `json:"unitPrice"`
	Quantity   int             `json:"quantity"`
	AddOns     []AddOn         `json:"addOns,omitempty"`
	Status     OrderStatus     `json:"status"`
	Note       string          `json:"note,omitempty"`
}

// UnitTotal возвращает цену одной единицы вместе с добавками.
func (i OrderItem) UnitTotal() decimal.Decimal {
	total := i.UnitPrice
	for _, a := range i.AddOns {
		total = total.Add(a.Price)
	}
	return total
}

// LineTotal возвращает стоимость позиции с учётом количества.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitTotal().Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Billable сообщает, участвует ли позиция в расчёте счёта.
func (i OrderItem) Billable() bool {
	return i.Status != OrderCancelled
}

// Order описывает один тикет, оформленный в рамках сессии.
type Order struct {
	ID              string
	ReservationID   string
	RestaurantID    string
	TableID         string
	UserID          string
	Items           []OrderItem
	TotalAmount     decimal.Decimal
	Status          OrderStatus
	AppliedOfferID  string
	AppliedDiscount decimal.Decimal
	PaymentRef      string
	Snapshot        *BillSnapshot
	CreatedAt       time.Time
}

// MenuItem описывает снимок позиции меню, полученный из каталога.
type MenuItem struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	AddOns    []AddOn         `json:"addOns"`
	Available bool            `json:"available"`
}

// OfferType различает публичные предложения и приватные купоны.
type OfferType string

const (
	OfferTypeOffer  OfferType = "offer"
	OfferTypeCoupon OfferType = "coupon"
)

// RewardType описывает вид вознаграждения.
type RewardType string

const (
	RewardDiscount RewardType = "discount"
	RewardFreeItem RewardType = "free_item"
)

// DiscountKind описывает форму скидки.
type DiscountKind string

const (
	DiscountPercentage DiscountKind = "percentage"
	DiscountFixed      DiscountKind = "fixed"
)

// Offer описывает акцию ресторана вместе с лимитами и счётчиками использования.
type Offer struct {
	ID                 string
	RestaurantID       string
	Title              string
	Type               OfferType
	Code               string
	RewardType         RewardType
	DiscountKind       DiscountKind
	DiscountValue      decimal.Decimal
	MaxDiscount        decimal.NullDecimal
	MinSpend           decimal.Decimal
	ApplicableItemIDs  []string
	TriggerItemID      string
	FreeItemID         string
	ValidFrom          *time.Time
	ValidUntil         *time.Time
	IsActive           bool
	MaxUsage           int
	GlobalBudget       decimal.NullDecimal
	UsageCount         int
	TotalDiscountGiven decimal.Decimal
	CreatedAt          time.Time
}

// OfferUsage фиксирует одно успешное применение акции.
type OfferUsage struct {
	ID            string
	OfferID       string
	RestaurantID  string
	UserID        string
	ReservationID string
	OrderID       string
	TransactionID string
	Discount      decimal.Decimal
	CreatedAt     time.Time
}

// TransactionType описывает вид записи в журнале ресторана.
type TransactionType string

const (
	TransactionReservation  TransactionType = "reservation"
	TransactionBillPayment  TransactionType = "bill_payment"
	TransactionCancellation TransactionType = "cancellation"
	TransactionWithdrawal   TransactionType = "withdrawal"
	TransactionSubscription TransactionType = "subscription"
)

// TransactionStatus описывает статус записи журнала.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
)

// Transaction описывает неизменяемую денежную запись журнала. Меняться может только статус.
type Transaction struct {
	ID            string
	RestaurantID  string
	Type          TransactionType
	Amount        decimal.Decimal
	Status        TransactionStatus
	ReservationID string
	OrderID       string
	Metadata      map[string]string
	CreatedAt     time.Time
}

// WalletStats содержит балансы, выведенные из журнала транзакций.
type WalletStats struct {
	Available     decimal.Decimal `json:"availableBalance"`
	Pending       decimal.Decimal `json:"pendingBalance"`
	TotalEarnings decimal.Decimal `json:"totalEarnings"`

	// PendingOutflow: сумма ожидающих списаний (отрицательная или ноль).
	PendingOutflow decimal.Decimal `json:"-"`
}

// BillingConfig задаёт ставки сервисного сбора и налога в процентах.
type BillingConfig struct {
	ServiceChargeRate      decimal.Decimal
	ServiceChargeInclusive bool
	SalesTaxRate           decimal.Decimal
	SalesTaxInclusive      bool
}

// DefaultBillingConfig возвращает конфигурацию, применяемую при её отсутствии у ресторана.
func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		ServiceChargeRate: decimal.Zero,
		SalesTaxRate:      decimal.Zero,
	}
}

// ReservationPolicy задаёт правила возврата предоплаты при отмене бронирования.
type ReservationPolicy struct {
	RefundPercent   decimal.Decimal
	CancellationFee decimal.Decimal
}

// DefaultReservationPolicy возвращает полный возврат без удержаний.
func DefaultReservationPolicy() ReservationPolicy {
	return ReservationPolicy{
		RefundPercent:   decimal.NewFromInt(100),
		CancellationFee: decimal.Zero,
	}
}

// BillSnapshot содержит замороженный результат расчёта при закрытии счёта.
type BillSnapshot struct {
	Subtotal            decimal.Decimal `json:"subtotal"`
	ServiceCharge       decimal.Decimal `json:"serviceCharge"`
	Tax                 decimal.Decimal `json:"tax"`
	Discount            decimal.Decimal `json:"discount"`
	GrandTotal          decimal.Decimal `json:"grandTotal"`
	DiscountDescription string          `json:"discountDescription,omitempty"`
	OfferID             string          `json:"offerId,omitempty"`
	SettledAt           time.Time       `json:"settledAt"`
}

// PaymentMethod различает оплату на кассе и онлайн-оплату.
type PaymentMethod string

const (
	PaymentMethodCounter PaymentMethod = "counter"
	PaymentMethodOnline  PaymentMethod = "online"
)

// CounterSettlementKey используется как ключ идемпотентности для оплаты на кассе.
const CounterSettlementKey = "counter-settlement"

// Settlement фиксирует факт закрытия счёта по ключу идемпотентности.
type Settlement struct {
	ReservationID  string
	IdempotencyKey string
	Method         PaymentMethod
	PaymentRef     string
	TransactionID  string
	Snapshot       BillSnapshot
	CreatedAt      time.Time
}

// Role описывает роль пользователя.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
)

// Actor описывает аутентифицированного пользователя, выполняющего операцию.
type Actor struct {
	UserID       string
	Name         string
	Role         Role
	RestaurantID string
}

// IsStaffOf сообщает, является ли пользователь сотрудником указанного ресторана.
func (a Actor) IsStaffOf(restaurantID string) bool {
	return a.Role == RoleStaff && a.RestaurantID == restaurantID
}
