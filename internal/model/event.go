package model

import "time"

// EventType описывает вид доменного события.
type EventType string

const (
	EventReservationCreated  EventType = "reservation.created"
	EventReservationAccepted EventType = "reservation.accepted"
	EventReservationDeclined EventType = "reservation.declined"
	EventReservationCanceled EventType = "reservation.cancelled"
	EventCounterRequested    EventType = "reservation.counter_requested"
	EventCouponApplied       EventType = "reservation.coupon_applied"
	EventOrderPlaced         EventType = "order.placed"
	EventItemStatusChanged   EventType = "order.item_status_changed"
	EventBillSettled         EventType = "bill.settled"
	EventTableReleased       EventType = "table.released"
	EventWithdrawalRequested EventType = "wallet.withdrawal_requested"
	EventWithdrawalResolved  EventType = "wallet.withdrawal_resolved"
)

// Event описывает уведомление, которое публикуется после фиксации транзакции.
type Event struct {
	ID            string            `json:"id"`
	Type          EventType         `json:"type"`
	RestaurantID  string            `json:"restaurantId"`
	ReservationID string            `json:"reservationId,omitempty"`
	Payload       map[string]string `json:"payload,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
}
