// Package payment проверяет подтверждения онлайн-оплаты от платёжного шлюза.
package payment

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/mmeshcher/tableside/internal/model"
)

// ReservationMetadataKey: ключ метаданных платежа, в котором передаётся идентификатор сессии.
const ReservationMetadataKey = "reservation_id"

const (
	eventSucceeded = "payment_intent.succeeded"
	eventFailed    = "payment_intent.payment_failed"
)

// Confirmation описывает проверенное уведомление шлюза об исходе оплаты.
type Confirmation struct {
	EventID       string
	PaymentRef    string
	ReservationID string
	Amount        decimal.Decimal
	Currency      string
	Succeeded     bool
	// Ignored выставляется для событий, не относящихся к оплате счёта.
	Ignored bool
}

// StripeVerifier проверяет подпись вебхука и извлекает из события подтверждение оплаты.
type StripeVerifier struct {
	secret string
}

// NewStripeVerifier создаёт проверяющий объект с секретом подписи вебхука.
func NewStripeVerifier(secret string) *StripeVerifier {
	return &StripeVerifier{secret: secret}
}

// Parse проверяет подпись и разбирает событие. Любая ошибка означает, что состояние менять нельзя.
func (v *StripeVerifier) Parse(payload []byte, signature string) (*Confirmation, error) {
	const op = "payment.Parse"

	if v == nil || v.secret == "" {
		return nil, model.Errorf(model.KindExternal, op, "webhook secret is not configured")
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, model.Wrap(model.KindExternal, op, fmt.Errorf("verify signature: %w", err))
	}

	conf := &Confirmation{EventID: event.ID}
	switch string(event.Type) {
	case eventSucceeded:
		conf.Succeeded = true
	case eventFailed:
	default:
		conf.Ignored = true
		return conf, nil
	}

	if event.Data == nil {
		return nil, model.Errorf(model.KindExternal, op, "event %s has no data", event.ID)
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, model.Wrap(model.KindExternal, op, fmt.Errorf("decode payment intent: %w", err))
	}

	reservationID := intent.Metadata[ReservationMetadataKey]
	if intent.ID == "" || reservationID == "" {
		return nil, model.Errorf(model.KindExternal, op, "payment intent is missing id or %s metadata", ReservationMetadataKey)
	}

	conf.PaymentRef = intent.ID
	conf.ReservationID = reservationID
	conf.Amount = decimal.New(intent.AmountReceived, -2)
	if !conf.Amount.IsPositive() {
		conf.Amount = decimal.New(intent.Amount, -2)
	}
	conf.Currency = string(intent.Currency)

	return conf, nil
}
