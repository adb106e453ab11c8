package payment

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/mmeshcher/tableside/internal/model"
)

const secret = "whsec_test"

func signed(t *testing.T, payload string) (string, []byte) {
	t.Helper()

	p := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return p.Header, p.Payload
}

func intentEvent(eventType, metadata string) string {
	return fmt.Sprintf(`{
		"id": "evt_1",
		"object": "event",
		"type": %q,
		"data": {"object": {
			"id": "pi_123",
			"object": "payment_intent",
			"amount": 11880,
			"amount_received": 11880,
			"currency": "usd",
			"metadata": %s
		}}
	}`, eventType, metadata)
}

func TestParse_Succeeded(t *testing.T) {
	header, body := signed(t, intentEvent("payment_intent.succeeded", `{"reservation_id": "res-1"}`))

	conf, err := NewStripeVerifier(secret).Parse(body, header)
	require.NoError(t, err)

	assert.True(t, conf.Succeeded)
	assert.False(t, conf.Ignored)
	assert.Equal(t, "pi_123", conf.PaymentRef)
	assert.Equal(t, "res-1", conf.ReservationID)
	assert.Equal(t, "118.80", conf.Amount.StringFixed(2))
	assert.Equal(t, "usd", conf.Currency)
}

func TestParse_Failed(t *testing.T) {
	header, body := signed(t, intentEvent("payment_intent.payment_failed", `{"reservation_id": "res-1"}`))

	conf, err := NewStripeVerifier(secret).Parse(body, header)
	require.NoError(t, err)
	assert.False(t, conf.Succeeded)
	assert.Equal(t, "res-1", conf.ReservationID)
}

func TestParse_IgnoresOtherEvents(t *testing.T) {
	header, body := signed(t, `{"id": "evt_2", "object": "event", "type": "customer.created", "data": {"object": {}}}`)

	conf, err := NewStripeVerifier(secret).Parse(body, header)
	require.NoError(t, err)
	assert.True(t, conf.Ignored)
}

func TestParse_Rejects(t *testing.T) {
	header, body := signed(t, intentEvent("payment_intent.succeeded", `{"reservation_id": "res-1"}`))
	_, err := NewStripeVerifier("whsec_other").Parse(body, header)
	assert.Equal(t, model.KindExternal, model.KindOf(err))

	_, err = NewStripeVerifier(secret).Parse(body, "t=1,v1=deadbeef")
	assert.Equal(t, model.KindExternal, model.KindOf(err))

	header, body = signed(t, intentEvent("payment_intent.succeeded", `{}`))
	_, err = NewStripeVerifier(secret).Parse(body, header)
	assert.Equal(t, model.KindExternal, model.KindOf(err))

	_, err = NewStripeVerifier("").Parse(body, header)
	assert.Error(t, err)
}
