package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/tableside/internal/model"
)

func event(typ model.EventType) model.Event {
	return model.Event{
		ID:            "ev-1",
		Type:          typ,
		RestaurantID:  "r1",
		ReservationID: "res-1",
		CreatedAt:     time.Now(),
	}
}

func TestBroker_DeliversToReservationAndRestaurant(t *testing.T) {
	b := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resCh := b.SubscribeReservation(ctx, "res-1")
	otherCh := b.SubscribeReservation(ctx, "res-2")
	restCh := b.SubscribeRestaurant(ctx, "r1")

	require.NoError(t, b.Publish(ctx, event(model.EventBillSettled)))

	select {
	case e := <-resCh:
		assert.Equal(t, model.EventBillSettled, e.Type)
	case <-time.After(time.Second):
		t.Fatal("reservation subscriber did not receive event")
	}
	select {
	case e := <-restCh:
		assert.Equal(t, "res-1", e.ReservationID)
	case <-time.After(time.Second):
		t.Fatal("restaurant subscriber did not receive event")
	}
	assert.Len(t, otherCh, 0)
}

func TestBroker_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := b.SubscribeReservation(ctx, "res-1")
	for i := 0; i < subscriberBuffer*3; i++ {
		require.NoError(t, b.Publish(ctx, event(model.EventOrderPlaced)))
	}
	assert.Len(t, ch, subscriberBuffer)
}

func TestBroker_UnsubscribesOnCancel(t *testing.T) {
	b := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())

	ch := b.SubscribeReservation(ctx, "res-1")
	assert.Equal(t, 1, b.Subscribers("res-1"))
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel was not closed")
	}
	assert.Eventually(t, func() bool { return b.Subscribers("res-1") == 0 }, time.Second, 10*time.Millisecond)
	assert.NoError(t, b.Publish(context.Background(), event(model.EventOrderPlaced)))
}

type stubWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *stubWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *stubWriter) Close() error { return nil }

func TestKafkaPublisher(t *testing.T) {
	w := &stubWriter{}
	p := &KafkaPublisher{writer: w}

	require.NoError(t, p.Publish(context.Background(), event(model.EventBillSettled)))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "res-1", string(w.msgs[0].Key))
	assert.Equal(t, "bill.settled", string(w.msgs[0].Headers[0].Value))

	var decoded model.Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, "ev-1", decoded.ID)

	w.err = errors.New("broker down")
	assert.Error(t, p.Publish(context.Background(), event(model.EventBillSettled)))
}

type countingPublisher struct {
	calls int
	err   error
}

func (p *countingPublisher) Publish(context.Context, model.Event) error {
	p.calls++
	return p.err
}

func TestFanout_CallsEveryPublisher(t *testing.T) {
	failing := &countingPublisher{err: errors.New("boom")}
	ok := &countingPublisher{}

	err := Fanout{failing, nil, ok}.Publish(context.Background(), event(model.EventOrderPlaced))

	assert.Error(t, err)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, ok.calls)
}
