package notify

import (
	"context"
	"sync"

	"github.com/mmeshcher/tableside/internal/model"
)

const subscriberBuffer = 16

// Broker раздаёт события подписчикам внутри процесса: по сессии и по ресторану.
// Медленный подписчик пропускает события и не тормозит публикацию.
type Broker struct {
	mu          sync.RWMutex
	reservation map[string][]chan model.Event
	restaurant  map[string][]chan model.Event
}

// NewBroker создаёт пустой брокер.
func NewBroker() *Broker {
	return &Broker{
		reservation: make(map[string][]chan model.Event),
		restaurant:  make(map[string][]chan model.Event),
	}
}

// SubscribeReservation подписывает на события сессии до отмены контекста.
func (b *Broker) SubscribeReservation(ctx context.Context, reservationID string) <-chan model.Event {
	return b.subscribe(ctx, b.reservation, reservationID)
}

// SubscribeRestaurant подписывает на все события ресторана до отмены контекста.
func (b *Broker) SubscribeRestaurant(ctx context.Context, restaurantID string) <-chan model.Event {
	return b.subscribe(ctx, b.restaurant, restaurantID)
}

func (b *Broker) subscribe(ctx context.Context, clients map[string][]chan model.Event, key string) <-chan model.Event {
	ch := make(chan model.Event, subscriberBuffer)

	b.mu.Lock()
	clients[key] = append(clients[key], ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(clients, key, ch)
	}()

	return ch
}

func (b *Broker) remove(clients map[string][]chan model.Event, key string, ch chan model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := clients[key]
	for i, c := range list {
		if c == ch {
			clients[key] = append(list[:i:i], list[i+1:]...)
			close(ch)
			break
		}
	}
	if len(clients[key]) == 0 {
		delete(clients, key)
	}
}

// Publish отправляет событие подписчикам сессии и ресторана.
func (b *Broker) Publish(_ context.Context, e model.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if e.ReservationID != "" {
		send(b.reservation[e.ReservationID], e)
	}
	send(b.restaurant[e.RestaurantID], e)
	return nil
}

// Subscribers возвращает число подписчиков сессии.
func (b *Broker) Subscribers(reservationID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.reservation[reservationID])
}

func send(clients []chan model.Event, e model.Event) {
	for _, ch := range clients {
		select {
		case ch <- e:
		default:
		}
	}
}
