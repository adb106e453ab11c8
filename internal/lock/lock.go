// Package lock предоставляет блокировки по ключу для операций, требующих сериализации
// (захват столика, закрытие счёта).
package lock

import (
	"context"
	"sync"
)

// Locker захватывает блокировку ключа и возвращает функцию её освобождения.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// Local реализует Locker в памяти процесса. Каждому ключу соответствует канал-семафор.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch      chan struct{}
	waiters int
}

// NewLocal создаёт блокировщик в памяти.
func NewLocal() *Local {
	return &Local{slots: make(map[string]*slot)}
}

// Lock ждёт освобождения ключа или отмены контекста.
func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.waiters++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, s, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, s, true) })
	}, nil
}

func (l *Local) release(key string, s *slot, held bool) {
	if held {
		<-s.ch
	}

	l.mu.Lock()
	s.waiters--
	if s.waiters == 0 {
		delete(l.slots, key)
	}
	l.mu.Unlock()
}
