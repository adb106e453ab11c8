// Package notify доставляет доменные события подписчикам.
package notify

import (
	"context"
	"errors"

	"github.com/mmeshcher/tableside/internal/model"
)

// Publisher публикует одно событие.
type Publisher interface {
	Publish(ctx context.Context, e model.Event) error
}

// Fanout рассылает событие во все публикаторы и собирает их ошибки.
type Fanout []Publisher

// Publish вызывает все публикаторы, даже если часть из них вернула ошибку.
func (f Fanout) Publish(ctx context.Context, e model.Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
