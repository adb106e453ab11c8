// Package cart собирает позиции заказа перед его атомарным оформлением.
package cart

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/tableside/internal/model"
)

// Builder накапливает позиции одного заказа. Цены фиксируются в момент добавления.
type Builder struct {
	items []model.OrderItem
}

// New создаёт пустую корзину.
func New() *Builder {
	return &Builder{}
}

// Add добавляет позицию меню с выбранными добавками. Цены копируются из снимка каталога.
func (b *Builder) Add(item model.MenuItem, quantity int, addOnIDs []string, note string) error {
	const op = "cart.Add"

	if !item.Available {
		return model.Errorf(model.KindValidation, op, "menu item %s is not available", item.ID)
	}
	if quantity <= 0 {
		return model.Errorf(model.KindValidation, op, "quantity must be positive, got %d", quantity)
	}
	if item.Price.Sign() < 0 {
		return model.Errorf(model.KindValidation, op, "menu item %s has a negative price", item.ID)
	}

	known := make(map[string]model.AddOn, len(item.AddOns))
	for _, a := range item.AddOns {
		known[a.ID] = a
	}

	seen := make(map[string]bool, len(addOnIDs))
	addOns := make([]model.AddOn, 0, len(addOnIDs))
	for _, id := range addOnIDs {
		a, ok := known[id]
		if !ok {
			return model.Errorf(model.KindValidation, op, "unknown add-on %q for menu item %s", id, item.ID)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		addOns = append(addOns, a)
	}

	b.items = append(b.items, model.OrderItem{
		ID:         uuid.NewString(),
		MenuItemID: item.ID,
		Name:       item.Name,
		UnitPrice:  item.Price,
		Quantity:   quantity,
		AddOns:     addOns,
		Status:     model.OrderOrdered,
		Note:       note,
	})
	return nil
}

// Len возвращает количество позиций в корзине.
func (b *Builder) Len() int {
	return len(b.items)
}

// Total возвращает сумму корзины.
func (b *Builder) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range b.items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// Build превращает корзину в заказ сессии. Пустая корзина не оформляется.
func (b *Builder) Build(res *model.Reservation, now time.Time) (*model.Order, error) {
	if len(b.items) == 0 {
		return nil, model.Errorf(model.KindValidation, "cart.Build", "order has no items")
	}

	items := make([]model.OrderItem, len(b.items))
	copy(items, b.items)

	return &model.Order{
		ID:            uuid.NewString(),
		ReservationID: res.ID,
		RestaurantID:  res.RestaurantID,
		TableID:       res.TableID,
		UserID:        res.UserID,
		Items:         items,
		TotalAmount:   model.Round(b.Total()),
		Status:        model.OrderOrdered,
		CreatedAt:     now,
	}, nil
}
