package service

import (
	"context"
	"errors"

	"github.com/mmeshcher/tableside/internal/billing"
	"github.com/mmeshcher/tableside/internal/cart"
	"github.com/mmeshcher/tableside/internal/catalog"
	"github.com/mmeshcher/tableside/internal/model"
	"github.com/mmeshcher/tableside/internal/repository"
)

// OrderLine описывает одну строку корзины гостя.
type OrderLine struct {
	MenuItemID string
	Quantity   int
	AddOnIDs   []string
	Note       string
}

// BillItems содержит позиции сессии в двух представлениях: сгруппированном для чека и хронологическом.
type BillItems struct {
	Groups    []billing.GroupedLine
	Timeline  []billing.Line
	Cancelled int
}

var itemTransitions = map[model.OrderStatus][]model.OrderStatus{
	model.OrderOrdered:   {model.OrderPreparing, model.OrderCancelled},
	model.OrderPreparing: {model.OrderServed, model.OrderCancelled},
}

func canMoveItem(from, to model.OrderStatus) bool {
	for _, next := range itemTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// orderStatus выводит статус заказа из статусов его позиций: заказ находится на самом раннем этапе среди живых позиций.
func orderStatus(items []model.OrderItem) model.OrderStatus {
	rank := map[model.OrderStatus]int{
		model.OrderOrdered:   0,
		model.OrderPreparing: 1,
		model.OrderServed:    2,
		model.OrderPaid:      3,
	}

	status := model.OrderCancelled
	best := len(rank)
	for _, item := range items {
		r, ok := rank[item.Status]
		if !ok {
			continue
		}
		if r < best {
			best = r
			status = item.Status
		}
	}
	return status
}

// PlaceOrder оформляет корзину гостя одним заказом. Цены фиксируются по каталогу на момент оформления.
func (s *Service) PlaceOrder(ctx context.Context, actor model.Actor, reservationID string, lines []OrderLine) (*model.Order, error) {
	const op = "service.PlaceOrder"

	res, err := s.getReservation(ctx, op, reservationID)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(op, actor, res); err != nil {
		return nil, err
	}
	if res.Status != model.ReservationActive {
		return nil, model.Errorf(model.KindConflict, op, "reservation %s is %s, orders are accepted only for active sessions", res.ID, res.Status)
	}
	if s.catalog == nil {
		return nil, model.Errorf(model.KindExternal, op, "menu catalog is not configured")
	}

	b := cart.New()
	for _, line := range lines {
		item, err := s.catalog.GetMenuItem(ctx, res.RestaurantID, line.MenuItemID)
		if errors.Is(err, catalog.ErrMenuItemNotFound) {
			return nil, model.Errorf(model.KindValidation, op, "unknown menu item %q", line.MenuItemID)
		}
		if err != nil {
			return nil, model.Wrap(model.KindExternal, op, err)
		}
		if err := b.Add(*item, line.Quantity, line.AddOnIDs, line.Note); err != nil {
			return nil, err
		}
	}

	var order *model.Order
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		r, err := tx.LockReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if r.Status != model.ReservationActive {
			return model.Errorf(model.KindConflict, op, "reservation %s is %s", r.ID, r.Status)
		}

		order, err = b.Build(r, s.now())
		if err != nil {
			return err
		}
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}

		return tx.EnqueueEvents(ctx, newEvent(model.EventOrderPlaced, r.RestaurantID, r.ID, order.CreatedAt, map[string]string{
			"orderId": order.ID,
			"total":   order.TotalAmount.StringFixed(2),
		}))
	})
	if err != nil {
		return nil, translate(op, err)
	}
	return order, nil
}

// UpdateItemStatus меняет статус позиции заказа. Статус paid выставляется только при закрытии счёта.
func (s *Service) UpdateItemStatus(ctx context.Context, actor model.Actor, orderID, itemID string, status model.OrderStatus) (*model.Order, error) {
	const op = "service.UpdateItemStatus"

	current, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, translate(op, err)
	}
	if err := requireStaff(op, actor, current.RestaurantID); err != nil {
		return nil, err
	}

	var order *model.Order
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		r, err := tx.LockReservation(ctx, current.ReservationID)
		if err != nil {
			return err
		}
		if r.Status != model.ReservationActive {
			return model.Errorf(model.KindConflict, op, "reservation %s is %s", r.ID, r.Status)
		}

		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}

		idx := -1
		for i := range o.Items {
			if o.Items[i].ID == itemID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return model.Errorf(model.KindNotFound, op, "item %s not found in order %s", itemID, orderID)
		}

		from := o.Items[idx].Status
		if from == status {
			order = o
			return nil
		}
		if !canMoveItem(from, status) {
			return model.Errorf(model.KindConflict, op, "item cannot move from %s to %s", from, status)
		}

		o.Items[idx].Status = status
		o.Status = orderStatus(o.Items)
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}

		order = o
		return tx.EnqueueEvents(ctx, newEvent(model.EventItemStatusChanged, o.RestaurantID, o.ReservationID, s.now(), map[string]string{
			"orderId": o.ID,
			"itemId":  itemID,
			"status":  string(status),
		}))
	})
	if err != nil {
		return nil, translate(op, err)
	}
	return order, nil
}

// GetBillItems возвращает позиции сессии для отображения чека и истории.
func (s *Service) GetBillItems(ctx context.Context, actor model.Actor, reservationID string) (*BillItems, error) {
	const op = "service.GetBillItems"

	res, err := s.getReservation(ctx, op, reservationID)
	if err != nil {
		return nil, err
	}
	if err := requireViewer(op, actor, res); err != nil {
		return nil, err
	}

	orders, err := s.repo.ListOrdersByReservation(ctx, reservationID)
	if err != nil {
		return nil, translate(op, err)
	}

	timeline := billing.Flatten(orders)
	items := billing.Billable(timeline)
	return &BillItems{
		Groups:    billing.Group(items),
		Timeline:  timeline,
		Cancelled: len(timeline) - len(items),
	}, nil
}
