// Package billing объединяет заказы сессии и рассчитывает счёт.
package billing

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/tableside/internal/model"
)

// Line описывает позицию заказа вместе с тикетом, в котором она была оформлена.
type Line struct {
	Item           model.OrderItem
	OrderID        string
	OrderCreatedAt time.Time
}

// Flatten разворачивает заказы сессии в упорядоченный по времени список позиций.
// Отменённые позиции сохраняются для истории.
func Flatten(orders []model.Order) []Line {
	sorted := make([]model.Order, len(orders))
	copy(sorted, orders)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	var lines []Line
	for _, o := range sorted {
		for _, item := range o.Items {
			lines = append(lines, Line{
				Item:           item,
				OrderID:        o.ID,
				OrderCreatedAt: o.CreatedAt,
			})
		}
	}
	return lines
}

// Billable возвращает позиции, участвующие в расчёте счёта.
func Billable(lines []Line) []model.OrderItem {
	items := make([]model.OrderItem, 0, len(lines))
	for _, l := range lines {
		if l.Item.Billable() {
			items = append(items, l.Item)
		}
	}
	return items
}

// Subtotal возвращает сумму (цена + добавки) × количество по неотменённым позициям.
func Subtotal(items []model.OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		if item.Billable() {
			total = total.Add(item.LineTotal())
		}
	}
	return total
}

// GroupedLine описывает строку счёта для отображения.
type GroupedLine struct {
	MenuItemID string
	Name       string
	AddOns     []model.AddOn
	UnitTotal  decimal.Decimal
	Quantity   int
	Total      decimal.Decimal
}

// Group объединяет одинаковые блюда с одинаковым набором добавок и суммирует количество.
// Итог группировки всегда равен Subtotal по тем же позициям.
func Group(items []model.OrderItem) []GroupedLine {
	index := make(map[string]int)
	var out []GroupedLine

	for _, item := range items {
		if !item.Billable() {
			continue
		}

		key := groupKey(item)
		if i, ok := index[key]; ok {
			out[i].Quantity += item.Quantity
			out[i].Total = out[i].Total.Add(item.LineTotal())
			continue
		}

		index[key] = len(out)
		out = append(out, GroupedLine{
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			AddOns:     item.AddOns,
			UnitTotal:  item.UnitTotal(),
			Quantity:   item.Quantity,
			Total:      item.LineTotal(),
		})
	}

	return out
}

// Позиции с одинаковым блюдом, но разной ценой (например, до и после смены меню) не смешиваются.
func groupKey(item model.OrderItem) string {
	ids := make([]string, 0, len(item.AddOns))
	for _, a := range item.AddOns {
		ids = append(ids, a.ID)
	}
	sort.Strings(ids)
	return item.MenuItemID + "|" + strings.Join(ids, ",") + "|" + item.UnitTotal().String()
}
