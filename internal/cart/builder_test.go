package cart

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/tableside/internal/model"
)

func menuItem() model.MenuItem {
	return model.MenuItem{
		ID:        "burger",
		Name:      "Burger",
		Price:     decimal.RequireFromString("12.00"),
		Available: true,
		AddOns: []model.AddOn{
			{ID: "cheese", Name: "Cheese", Price: decimal.RequireFromString("1.50")},
			{ID: "bacon", Name: "Bacon", Price: decimal.RequireFromString("2.00")},
		},
	}
}

func TestBuilder_BuildsOrderWithFrozenPrices(t *testing.T) {
	b := New()
	require.NoError(t, b.Add(menuItem(), 2, []string{"cheese", "cheese", "bacon"}, "no onions"))

	item := menuItem()
	item.ID = "fries"
	item.Price = decimal.RequireFromString("4")
	item.AddOns = nil
	require.NoError(t, b.Add(item, 1, nil, ""))

	res := &model.Reservation{ID: "res-1", RestaurantID: "r1", TableID: "t1", UserID: "u1"}
	now := time.Now()
	order, err := b.Build(res, now)
	require.NoError(t, err)

	assert.Equal(t, "35.00", order.TotalAmount.StringFixed(2))
	assert.Equal(t, model.OrderOrdered, order.Status)
	assert.Equal(t, "res-1", order.ReservationID)
	require.Len(t, order.Items, 2)
	assert.Len(t, order.Items[0].AddOns, 2, "duplicate add-on ids collapse")
	assert.Equal(t, "no onions", order.Items[0].Note)
	assert.NotEqual(t, order.Items[0].ID, order.Items[1].ID)
}

func TestBuilder_Rejects(t *testing.T) {
	unavailable := menuItem()
	unavailable.Available = false

	tests := []struct {
		name     string
		item     model.MenuItem
		quantity int
		addOns   []string
	}{
		{"unavailable item", unavailable, 1, nil},
		{"zero quantity", menuItem(), 0, nil},
		{"negative quantity", menuItem(), -1, nil},
		{"unknown add-on", menuItem(), 1, []string{"truffle"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New()
			err := b.Add(tt.item, tt.quantity, tt.addOns, "")
			assert.Equal(t, model.KindValidation, model.KindOf(err))
			assert.Zero(t, b.Len())
		})
	}
}

func TestBuilder_EmptyCart(t *testing.T) {
	_, err := New().Build(&model.Reservation{ID: "res-1"}, time.Now())
	assert.Equal(t, model.KindValidation, model.KindOf(err))
}
