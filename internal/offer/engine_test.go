package offer

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/tableside/internal/billing"
	"github.com/mmeshcher/tableside/internal/model"
)

var now = time.Date(2026, 3, 10, 19, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func lines(specs ...any) []model.OrderItem {
	var items []model.OrderItem
	for i := 0; i+2 < len(specs); i += 3 {
		items = append(items, model.OrderItem{
			ID:         specs[i].(string) + "-line",
			MenuItemID: specs[i].(string),
			UnitPrice:  d(specs[i+1].(string)),
			Quantity:   specs[i+2].(int),
			Status:     model.OrderServed,
		})
	}
	return items
}

func percentOffer(id, value string) model.Offer {
	return model.Offer{
		ID:            id,
		RestaurantID:  "r1",
		Type:          model.OfferTypeOffer,
		RewardType:    model.RewardDiscount,
		DiscountKind:  model.DiscountPercentage,
		DiscountValue: d(value),
		IsActive:      true,
		CreatedAt:     now.Add(-time.Hour),
	}
}

func TestEvaluate_PercentageWithCap(t *testing.T) {
	o := percentOffer("o1", "10")
	o.MaxDiscount = decimal.NewNullDecimal(d("3"))
	items := lines("steak", "40", 1)

	res := Evaluate(o, billing.Subtotal(items), items, now)

	require.True(t, res.Eligible(), res.Reason)
	assert.Equal(t, "3.00", res.Savings.StringFixed(2))
}

func TestEvaluate_Rejections(t *testing.T) {
	items := lines("steak", "40", 1)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name   string
		mutate func(o *model.Offer)
	}{
		{"inactive", func(o *model.Offer) { o.IsActive = false }},
		{"not yet valid", func(o *model.Offer) { o.ValidFrom = &future }},
		{"expired", func(o *model.Offer) { o.ValidUntil = &past }},
		{"budget exhausted", func(o *model.Offer) {
			o.GlobalBudget = decimal.NewNullDecimal(d("50"))
			o.TotalDiscountGiven = d("50")
		}},
		{"usage exhausted", func(o *model.Offer) {
			o.MaxUsage = 5
			o.UsageCount = 5
		}},
		{"min spend not met", func(o *model.Offer) { o.MinSpend = d("40.01") }},
		{"scoped to absent items", func(o *model.Offer) { o.ApplicableItemIDs = []string{"wine"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := percentOffer("o1", "10")
			tt.mutate(&o)

			res := Evaluate(o, billing.Subtotal(items), items, now)

			assert.True(t, res.Savings.IsZero())
			assert.NotEmpty(t, res.Reason)
		})
	}
}

func TestEvaluate_FixedAndScopedItems(t *testing.T) {
	items := lines("steak", "40", 1, "wine", "12", 2)

	fixed := percentOffer("fixed", "0")
	fixed.DiscountKind = model.DiscountFixed
	fixed.DiscountValue = d("30")
	fixed.ApplicableItemIDs = []string{"wine"}

	assert.Equal(t, "24.00", EligibleSavings(fixed, billing.Subtotal(items), items, now).StringFixed(2))

	scoped := percentOffer("scoped", "50")
	scoped.ApplicableItemIDs = []string{"steak"}
	assert.Equal(t, "20.00", EligibleSavings(scoped, billing.Subtotal(items), items, now).StringFixed(2))
}

func TestEvaluate_ClampsToRemainingBudget(t *testing.T) {
	o := percentOffer("o1", "20")
	o.GlobalBudget = decimal.NewNullDecimal(d("10"))
	o.TotalDiscountGiven = d("5")
	items := lines("steak", "40", 1)

	assert.Equal(t, "5.00", EligibleSavings(o, billing.Subtotal(items), items, now).StringFixed(2))
}

func TestEvaluate_FreeItem(t *testing.T) {
	o := model.Offer{
		ID:            "bogo",
		Type:          model.OfferTypeOffer,
		RewardType:    model.RewardFreeItem,
		FreeItemID:    "dessert",
		TriggerItemID: "steak",
		IsActive:      true,
	}

	withBoth := lines("steak", "40", 1, "dessert", "7.5", 1)
	assert.Equal(t, "7.50", EligibleSavings(o, billing.Subtotal(withBoth), withBoth, now).StringFixed(2))

	noDessert := lines("steak", "40", 1)
	assert.True(t, EligibleSavings(o, billing.Subtotal(noDessert), noDessert, now).IsZero())

	noTrigger := lines("dessert", "7.5", 1)
	assert.True(t, EligibleSavings(o, billing.Subtotal(noTrigger), noTrigger, now).IsZero())

	o.TriggerItemID = "dessert"
	assert.True(t, EligibleSavings(o, billing.Subtotal(noTrigger), noTrigger, now).IsZero())
	two := lines("dessert", "7.5", 2)
	assert.Equal(t, "7.50", EligibleSavings(o, billing.Subtotal(two), two, now).StringFixed(2))
}

func TestBest_PicksGreatestSavingsAndBreaksTiesByCreation(t *testing.T) {
	items := lines("steak", "40", 1)

	small := percentOffer("small", "5")
	big := percentOffer("big", "10")
	twin := percentOffer("twin", "10")
	twin.CreatedAt = big.CreatedAt.Add(-time.Minute)
	coupon := percentOffer("coupon", "50")
	coupon.Type = model.OfferTypeCoupon
	coupon.Code = "HALF"

	best, savings := Best([]model.Offer{small, big, coupon, twin}, billing.Subtotal(items), items, now)

	require.NotNil(t, best)
	assert.Equal(t, "twin", best.ID, "earlier created offer wins a tie; coupons are never auto-applied")
	assert.Equal(t, "4.00", savings.StringFixed(2))

	none, zero := Best([]model.Offer{coupon}, billing.Subtotal(items), items, now)
	assert.Nil(t, none)
	assert.True(t, zero.IsZero())
}

func TestValidateCoupon(t *testing.T) {
	items := lines("steak", "40", 1)
	coupon := percentOffer("c1", "20")
	coupon.Type = model.OfferTypeCoupon
	coupon.Code = "SAVE20"

	savings, err := ValidateCoupon(&coupon, "SAVE20", billing.Subtotal(items), items, now)
	require.NoError(t, err)
	assert.Equal(t, "8.00", savings.StringFixed(2))

	coupon.MinSpend = d("100")
	_, err = ValidateCoupon(&coupon, "SAVE20", billing.Subtotal(items), items, now)
	var notApplicable *model.CouponNotApplicableError
	require.True(t, errors.As(err, &notApplicable))
	assert.Equal(t, model.KindValidation, model.KindOf(err))

	_, err = ValidateCoupon(nil, "NOPE", billing.Subtotal(items), items, now)
	require.True(t, errors.As(err, &notApplicable))
	assert.Equal(t, "unknown coupon code", notApplicable.Reason)
}

func TestDescribe(t *testing.T) {
	o := percentOffer("o1", "10")
	o.Title = "Happy hour"
	o.MaxDiscount = decimal.NewNullDecimal(d("3"))
	assert.Equal(t, "Happy hour: 10% off (max 3.00)", Describe(o))

	c := percentOffer("c1", "20")
	c.Type = model.OfferTypeCoupon
	c.Code = "SAVE20"
	assert.Equal(t, "Coupon SAVE20: 20% off", Describe(c))
}

func TestValidate(t *testing.T) {
	ok := percentOffer("o1", "10")
	require.NoError(t, Validate(ok))

	bad := ok
	bad.DiscountValue = d("150")
	assert.Equal(t, model.KindValidation, model.KindOf(Validate(bad)))

	coupon := ok
	coupon.Type = model.OfferTypeCoupon
	assert.Error(t, Validate(coupon))

	free := ok
	free.RewardType = model.RewardFreeItem
	assert.Error(t, Validate(free))
}
