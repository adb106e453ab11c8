// Package offer реализует проверку применимости акций и выбор лучшей скидки.
package offer

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/tableside/internal/model"
)

// Result описывает результат проверки акции для текущего счёта.
type Result struct {
	Savings decimal.Decimal
	Reason  string
}

// Eligible сообщает, даёт ли акция положительную экономию.
func (r Result) Eligible() bool {
	return r.Savings.Sign() > 0
}

// Evaluate проверяет акцию и рассчитывает экономию по неотменённым позициям счёта.
// Экономия ограничена остатком бюджета акции, поэтому фиксация никогда не превышает globalBudget.
func Evaluate(o model.Offer, subtotal decimal.Decimal, items []model.OrderItem, now time.Time) Result {
	if !o.IsActive {
		return Result{Reason: "offer is not active"}
	}
	if o.ValidFrom != nil && now.Before(*o.ValidFrom) {
		return Result{Reason: "offer is not yet valid"}
	}
	if o.ValidUntil != nil && now.After(*o.ValidUntil) {
		return Result{Reason: "offer has expired"}
	}
	if o.GlobalBudget.Valid && o.TotalDiscountGiven.GreaterThanOrEqual(o.GlobalBudget.Decimal) {
		return Result{Reason: "offer budget is exhausted"}
	}
	if o.MaxUsage > 0 && o.UsageCount >= o.MaxUsage {
		return Result{Reason: "offer usage limit has been reached"}
	}
	if subtotal.LessThan(o.MinSpend) {
		return Result{Reason: fmt.Sprintf("minimum spend of %s is not met", o.MinSpend.StringFixed(2))}
	}

	eligible := eligibleAmount(o, items)
	if eligible.Sign() <= 0 {
		return Result{Reason: "no items in the order match the offer"}
	}

	var savings decimal.Decimal
	switch o.RewardType {
	case model.RewardFreeItem:
		price, reason := freeItemPrice(o, items)
		if reason != "" {
			return Result{Reason: reason}
		}
		savings = price
	default:
		savings = discountAmount(o, eligible)
	}

	if savings.GreaterThan(subtotal) {
		savings = subtotal
	}
	if o.GlobalBudget.Valid {
		remaining := o.GlobalBudget.Decimal.Sub(o.TotalDiscountGiven)
		if savings.GreaterThan(remaining) {
			savings = remaining
		}
	}
	if savings.Sign() <= 0 {
		return Result{Savings: decimal.Zero, Reason: "offer gives no savings for this order"}
	}

	return Result{Savings: savings}
}

// EligibleSavings возвращает экономию по акции или ноль, если акция неприменима.
func EligibleSavings(o model.Offer, subtotal decimal.Decimal, items []model.OrderItem, now time.Time) decimal.Decimal {
	return Evaluate(o, subtotal, items, now).Savings
}

func eligibleAmount(o model.Offer, items []model.OrderItem) decimal.Decimal {
	if len(o.ApplicableItemIDs) == 0 {
		total := decimal.Zero
		for _, item := range items {
			if item.Billable() {
				total = total.Add(item.LineTotal())
			}
		}
		return total
	}

	applicable := make(map[string]bool, len(o.ApplicableItemIDs))
	for _, id := range o.ApplicableItemIDs {
		applicable[id] = true
	}

	total := decimal.Zero
	for _, item := range items {
		if item.Billable() && applicable[item.MenuItemID] {
			total = total.Add(item.LineTotal())
		}
	}
	return total
}

func discountAmount(o model.Offer, eligible decimal.Decimal) decimal.Decimal {
	switch o.DiscountKind {
	case model.DiscountFixed:
		return decimal.Min(eligible, o.DiscountValue)
	case model.DiscountPercentage:
		amount := model.Percent(eligible, o.DiscountValue)
		if o.MaxDiscount.Valid && amount.GreaterThan(o.MaxDiscount.Decimal) {
			amount = o.MaxDiscount.Decimal
		}
		return amount
	default:
		return decimal.Zero
	}
}

// Бесплатное блюдо должно быть заказано. Если триггер совпадает с бесплатным блюдом,
// нужно минимум две единицы: одна оплачивается, вторая бесплатна.
func freeItemPrice(o model.Offer, items []model.OrderItem) (decimal.Decimal, string) {
	freeQty, triggerQty := 0, 0
	price := decimal.Zero

	for _, item := range items {
		if !item.Billable() {
			continue
		}
		if item.MenuItemID == o.FreeItemID {
			freeQty += item.Quantity
			if item.UnitPrice.GreaterThan(price) {
				price = item.UnitPrice
			}
		}
		if o.TriggerItemID != "" && item.MenuItemID == o.TriggerItemID {
			triggerQty += item.Quantity
		}
	}

	if freeQty == 0 {
		return decimal.Zero, "free item is not in the order"
	}
	if o.TriggerItemID != "" {
		needed := 1
		if o.TriggerItemID == o.FreeItemID {
			needed = 2
		}
		if triggerQty < needed {
			return decimal.Zero, "trigger item is not in the order"
		}
	}

	return price, ""
}

// Best возвращает публичную акцию с наибольшей экономией.
// При равной экономии выигрывает акция, созданная раньше, затем с меньшим идентификатором.
func Best(offers []model.Offer, subtotal decimal.Decimal, items []model.OrderItem, now time.Time) (*model.Offer, decimal.Decimal) {
	candidates := make([]model.Offer, 0, len(offers))
	for _, o := range offers {
		if o.Type == model.OfferTypeOffer {
			candidates = append(candidates, o)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].ID < candidates[j].ID
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	var best *model.Offer
	bestSavings := decimal.Zero
	for i := range candidates {
		savings := EligibleSavings(candidates[i], subtotal, items, now)
		if savings.GreaterThan(bestSavings) {
			best = &candidates[i]
			bestSavings = savings
		}
	}

	return best, bestSavings
}

// ValidateCoupon проверяет купон и возвращает экономию.
// Неположительная экономия возвращается ошибкой CouponNotApplicableError, а не тихим нулём.
func ValidateCoupon(o *model.Offer, code string, subtotal decimal.Decimal, items []model.OrderItem, now time.Time) (decimal.Decimal, error) {
	if o == nil || o.Type != model.OfferTypeCoupon {
		return decimal.Zero, &model.CouponNotApplicableError{Code: code, Reason: "unknown coupon code"}
	}

	res := Evaluate(*o, subtotal, items, now)
	if !res.Eligible() {
		return decimal.Zero, &model.CouponNotApplicableError{Code: code, Reason: res.Reason}
	}

	return res.Savings, nil
}

// Describe возвращает человекочитаемое описание скидки для чека.
func Describe(o model.Offer) string {
	prefix := o.Title
	if o.Type == model.OfferTypeCoupon {
		prefix = "Coupon " + o.Code
	}

	var reward string
	switch {
	case o.RewardType == model.RewardFreeItem:
		reward = "free item"
	case o.DiscountKind == model.DiscountPercentage && o.MaxDiscount.Valid:
		reward = fmt.Sprintf("%s%% off (max %s)", o.DiscountValue.String(), o.MaxDiscount.Decimal.StringFixed(2))
	case o.DiscountKind == model.DiscountPercentage:
		reward = fmt.Sprintf("%s%% off", o.DiscountValue.String())
	default:
		reward = fmt.Sprintf("%s off", o.DiscountValue.StringFixed(2))
	}

	if prefix == "" {
		return reward
	}
	return prefix + ": " + reward
}

// Validate проверяет определение акции перед сохранением.
func Validate(o model.Offer) error {
	const op = "offer.Validate"

	if o.RestaurantID == "" {
		return model.Errorf(model.KindValidation, op, "restaurant id is required")
	}
	switch o.Type {
	case model.OfferTypeOffer:
	case model.OfferTypeCoupon:
		if o.Code == "" {
			return model.Errorf(model.KindValidation, op, "coupon requires a code")
		}
	default:
		return model.Errorf(model.KindValidation, op, "unknown offer type %q", o.Type)
	}

	switch o.RewardType {
	case model.RewardDiscount:
		if o.DiscountValue.Sign() <= 0 {
			return model.Errorf(model.KindValidation, op, "discount value must be positive")
		}
		switch o.DiscountKind {
		case model.DiscountFixed:
		case model.DiscountPercentage:
			if o.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
				return model.Errorf(model.KindValidation, op, "percentage cannot exceed 100")
			}
		default:
			return model.Errorf(model.KindValidation, op, "unknown discount kind %q", o.DiscountKind)
		}
	case model.RewardFreeItem:
		if o.FreeItemID == "" {
			return model.Errorf(model.KindValidation, op, "free item offer requires a free item id")
		}
	default:
		return model.Errorf(model.KindValidation, op, "unknown reward type %q", o.RewardType)
	}

	if o.MinSpend.Sign() < 0 || o.MaxUsage < 0 {
		return model.Errorf(model.KindValidation, op, "limits cannot be negative")
	}
	if o.MaxDiscount.Valid && o.MaxDiscount.Decimal.Sign() <= 0 {
		return model.Errorf(model.KindValidation, op, "max discount must be positive")
	}
	if o.GlobalBudget.Valid && o.GlobalBudget.Decimal.Sign() <= 0 {
		return model.Errorf(model.KindValidation, op, "global budget must be positive")
	}
	if o.ValidFrom != nil && o.ValidUntil != nil && o.ValidUntil.Before(*o.ValidFrom) {
		return model.Errorf(model.KindValidation, op, "validity window is inverted")
	}

	return nil
}
