package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/tableside/internal/model"
)

// Breakdown содержит расчёт счёта до применения скидки. Значения не округлены.
type Breakdown struct {
	MenuSubtotal             decimal.Decimal
	ServiceCharge            decimal.Decimal
	Tax                      decimal.Decimal
	GrandTotalBeforeDiscount decimal.Decimal
}

// Calculate рассчитывает счёт по неотменённым позициям.
//
// Порядок фиксирован: подытог → сервисный сбор от подытога → налог от (подытог + сервисный сбор).
// Если сбор «сверху», он добавляется к базе налога; если он «включён», он уже содержится в подытоге.
// Включённые ставки выделяются обратным расчётом amount × r / (1 + r) и не увеличивают итог.
// При cfg == nil применяется DefaultBillingConfig.
func Calculate(items []model.OrderItem, cfg *model.BillingConfig) Breakdown {
	conf := model.DefaultBillingConfig()
	if cfg != nil {
		conf = *cfg
	}

	subtotal := Subtotal(items)

	serviceCharge := rateAmount(subtotal, conf.ServiceChargeRate, conf.ServiceChargeInclusive)

	taxBase := subtotal
	if !conf.ServiceChargeInclusive {
		taxBase = taxBase.Add(serviceCharge)
	}
	tax := rateAmount(taxBase, conf.SalesTaxRate, conf.SalesTaxInclusive)

	total := subtotal
	if !conf.ServiceChargeInclusive {
		total = total.Add(serviceCharge)
	}
	if !conf.SalesTaxInclusive {
		total = total.Add(tax)
	}

	return Breakdown{
		MenuSubtotal:             subtotal,
		ServiceCharge:            serviceCharge,
		Tax:                      tax,
		GrandTotalBeforeDiscount: total,
	}
}

func rateAmount(base, ratePercent decimal.Decimal, inclusive bool) decimal.Decimal {
	if ratePercent.Sign() <= 0 || base.Sign() <= 0 {
		return decimal.Zero
	}
	rate := ratePercent.Div(decimal.NewFromInt(100))
	if inclusive {
		return base.Mul(rate).Div(decimal.NewFromInt(1).Add(rate))
	}
	return base.Mul(rate)
}

// DiscountSource указывает, откуда взята скидка.
type DiscountSource string

const (
	DiscountNone   DiscountSource = "none"
	DiscountOffer  DiscountSource = "offer"
	DiscountCoupon DiscountSource = "coupon"
)

// Quote содержит предварительный расчёт счёта со скидкой.
type Quote struct {
	Breakdown
	Discount    decimal.Decimal
	Source      DiscountSource
	OfferID     string
	Description string
	GrandTotal  decimal.Decimal
}

// ApplyDiscount вычитает скидку из итога. Скидка не превышает подытог меню, итог не уходит ниже нуля.
func ApplyDiscount(b Breakdown, discount decimal.Decimal, source DiscountSource, offerID, description string) Quote {
	if discount.Sign() < 0 {
		discount = decimal.Zero
	}
	if discount.GreaterThan(b.MenuSubtotal) {
		discount = b.MenuSubtotal
	}
	if discount.IsZero() {
		source, offerID, description = DiscountNone, "", ""
	}

	total := b.GrandTotalBeforeDiscount.Sub(discount)
	if total.Sign() < 0 {
		total = decimal.Zero
	}

	return Quote{
		Breakdown:   b,
		Discount:    discount,
		Source:      source,
		OfferID:     offerID,
		Description: description,
		GrandTotal:  total,
	}
}

// Snapshot округляет расчёт до копеек и замораживает его.
func (q Quote) Snapshot(settledAt time.Time) model.BillSnapshot {
	return model.BillSnapshot{
		Subtotal:            model.Round(q.MenuSubtotal),
		ServiceCharge:       model.Round(q.ServiceCharge),
		Tax:                 model.Round(q.Tax),
		Discount:            model.Round(q.Discount),
		GrandTotal:          model.Round(q.GrandTotal),
		DiscountDescription: q.Description,
		OfferID:             q.OfferID,
		SettledAt:           settledAt,
	}
}
