package model

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Round округляет сумму до копеек. Применяется только на границе отображения и фиксации.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Cents переводит сумму в копейки с округлением.
func Cents(d decimal.Decimal) int64 {
	return d.Round(2).Mul(hundred).IntPart()
}

// FromCents переводит копейки в сумму.
func FromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

// Percent возвращает долю value от amount, где value задан в процентах.
func Percent(amount, value decimal.Decimal) decimal.Decimal {
	return amount.Mul(value).Div(hundred)
}
