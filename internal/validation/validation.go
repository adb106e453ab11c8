// Package validation содержит функции валидации входных данных.
package validation

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	minCouponLen    = 3
	maxCouponLen    = 32
	maxReferenceLen = 128
)

// NormalizeCouponCode приводит код купона к верхнему регистру и проверяет допустимые символы.
func NormalizeCouponCode(code string) (string, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) < minCouponLen || len(code) > maxCouponLen {
		return "", false
	}

	for _, ch := range code {
		switch {
		case ch >= 'A' && ch <= 'Z':
		case ch >= '0' && ch <= '9':
		case ch == '-' || ch == '_':
		default:
			return "", false
		}
	}

	return code, true
}

// IsValidReference проверяет ссылку на платёж или ключ идемпотентности:
// непустая строка из печатных ASCII-символов без пробелов.
func IsValidReference(ref string) bool {
	if ref == "" || len(ref) > maxReferenceLen {
		return false
	}
	for i := 0; i < len(ref); i++ {
		if ref[i] <= ' ' || ref[i] > '~' {
			return false
		}
	}
	return true
}

// IsValidAmount проверяет денежную сумму: положительная, не более двух знаков после запятой.
func IsValidAmount(amount decimal.Decimal) bool {
	return amount.Sign() > 0 && amount.Equal(amount.Round(2))
}
