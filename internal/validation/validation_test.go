package validation

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNormalizeCouponCode(t *testing.T) {
	tests := []struct {
		name  string
		code  string
		want  string
		valid bool
	}{
		{
			name:  "lower case is upper-cased",
			code:  "save10",
			want:  "SAVE10",
			valid: true,
		},
		{
			name:  "surrounding spaces trimmed",
			code:  "  SUMMER-24 ",
			want:  "SUMMER-24",
			valid: true,
		},
		{
			name:  "too short",
			code:  "AB",
			valid: false,
		},
		{
			name:  "too long",
			code:  strings.Repeat("A", 33),
			valid: false,
		},
		{
			name:  "inner space",
			code:  "SAVE 10",
			valid: false,
		},
		{
			name:  "non ascii",
			code:  "СКИДКА",
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeCouponCode(tt.code)
			if ok != tt.valid {
				t.Fatalf("NormalizeCouponCode(%q) ok = %v, want %v", tt.code, ok, tt.valid)
			}
			if got != tt.want {
				t.Fatalf("NormalizeCouponCode(%q) = %q, want %q", tt.code, got, tt.want)
			}
		})
	}
}

func TestIsValidReference(t *testing.T) {
	tests := []struct {
		ref   string
		valid bool
	}{
		{"pi_3Nf0aB2eZvKYlo2C", true},
		{"cash-0042", true},
		{"", false},
		{"with space", false},
		{"tab\there", false},
		{strings.Repeat("x", 129), false},
	}

	for _, tt := range tests {
		if got := IsValidReference(tt.ref); got != tt.valid {
			t.Errorf("IsValidReference(%q) = %v, want %v", tt.ref, got, tt.valid)
		}
	}
}

func TestIsValidAmount(t *testing.T) {
	tests := []struct {
		amount string
		valid  bool
	}{
		{"10", true},
		{"0.01", true},
		{"12.50", true},
		{"12.500", true},
		{"0", false},
		{"-5", false},
		{"1.005", false},
	}

	for _, tt := range tests {
		if got := IsValidAmount(decimal.RequireFromString(tt.amount)); got != tt.valid {
			t.Errorf("IsValidAmount(%s) = %v, want %v", tt.amount, got, tt.valid)
		}
	}
}
