// Package money holds the pure arithmetic behind invoice totals. Every edit
// to line items or tax must pass through here before the invoice is persisted
// so the derived fields never drift from their inputs.
package money

import (
	"errors"

	"github.com/shopspring/decimal"

	"agencydesk/backend/internal/domain"
)

var (
	ErrInvalidLineItem = errors.New("invalid line item")
	ErrInvalidTax      = errors.New("invalid tax amount")
)

// Places is the minor-unit precision for the operating currency.
const Places = 2

// LineAmount computes quantity x unitRate rounded to minor-unit precision.
// Quantity must be at least 1 and unitRate must not be negative.
func LineAmount(quantity int, unitRate decimal.Decimal) (decimal.Decimal, error) {
	if quantity < 1 {
		return decimal.Zero, ErrInvalidLineItem
	}
	if unitRate.IsNegative() {
		return decimal.Zero, ErrInvalidLineItem
	}
	return unitRate.Mul(decimal.NewFromInt(int64(quantity))).Round(Places), nil
}

// Subtotal sums the derived amount of every item. An empty item list yields
// zero, not an error.
func Subtotal(items []domain.LineItem) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, item := range items {
		amount, err := LineAmount(item.Quantity, item.UnitRate)
		if err != nil {
			return decimal.Zero, err
		}
		sum = sum.Add(amount)
	}
	return sum.Round(Places), nil
}

// Total adds tax on top of the subtotal. Tax must not be negative.
func Total(subtotal, taxAmount decimal.Decimal) (decimal.Decimal, error) {
	if taxAmount.IsNegative() {
		return decimal.Zero, ErrInvalidTax
	}
	return subtotal.Add(taxAmount).Round(Places), nil
}

// Normalize recomputes every derived amount on the items and returns the
// items together with the derived subtotal and total. This is the single
// entry point invoice writes go through.
func Normalize(items []domain.LineItem, taxAmount decimal.Decimal) ([]domain.LineItem, decimal.Decimal, decimal.Decimal, error) {
	normalized := make([]domain.LineItem, 0, len(items))
	for _, item := range items {
		amount, err := LineAmount(item.Quantity, item.UnitRate)
		if err != nil {
			return nil, decimal.Zero, decimal.Zero, err
		}
		item.Amount = amount
		normalized = append(normalized, item)
	}

	subtotal, err := Subtotal(normalized)
	if err != nil {
		return nil, decimal.Zero, decimal.Zero, err
	}
	total, err := Total(subtotal, taxAmount)
	if err != nil {
		return nil, decimal.Zero, decimal.Zero, err
	}
	return normalized, subtotal, total, nil
}
