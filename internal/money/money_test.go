package money

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"agencydesk/backend/internal/domain"
)

func dec(value string) decimal.Decimal {
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		panic(err)
	}
	return parsed
}

func TestLineAmountRoundsToMinorUnits(t *testing.T) {
	amount, err := LineAmount(3, dec("19.995"))
	if err != nil {
		t.Fatalf("line amount failed: %v", err)
	}
	if !amount.Equal(dec("59.99")) {
		t.Fatalf("expected 59.99, got %s", amount)
	}
}

func TestLineAmountRejectsBadInputs(t *testing.T) {
	if _, err := LineAmount(0, dec("10")); !errors.Is(err, ErrInvalidLineItem) {
		t.Fatalf("expected ErrInvalidLineItem for zero quantity, got %v", err)
	}
	if _, err := LineAmount(-2, dec("10")); !errors.Is(err, ErrInvalidLineItem) {
		t.Fatalf("expected ErrInvalidLineItem for negative quantity, got %v", err)
	}
	if _, err := LineAmount(1, dec("-0.01")); !errors.Is(err, ErrInvalidLineItem) {
		t.Fatalf("expected ErrInvalidLineItem for negative rate, got %v", err)
	}
}

func TestSubtotalMatchesLineAmounts(t *testing.T) {
	items := []domain.LineItem{
		{Description: "Design sprint", Quantity: 2, UnitRate: dec("500")},
		{Description: "Hosting setup", Quantity: 1, UnitRate: dec("1500")},
		{Description: "Stock photos", Quantity: 3, UnitRate: dec("12.33")},
	}

	subtotal, err := Subtotal(items)
	if err != nil {
		t.Fatalf("subtotal failed: %v", err)
	}

	expected := decimal.Zero
	for _, item := range items {
		amount, err := LineAmount(item.Quantity, item.UnitRate)
		if err != nil {
			t.Fatalf("line amount failed: %v", err)
		}
		expected = expected.Add(amount)
	}
	if !subtotal.Equal(expected) {
		t.Fatalf("subtotal %s does not match sum of line amounts %s", subtotal, expected)
	}
}

func TestSubtotalEmptyIsZero(t *testing.T) {
	subtotal, err := Subtotal(nil)
	if err != nil {
		t.Fatalf("subtotal failed: %v", err)
	}
	if !subtotal.IsZero() {
		t.Fatalf("expected zero subtotal, got %s", subtotal)
	}
}

func TestTotalAddsTax(t *testing.T) {
	total, err := Total(dec("2500"), dec("200"))
	if err != nil {
		t.Fatalf("total failed: %v", err)
	}
	if !total.Equal(dec("2700")) {
		t.Fatalf("expected 2700, got %s", total)
	}
}

func TestTotalRejectsNegativeTax(t *testing.T) {
	if _, err := Total(dec("100"), dec("-1")); !errors.Is(err, ErrInvalidTax) {
		t.Fatalf("expected ErrInvalidTax, got %v", err)
	}
}

func TestNormalizeScenario(t *testing.T) {
	items := []domain.LineItem{
		{Description: "Brand refresh", Quantity: 2, UnitRate: dec("500")},
		{Description: "Site build", Quantity: 1, UnitRate: dec("1500")},
	}

	normalized, subtotal, total, err := Normalize(items, dec("200"))
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if !subtotal.Equal(dec("2500")) {
		t.Fatalf("expected subtotal 2500, got %s", subtotal)
	}
	if !total.Equal(dec("2700")) {
		t.Fatalf("expected total 2700, got %s", total)
	}
	if !normalized[0].Amount.Equal(dec("1000")) || !normalized[1].Amount.Equal(dec("1500")) {
		t.Fatalf("line amounts not recomputed: %s / %s", normalized[0].Amount, normalized[1].Amount)
	}
}

func TestNormalizeOverwritesTamperedAmounts(t *testing.T) {
	items := []domain.LineItem{
		{Description: "Retainer", Quantity: 1, UnitRate: dec("300"), Amount: dec("9999")},
	}
	normalized, subtotal, _, err := Normalize(items, decimal.Zero)
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if !normalized[0].Amount.Equal(dec("300")) {
		t.Fatalf("expected amount recomputed to 300, got %s", normalized[0].Amount)
	}
	if !subtotal.Equal(dec("300")) {
		t.Fatalf("expected subtotal 300, got %s", subtotal)
	}
}
