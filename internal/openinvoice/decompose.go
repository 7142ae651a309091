package openinvoice

import (
	"errors"
	"fmt"

	"gateway-reconciler/internal/domain"

	"github.com/shopspring/decimal"
)

var (
	// ErrTaxDivideByZero is returned when a line's net amount is zero, i.e.
	// the whole line total is tax, and no VAT percentage can be derived.
	ErrTaxDivideByZero = errors.New("tax decomposition: net amount is zero")
	ErrInvalidQuantity = errors.New("tax decomposition: quantity must be positive")
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Line is one "openinvoicedata.lineN" group. Amounts are in minor units;
// ItemVatPercentage is a percentage times 100 (7% is 700).
type Line struct {
	ItemAmount        int64
	ItemVatAmount     int64
	ItemVatPercentage int64
	Description       string
	CurrencyCode      string
	NumberOfItems     int64
	VatCategory       string
}

// Decompose splits a line item into its net unit price, VAT amount and VAT
// rate. The gateway expects the item price with VAT excluded.
func Decompose(item domain.LineItem) (Line, error) {
	if item.Quantity <= 0 {
		return Line{}, fmt.Errorf("%w: %q has quantity %d", ErrInvalidQuantity, item.Label, item.Quantity)
	}
	if item.Total == item.VAT {
		return Line{}, fmt.Errorf("%w: %q total %d equals vat %d", ErrTaxDivideByZero, item.Label, item.Total, item.VAT)
	}

	gross := decimal.NewFromInt(item.Total)
	vat := decimal.NewFromInt(item.VAT)

	// Round is half away from zero, which is half-up for the positive
	// amounts and rates seen here.
	percentage := gross.Div(gross.Sub(vat)).Sub(one).Mul(hundred).Round(0)
	unitVat := vat.Div(decimal.NewFromInt(item.Quantity)).Round(0)

	return Line{
		ItemAmount:        item.UnitPrice - unitVat.IntPart(),
		ItemVatAmount:     item.VAT,
		ItemVatPercentage: percentage.IntPart() * 100,
		Description:       fmt.Sprintf("%s [%s]", item.Label, item.Type),
		CurrencyCode:      item.Currency,
		NumberOfItems:     item.Quantity,
		VatCategory:       "None",
	}, nil
}
