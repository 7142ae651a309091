package openinvoice_test

import (
	"testing"
	"time"

	"gateway-reconciler/internal/domain"
	"gateway-reconciler/internal/openinvoice"
	"gateway-reconciler/internal/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCheckout() *domain.Checkout {
	return &domain.Checkout{
		Order: &domain.Order{
			MerchantReference: "ORD-100",
			Total:             1565,
			Currency:          "EUR",
			Billing: domain.Address{
				FirstName:   "Anna",
				LastName:    "Berg",
				Street:      "Hauptstrasse",
				HouseNumber: "5",
				City:        "Berlin",
				PostalCode:  "10115",
				Country:     "DE",
			},
			Shopper: domain.Shopper{
				Gender:      "FEMALE",
				PhoneNumber: "+4930123456",
				BirthDate:   time.Date(1990, 4, 12, 0, 0, 0, 0, time.UTC),
			},
			LineItems: []domain.LineItem{
				{Label: "Mug", Type: "product", UnitPrice: 1070, Quantity: 1, Total: 1070, VAT: 70, Currency: "EUR"},
				{Label: "Shipping", Type: "shipping", UnitPrice: 495, Quantity: 1, Total: 495, VAT: 0, Currency: "EUR"},
			},
		},
		Method: domain.PaymentMethod{Type: openinvoice.TypeName, SubType: openinvoice.Klarna},
	}
}

func TestBuilder_Build(t *testing.T) {
	req := payment.NewRequest()
	require.NoError(t, openinvoice.Builder{}.Build(req, testCheckout()))

	f := req.Fields()
	assert.Equal(t, "2", f["openinvoicedata.numberOfLines"])
	assert.Equal(t, "1000", f["openinvoicedata.line1.itemAmount"])
	assert.Equal(t, "70", f["openinvoicedata.line1.itemVatAmount"])
	assert.Equal(t, "700", f["openinvoicedata.line1.itemVatPercentage"])
	assert.Equal(t, "Mug [product]", f["openinvoicedata.line1.description"])
	assert.Equal(t, "None", f["openinvoicedata.line1.vatCategory"])
	assert.Equal(t, "495", f["openinvoicedata.line2.itemAmount"])
	assert.Equal(t, "0", f["openinvoicedata.line2.itemVatPercentage"])

	assert.Equal(t, "true", f["klarna.acceptPrivacyPolicy"])
	assert.Equal(t, "Berlin", f["billingAddress.city"])
	assert.Equal(t, f["billingAddress.street"], f["deliveryAddress.street"])
	assert.Equal(t, "Refund to Anna Berg", f["openinvoicedata.refundDescription"])
	assert.Equal(t, "FEMALE", f["shopper.gender"])
	assert.Equal(t, "12", f["shopper.dateOfBirthDayOfMonth"])
	assert.Equal(t, "4", f["shopper.dateOfBirthMonth"])
	assert.Equal(t, "1990", f["shopper.dateOfBirthYear"])
}

func TestBuilder_PropagatesDecompositionError(t *testing.T) {
	co := testCheckout()
	co.Order.LineItems = append(co.Order.LineItems, domain.LineItem{Label: "Levy", UnitPrice: 10, Quantity: 1, Total: 10, VAT: 10})

	err := openinvoice.Builder{}.Build(payment.NewRequest(), co)
	assert.ErrorIs(t, err, openinvoice.ErrTaxDivideByZero)
	assert.Contains(t, err.Error(), "line 3")
}

func TestPaymentType(t *testing.T) {
	pt := openinvoice.PaymentType()
	assert.Equal(t, "openinvoice", pt.Name)
	assert.Equal(t, "Klarna", pt.SubTypes[openinvoice.Klarna])
	assert.Equal(t, "AfterPay", pt.SubTypes[openinvoice.AfterPay])
}

func TestValidateShopper(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	adult := domain.Shopper{Gender: "male", PhoneNumber: "123", BirthDate: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)}
	assert.NoError(t, openinvoice.ValidateShopper(adult, now))

	minor := adult
	minor.BirthDate = time.Date(2010, 6, 1, 0, 0, 0, 0, time.UTC)
	assert.ErrorIs(t, openinvoice.ValidateShopper(minor, now), openinvoice.ErrUnderage)

	noGender := adult
	noGender.Gender = "X"
	assert.ErrorIs(t, openinvoice.ValidateShopper(noGender, now), openinvoice.ErrInvalidGender)

	noPhone := adult
	noPhone.PhoneNumber = " "
	assert.ErrorIs(t, openinvoice.ValidateShopper(noPhone, now), openinvoice.ErrMissingPhone)
}
