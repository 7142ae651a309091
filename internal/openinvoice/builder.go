package openinvoice

import (
	"fmt"

	"gateway-reconciler/internal/domain"
	"gateway-reconciler/internal/payment"
)

const (
	TypeName = "openinvoice"

	Klarna   = "klarna"
	AfterPay = "afterpay"
)

// PaymentType is the registry entry for open invoice payments.
func PaymentType() payment.Type {
	return payment.Type{
		Name:  TypeName,
		Label: "OpenInvoice",
		SubTypes: map[string]string{
			Klarna:   "Klarna",
			AfterPay: "AfterPay",
		},
		Builder: Builder{},
	}
}

// Builder adds addresses, shopper details and the per-line tax breakdown.
type Builder struct{}

func (Builder) Build(req *payment.Request, co *domain.Checkout) error {
	order := co.Order

	// Only honoured on the skip-details endpoint; used for DE and AT.
	req.Set(Klarna+".acceptPrivacyPolicy", true)

	// Klarna rejects payments whose delivery address differs from billing,
	// so both are sent from the billing profile.
	addAddress(req, "billingAddress", order.Billing)
	addAddress(req, "deliveryAddress", order.Billing)

	if err := AddLineItems(req, order.LineItems); err != nil {
		return err
	}
	addShopper(req, order)

	req.Set("openinvoicedata.refundDescription",
		fmt.Sprintf("Refund to %s %s", order.Billing.FirstName, order.Billing.LastName))
	return nil
}

// AddLineItems writes openinvoicedata.lineN.* for every item, numbering from 1.
func AddLineItems(req *payment.Request, items []domain.LineItem) error {
	for i, item := range items {
		line, err := Decompose(item)
		if err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}

		prefix := fmt.Sprintf("openinvoicedata.line%d.", i+1)
		req.Set(prefix+"itemAmount", line.ItemAmount)
		req.Set(prefix+"description", line.Description)
		req.Set(prefix+"currencyCode", line.CurrencyCode)
		req.Set(prefix+"numberOfItems", line.NumberOfItems)
		req.Set(prefix+"vatCategory", line.VatCategory)
		req.Set(prefix+"itemVatAmount", line.ItemVatAmount)
		req.Set(prefix+"itemVatPercentage", line.ItemVatPercentage)
	}
	req.Set("openinvoicedata.numberOfLines", len(items))
	return nil
}

func addAddress(req *payment.Request, prefix string, a domain.Address) {
	req.Set(prefix+".street", a.Street)
	req.Set(prefix+".houseNumberOrName", a.HouseNumber)
	req.Set(prefix+".city", a.City)
	req.Set(prefix+".postalCode", a.PostalCode)
	req.Set(prefix+".stateOrProvince", a.Region)
	req.Set(prefix+".country", a.Country)
}

func addShopper(req *payment.Request, order *domain.Order) {
	s := order.Shopper
	req.Set("shopper.firstName", order.Billing.FirstName)
	req.Set("shopper.lastName", order.Billing.LastName)
	if s.Gender != "" {
		req.Set("shopper.gender", s.Gender)
	}
	if s.PhoneNumber != "" {
		req.Set("shopper.telephoneNumber", s.PhoneNumber)
	}
	if !s.BirthDate.IsZero() {
		req.Set("shopper.dateOfBirthDayOfMonth", s.BirthDate.Day())
		req.Set("shopper.dateOfBirthMonth", int(s.BirthDate.Month()))
		req.Set("shopper.dateOfBirthYear", s.BirthDate.Year())
	}
	if s.SocialNumber != "" {
		req.Set("shopper.socialSecurityNumber", s.SocialNumber)
	}
}
