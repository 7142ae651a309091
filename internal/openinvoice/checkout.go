package openinvoice

import (
	"errors"
	"strings"
	"time"

	"gateway-reconciler/internal/domain"
)

var (
	ErrInvalidGender = errors.New("gender must be MALE or FEMALE")
	ErrUnderage      = errors.New("shopper must be at least 18 years old")
	ErrMissingPhone  = errors.New("phone number is required")
)

const minimumAge = 18

// ValidateShopper checks the details collected on checkout before they are
// stored on the order.
func ValidateShopper(s domain.Shopper, now time.Time) error {
	switch strings.ToUpper(s.Gender) {
	case "MALE", "FEMALE":
	default:
		return ErrInvalidGender
	}
	if strings.TrimSpace(s.PhoneNumber) == "" {
		return ErrMissingPhone
	}
	if s.BirthDate.IsZero() || s.BirthDate.AddDate(minimumAge, 0, 0).After(now) {
		return ErrUnderage
	}
	return nil
}

// Validate checks the shopper details open invoice providers require.
func (Builder) Validate(co *domain.Checkout, now time.Time) error {
	return ValidateShopper(co.Order.Shopper, now)
}
