package domain

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderCompleted  OrderStatus = "completed"
	OrderCanceled   OrderStatus = "canceled"
)

type Address struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Street      string `json:"street"`
	HouseNumber string `json:"house_number"`
	City        string `json:"city"`
	PostalCode  string `json:"postal_code"`
	Region      string `json:"region"`
	Country     string `json:"country"`
}

// Shopper holds the personal details collected on checkout for payment
// types that need them (open invoice).
type Shopper struct {
	Gender       string    `json:"gender"`
	PhoneNumber  string    `json:"phone_number"`
	BirthDate    time.Time `json:"birth_date"`
	SocialNumber string    `json:"social_number"`
}

type LineItem struct {
	Label     string `json:"label"`
	Type      string `json:"type"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int64  `json:"quantity"`
	Total     int64  `json:"total"`
	VAT       int64  `json:"vat"`
	Currency  string `json:"currency"`
}

type Order struct {
	ID                uuid.UUID
	Number            string
	MerchantReference string
	UserID            uuid.UUID
	Email             string
	Status            OrderStatus
	Total             int64
	Currency          string
	Billing           Address
	Shopper           Shopper
	LineItems         []LineItem
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// PaymentMethod is the configured payment method instance an order is paid with.
type PaymentMethod struct {
	InstanceID      string
	Type            string
	SubType         string
	MerchantAccount string
	SkinCode        string
	ShopperLocale   string
}

// Checkout pairs an order with the payment method used to pay for it.
type Checkout struct {
	Order  *Order
	Method PaymentMethod
}
