package handover

import (
	"context"
	"time"
)

// Order is the vehicle and customer data for a delivery.
type Order struct {
	OrderNumber   string    `json:"orderNumber"`
	VIN           string    `json:"vin"`
	VehicleModel  string    `json:"vehicleModel"`
	VehicleColor  string    `json:"vehicleColor"`
	CustomerName  string    `json:"customerName"`
	CustomerEmail string    `json:"customerEmail"`
	SalesRepEmail string    `json:"salesRepEmail"`
	DeliveryDate  time.Time `json:"deliveryDate"`

	// Placeholder is true when the lookup failed and fixed data was used.
	Placeholder bool `json:"placeholder,omitempty"`
}

// OrderLookup retrieves order details by order number.
type OrderLookup interface {
	LookupOrder(ctx context.Context, orderNumber string) (*Order, error)
}

// PlaceholderOrder is used when the order lookup fails, so that an
// inspection can always be started.
func PlaceholderOrder(orderNumber string, now time.Time) *Order {
	y, m, d := now.Date()
	return &Order{
		OrderNumber:   orderNumber,
		VIN:           "7SAYGDEF*NF123456",
		VehicleModel:  "Model Y Long Range",
		VehicleColor:  "Pearl White Multi-Coat",
		CustomerName:  "Tesla Customer",
		CustomerEmail: "customer@example.com",
		SalesRepEmail: "sales@tesla.com",
		DeliveryDate:  time.Date(y, m, d, 0, 0, 0, 0, now.Location()),
		Placeholder:   true,
	}
}

// OrderConfig holds configuration for the order lookup API.
type OrderConfig struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
	CacheTTL     time.Duration
}
