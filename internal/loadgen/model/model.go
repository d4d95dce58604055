// Package model holds the entities written by the load generator.
// Everything here is created in memory by the generator, handed to a sink once and then discarded.
package model

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Shape is how a sink lays out a customer aggregate.
type Shape int

const (
	// ShapeNormalized writes one row per entity across several tables, linked by foreign keys.
	ShapeNormalized Shape = iota
	// ShapeDocument writes each customer as one self-contained document with everything embedded.
	ShapeDocument
)

func (s Shape) String() string {
	switch s {
	case ShapeNormalized:
		return "normalized"
	case ShapeDocument:
		return "document"
	}
	return "unknown"
}

func (s *Shape) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "normalized":
		*s = ShapeNormalized
	case "document":
		*s = ShapeDocument
	default:
		return errors.Errorf("unknown shape %q", string(text))
	}
	return nil
}

// Product is reference data. The pool is seeded once and is read-only afterwards.
type Product struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Sku         string    `json:"sku"`
	Description string    `json:"description"`
	Price       Money     `json:"price"`
	Category    string    `json:"category"`
	Weight      float64   `json:"weight"`
	InStock     bool      `json:"inStock"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Snapshot copies the fields of the product needed to read an item back without a lookup.
func (p *Product) Snapshot() *ProductSnapshot {
	return &ProductSnapshot{Name: p.Name, Sku: p.Sku, Category: p.Category}
}

type ProductSnapshot struct {
	Name     string `json:"name"`
	Sku      string `json:"sku"`
	Category string `json:"category"`
}

// Customer is the root of an aggregate. It owns exactly one profile and at least one order.
type Customer struct {
	// ID is a random UUID; normalized sinks store it as an external id next to their own key.
	ID            string    `json:"id"`
	FirstName     string    `json:"firstName"`
	LastName      string    `json:"lastName"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	DateOfBirth   time.Time `json:"dateOfBirth"`
	RegisteredAt  time.Time `json:"registeredAt"`
	Status        string    `json:"status"`
	LoyaltyPoints int       `json:"loyaltyPoints"`
	Country       string    `json:"country"`
	Profile       Profile   `json:"profile"`
	Orders        []Order   `json:"orders"`
}

type Profile struct {
	AvatarUrl            string `json:"avatarUrl"`
	Bio                  string `json:"bio"`
	PreferredLanguage    string `json:"preferredLanguage"`
	NotificationsEnabled bool   `json:"notificationsEnabled"`
	Address              string `json:"address"`
	City                 string `json:"city"`
	ZipCode              string `json:"zipCode"`
}

type Order struct {
	OrderNumber      string      `json:"orderNumber"`
	OrderDate        time.Time   `json:"orderDate"`
	Status           string      `json:"status"`
	TotalAmount      Money       `json:"totalAmount"`
	Currency         string      `json:"currency"`
	ShippingAddress  string      `json:"shippingAddress"`
	Notes            *string     `json:"notes,omitempty"`
	ExpectedDelivery time.Time   `json:"expectedDelivery"`
	Items            []OrderItem `json:"items"`
}

// OrderItem references a product of the seeded pool. TotalPrice is UnitPrice times Quantity;
// Discount is recorded but not subtracted.
type OrderItem struct {
	ProductID  int64            `json:"productId"`
	Quantity   int              `json:"quantity"`
	UnitPrice  Money            `json:"unitPrice"`
	TotalPrice Money            `json:"totalPrice"`
	Discount   Money            `json:"discount"`
	CreatedAt  time.Time        `json:"createdAt"`
	Snapshot   *ProductSnapshot `json:"snapshot,omitempty"`
}

// Counts tallies the entities of each tier in a batch.
type Counts struct {
	Customers int
	Profiles  int
	Orders    int
	Items     int
}

func (c Counts) Total() int {
	return c.Customers + c.Profiles + c.Orders + c.Items
}

// CountEntities walks the batch and counts every entity it contains.
func CountEntities(customers []*Customer) Counts {
	var c Counts
	for _, customer := range customers {
		c.Customers++
		c.Profiles++
		c.Orders += len(customer.Orders)
		for _, o := range customer.Orders {
			c.Items += len(o.Items)
		}
	}
	return c
}
