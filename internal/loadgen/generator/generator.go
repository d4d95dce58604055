// Package generator synthesizes customer aggregates and the product pool they reference.
//
// Generation is pure: all randomness comes from the *rand.Rand passed in and the only shared state is the
// read-only product pool. Callers running on several goroutines must give each goroutine its own *rand.Rand.
package generator

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid"
	"github.com/pkg/errors"

	"github.com/armadaproject/loadgen/internal/loadgen/model"
)

const (
	minOrdersPerCustomer = 1
	maxOrdersPerCustomer = 5
	minItemsPerOrder     = 2
	maxItemsPerOrder     = 7
	maxQuantity          = 10

	expressNote = "Express"
)

// Generator builds customer aggregates whose items all reference products of pool.
type Generator struct {
	pool  []model.Product
	shape model.Shape
}

// New returns a generator over pool. The pool must not be modified while the generator is in use.
func New(pool []model.Product, shape model.Shape) (*Generator, error) {
	if len(pool) == 0 {
		return nil, errors.New("cannot generate orders from an empty product pool")
	}
	return &Generator{pool: pool, shape: shape}, nil
}

// Batch generates n independent customer aggregates.
func (g *Generator) Batch(rng *rand.Rand, n int, now time.Time) []*model.Customer {
	customers := make([]*model.Customer, n)
	for i := range customers {
		customers[i] = g.Customer(rng, now)
	}
	return customers
}

// Customer generates one aggregate: a customer with its profile, 1-5 orders and 2-7 items per order.
func (g *Generator) Customer(rng *rand.Rand, now time.Time) *model.Customer {
	id := newUUID(rng)
	fn := pick(rng, firstNames)
	ln := pick(rng, lastNames)

	c := &model.Customer{
		ID:            id,
		FirstName:     fn,
		LastName:      ln,
		Email:         fmt.Sprintf("%s.%s%s@test.com", strings.ToLower(fn), strings.ToLower(ln), id[:8]),
		Phone:         fmt.Sprintf("+7%d", 9000000000+rng.Int63n(999999999)),
		DateOfBirth:   time.Date(1970+rng.Intn(40), time.Month(1+rng.Intn(12)), 1+rng.Intn(28), 0, 0, 0, 0, time.UTC),
		RegisteredAt:  now,
		Status:        pick(rng, customerStatuses),
		LoyaltyPoints: rng.Intn(10000),
		Country:       pick(rng, countries),
		Profile: model.Profile{
			AvatarUrl:            fmt.Sprintf("https://avatar.example.com/%d.png", rng.Intn(1000)),
			Bio:                  "Bio info...",
			PreferredLanguage:    pick(rng, languages),
			NotificationsEnabled: rng.Intn(2) == 0,
			Address:              fmt.Sprintf("Street %d, apt %d", rng.Intn(200), rng.Intn(100)),
			City:                 pick(rng, cities),
			ZipCode:              fmt.Sprintf("%d", 100000+rng.Intn(899999)),
		},
	}

	orderCount := between(rng, minOrdersPerCustomer, maxOrdersPerCustomer)
	c.Orders = make([]model.Order, orderCount)
	for i := range c.Orders {
		c.Orders[i] = g.order(rng, now)
	}
	return c
}

func (g *Generator) order(rng *rand.Rand, now time.Time) model.Order {
	o := model.Order{
		OrderNumber:      "ORD-" + newULID(rng, now),
		OrderDate:        now.AddDate(0, 0, -rng.Intn(365)),
		Status:           pick(rng, orderStatuses),
		TotalAmount:      model.MoneyFromFloat(uniform(rng, 10, 10000)),
		Currency:         pick(rng, currencies),
		ShippingAddress:  fmt.Sprintf("%s, Street %d", pick(rng, cities), rng.Intn(200)),
		ExpectedDelivery: startOfDay(now).AddDate(0, 0, rng.Intn(30)),
	}
	if rng.Intn(2) == 0 {
		note := expressNote
		o.Notes = &note
	}

	itemCount := between(rng, minItemsPerOrder, maxItemsPerOrder)
	o.Items = make([]model.OrderItem, itemCount)
	for i := range o.Items {
		o.Items[i] = g.item(rng, now)
	}
	return o
}

func (g *Generator) item(rng *rand.Rand, now time.Time) model.OrderItem {
	product := &g.pool[rng.Intn(len(g.pool))]
	qty := between(rng, 1, maxQuantity)

	item := model.OrderItem{
		ProductID: product.ID,
		Quantity:  qty,
		CreatedAt: now,
	}
	switch g.shape {
	case model.ShapeDocument:
		item.UnitPrice = product.Price
		item.Snapshot = product.Snapshot()
	default:
		item.UnitPrice = model.MoneyFromFloat(uniform(rng, 1, 500))
		item.Discount = model.MoneyFromFloat(uniform(rng, 0, 50))
	}
	// Discount is kept for reporting and is not subtracted.
	item.TotalPrice = item.UnitPrice.Mul(qty)
	return item
}

// Products generates n products for seeding. IDs are left zero; the sink assigns them.
func Products(rng *rand.Rand, n int, now time.Time) []model.Product {
	products := make([]model.Product, n)
	for i := range products {
		category := pick(rng, categories)
		products[i] = model.Product{
			Name:        fmt.Sprintf("%s Item #%d", category, i),
			Sku:         "SKU-" + newUUID(rng)[:8],
			Description: "Description for " + category,
			Price:       model.MoneyFromFloat(uniform(rng, 0.5, 9999)),
			Category:    category,
			Weight:      math.Round(uniform(rng, 0.01, 50)*100) / 100,
			InStock:     true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}
	return products
}

func pick(rng *rand.Rand, values []string) string {
	return values[rng.Intn(len(values))]
}

// between returns a uniformly distributed int in [lo, hi].
func between(rng *rand.Rand, lo, hi int) int {
	return lo + rng.Intn(hi-lo+1)
}

// uniform returns a uniformly distributed float in [lo, hi).
func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func newUUID(rng *rand.Rand) string {
	id, err := uuid.NewRandomFromReader(rng)
	if err != nil {
		// *rand.Rand never fails to read
		panic(err)
	}
	return id.String()
}

func newULID(rng *rand.Rand, now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), rng).String()
}
