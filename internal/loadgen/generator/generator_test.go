package generator

import (
	"math/rand"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/oklog/ulid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armadaproject/loadgen/internal/loadgen/model"
)

var testNow = time.Date(2024, 3, 15, 12, 30, 0, 0, time.UTC)

func testPool(t *testing.T, n int) []model.Product {
	t.Helper()
	products := Products(rand.New(rand.NewSource(1)), n, testNow)
	for i := range products {
		products[i].ID = int64(i + 1)
	}
	return products
}

func TestNew_EmptyPool(t *testing.T) {
	_, err := New(nil, model.ShapeDocument)
	assert.Error(t, err)
}

func TestProducts(t *testing.T) {
	products := Products(rand.New(rand.NewSource(7)), 200, testNow)
	require.Len(t, products, 200)

	skus := map[string]bool{}
	for i, p := range products {
		assert.Zero(t, p.ID)
		assert.Contains(t, categories, p.Category)
		assert.True(t, strings.HasSuffix(p.Name, " Item #"+strconv.Itoa(i)), p.Name)
		assert.True(t, strings.HasPrefix(p.Name, p.Category))
		assert.Regexp(t, `^SKU-[0-9a-f]{8}$`, p.Sku)
		assert.Equal(t, "Description for "+p.Category, p.Description)
		assert.GreaterOrEqual(t, p.Price.Cents(), int64(50))
		assert.LessOrEqual(t, p.Price.Cents(), int64(999900))
		assert.GreaterOrEqual(t, p.Weight, 0.01)
		assert.LessOrEqual(t, p.Weight, 50.0)
		assert.True(t, p.InStock)
		assert.Equal(t, testNow, p.CreatedAt)
		skus[p.Sku] = true
	}
	assert.Greater(t, len(skus), 190)
}

func TestCustomer_Cardinalities(t *testing.T) {
	g, err := New(testPool(t, 20), model.ShapeNormalized)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		c := g.Customer(rng, testNow)
		_, err := uuid.Parse(c.ID)
		require.NoError(t, err)
		assert.Equal(t, strings.ToLower(c.FirstName)+"."+strings.ToLower(c.LastName)+c.ID[:8]+"@test.com", c.Email)
		assert.Regexp(t, `^\+79\d{9}$`, c.Phone)
		assert.Contains(t, customerStatuses, c.Status)
		assert.Contains(t, countries, c.Country)
		assert.Contains(t, cities, c.Profile.City)
		assert.Contains(t, languages, c.Profile.PreferredLanguage)
		assert.True(t, c.DateOfBirth.Year() >= 1970 && c.DateOfBirth.Year() < 2010)
		assert.LessOrEqual(t, c.DateOfBirth.Day(), 28)

		require.GreaterOrEqual(t, len(c.Orders), 1)
		require.LessOrEqual(t, len(c.Orders), 5)
		for _, o := range c.Orders {
			assert.True(t, strings.HasPrefix(o.OrderNumber, "ORD-"))
			_, err := ulid.Parse(strings.TrimPrefix(o.OrderNumber, "ORD-"))
			assert.NoError(t, err)
			assert.GreaterOrEqual(t, o.TotalAmount.Cents(), int64(1000))
			assert.LessOrEqual(t, o.TotalAmount.Cents(), int64(1000000))
			assert.False(t, o.OrderDate.After(testNow))
			assert.True(t, o.OrderDate.After(testNow.AddDate(0, 0, -365)))
			assert.False(t, o.ExpectedDelivery.Before(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)))
			assert.Contains(t, currencies, o.Currency)
			assert.Contains(t, orderStatuses, o.Status)
			if o.Notes != nil {
				assert.Equal(t, "Express", *o.Notes)
			}
			require.GreaterOrEqual(t, len(o.Items), 2)
			require.LessOrEqual(t, len(o.Items), 7)
		}
	}
}

func TestItems_DocumentShape(t *testing.T) {
	pool := testPool(t, 10)
	byID := map[int64]model.Product{}
	for _, p := range pool {
		byID[p.ID] = p
	}
	g, err := New(pool, model.ShapeDocument)
	require.NoError(t, err)

	for _, c := range g.Batch(rand.New(rand.NewSource(3)), 50, testNow) {
		for _, o := range c.Orders {
			for _, item := range o.Items {
				p, ok := byID[item.ProductID]
				require.True(t, ok, "item references product %d outside the pool", item.ProductID)
				assert.Equal(t, p.Price, item.UnitPrice)
				assert.Equal(t, p.Snapshot(), item.Snapshot)
				assert.Zero(t, item.Discount)
				assert.Equal(t, item.UnitPrice.Mul(item.Quantity), item.TotalPrice)
			}
		}
	}
}

func TestItems_NormalizedShape(t *testing.T) {
	g, err := New(testPool(t, 10), model.ShapeNormalized)
	require.NoError(t, err)

	for _, c := range g.Batch(rand.New(rand.NewSource(4)), 50, testNow) {
		for _, o := range c.Orders {
			for _, item := range o.Items {
				assert.Nil(t, item.Snapshot)
				assert.GreaterOrEqual(t, item.UnitPrice.Cents(), int64(100))
				assert.LessOrEqual(t, item.UnitPrice.Cents(), int64(50000))
				assert.GreaterOrEqual(t, item.Discount.Cents(), int64(0))
				assert.LessOrEqual(t, item.Discount.Cents(), int64(5000))
				// discount is not subtracted
				assert.Equal(t, item.UnitPrice.Mul(item.Quantity), item.TotalPrice)
			}
		}
	}
}

func TestBatch_DoesNotMutatePool(t *testing.T) {
	pool := testPool(t, 5)
	before := append([]model.Product(nil), pool...)
	g, err := New(pool, model.ShapeDocument)
	require.NoError(t, err)

	g.Batch(rand.New(rand.NewSource(9)), 100, testNow)
	assert.Equal(t, before, pool)
}

func TestBatch_DeterministicForSeed(t *testing.T) {
	g, err := New(testPool(t, 10), model.ShapeDocument)
	require.NoError(t, err)

	first := g.Batch(rand.New(rand.NewSource(42)), 20, testNow)
	second := g.Batch(rand.New(rand.NewSource(42)), 20, testNow)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("batches generated from the same seed differ:\n%s", diff)
	}
}

func TestBatch_OrderNumbersUnique(t *testing.T) {
	g, err := New(testPool(t, 5), model.ShapeDocument)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, seed := range []int64{1, 2} {
		for _, c := range g.Batch(rand.New(rand.NewSource(seed)), 200, testNow) {
			for _, o := range c.Orders {
				require.False(t, seen[o.OrderNumber], "duplicate order number %s", o.OrderNumber)
				seen[o.OrderNumber] = true
			}
		}
	}
}

func TestProperty_ItemsReferenceSeededPool(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("every item references a product of the pool", prop.ForAll(
		func(seed int64, poolSize int, batchSize int) bool {
			pool := Products(rand.New(rand.NewSource(seed)), poolSize, testNow)
			ids := map[int64]bool{}
			for i := range pool {
				pool[i].ID = int64(1000 + i)
				ids[pool[i].ID] = true
			}
			g, err := New(pool, model.ShapeDocument)
			if err != nil {
				return false
			}
			for _, c := range g.Batch(rand.New(rand.NewSource(seed+1)), batchSize, testNow) {
				if len(c.Orders) == 0 {
					return false
				}
				for _, o := range c.Orders {
					for _, item := range o.Items {
						if !ids[item.ProductID] || item.TotalPrice != item.UnitPrice.Mul(item.Quantity) {
							return false
						}
					}
				}
			}
			return true
		},
		gen.Int64(),
		gen.IntRange(1, 300),
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}
