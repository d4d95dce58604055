package sink

import (
	"github.com/armadaproject/loadgen/internal/loadgen/model"
)

var (
	customerColumns = []string{
		"id", "external_id", "first_name", "last_name", "email", "phone",
		"date_of_birth", "registered_at", "status", "loyalty_points", "country",
	}
	profileColumns = []string{
		"customer_id", "avatar_url", "bio", "preferred_language", "notifications_enabled",
		"address", "city", "zip_code",
	}
	orderColumns = []string{
		"id", "customer_id", "order_number", "order_date", "status", "total_amount",
		"currency", "shipping_address", "notes", "expected_delivery",
	}
	itemColumns = []string{
		"order_id", "product_id", "quantity", "unit_price", "total_price", "discount", "created_at",
	}
)

type tableRows struct {
	name    string
	columns []string
	rows    [][]interface{}
}

// normalizedRows is a batch flattened into one row set per table, with foreign keys filled in.
type normalizedRows struct {
	customers tableRows
	profiles  tableRows
	orders    tableRows
	items     tableRows
}

// tables returns the row sets in an order that satisfies foreign keys.
func (r *normalizedRows) tables() []tableRows {
	return []tableRows{r.customers, r.profiles, r.orders, r.items}
}

// buildRows flattens customers. customerIDs and orderIDs must hold one key per customer and per order,
// in batch order. Money is rendered as a decimal string.
func buildRows(customers []*model.Customer, customerIDs, orderIDs []int64) *normalizedRows {
	counts := model.CountEntities(customers)
	r := &normalizedRows{
		customers: tableRows{name: "customers", columns: customerColumns, rows: make([][]interface{}, 0, counts.Customers)},
		profiles:  tableRows{name: "customer_profiles", columns: profileColumns, rows: make([][]interface{}, 0, counts.Profiles)},
		orders:    tableRows{name: "orders", columns: orderColumns, rows: make([][]interface{}, 0, counts.Orders)},
		items:     tableRows{name: "order_items", columns: itemColumns, rows: make([][]interface{}, 0, counts.Items)},
	}

	nextOrder := 0
	for i, c := range customers {
		customerID := customerIDs[i]
		r.customers.rows = append(r.customers.rows, []interface{}{
			customerID, c.ID, c.FirstName, c.LastName, c.Email, c.Phone,
			c.DateOfBirth, c.RegisteredAt, c.Status, c.LoyaltyPoints, c.Country,
		})
		pr := c.Profile
		r.profiles.rows = append(r.profiles.rows, []interface{}{
			customerID, pr.AvatarUrl, pr.Bio, pr.PreferredLanguage, pr.NotificationsEnabled,
			pr.Address, pr.City, pr.ZipCode,
		})
		for _, o := range c.Orders {
			orderID := orderIDs[nextOrder]
			nextOrder++
			r.orders.rows = append(r.orders.rows, []interface{}{
				orderID, customerID, o.OrderNumber, o.OrderDate, o.Status, o.TotalAmount.String(),
				o.Currency, o.ShippingAddress, o.Notes, o.ExpectedDelivery,
			})
			for _, item := range o.Items {
				r.items.rows = append(r.items.rows, []interface{}{
					orderID, item.ProductID, item.Quantity, item.UnitPrice.String(),
					item.TotalPrice.String(), item.Discount.String(), item.CreatedAt,
				})
			}
		}
	}
	return r
}
