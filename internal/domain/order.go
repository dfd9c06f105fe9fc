package domain

import "time"

// Order is a purchase record owned by exactly one user. It has no status
// field: an order either exists or has been deleted. Products holds the
// currently associated products with their live prices.
type Order struct {
	ID        int64     `json:"id"`
	OwnerID   int64     `json:"owner"`
	Products  []Product `json:"products"`
	CreatedAt time.Time `json:"created_at"`
}

// Total is the sum of the current prices of the order's products,
// recomputed on every call. There is no persisted snapshot: if a product's
// price changes after the order was placed, the next read reflects it.
func (o *Order) Total() float64 {
	var total float64
	for _, p := range o.Products {
		total += p.Price
	}
	return total
}
