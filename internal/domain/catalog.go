package domain

import "time"

// Category is a labeled tag attachable to products. Slug is unique across
// all categories and doubles as the stable URL identifier.
type Category struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	Description *string   `json:"description,omitempty"` // Pointer for nullable fields, omitempty to exclude if nil
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Product is a sellable catalog item. Categories carries the product's
// current category associations when the record was loaded with them;
// a nil slice means the associations were not requested.
type Product struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description *string    `json:"description,omitempty"`
	Price       float64    `json:"price"` // Non-negative; enforced at the API boundary before persistence.
	Active      bool       `json:"active"`
	Categories  []Category `json:"categories"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
