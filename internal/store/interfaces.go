package store

import (
	"context"

	"bookstore-service/internal/domain"
)

// ListCategoriesParams holds parameters for listing categories (e.g., for pagination).
type ListCategoriesParams struct {
	Limit  int
	Offset int
}

// CategoryStorer defines the database operations for categories.
type CategoryStorer interface {
	CreateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error)
	GetCategoryByID(ctx context.Context, id int64) (*domain.Category, error)
	ListCategories(ctx context.Context, params ListCategoriesParams) ([]domain.Category, int, error) // Returns categories and total count for pagination
	UpdateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error)
	DeleteCategory(ctx context.Context, id int64) error
}

// ListProductsParams holds parameters for listing products (pagination plus optional filters).
type ListProductsParams struct {
	Limit      int
	Offset     int
	Active     *bool  // Filter by active flag
	CategoryID *int64 // Only products associated with this category
}

// ProductStorer defines the database operations for products, including the
// product/category join association.
type ProductStorer interface {
	CreateProduct(ctx context.Context, product *domain.Product, categoryIDs []int64) (*domain.Product, error)
	GetProductByID(ctx context.Context, id int64) (*domain.Product, error)
	ListProducts(ctx context.Context, params ListProductsParams) ([]domain.Product, int, error) // Returns products and total count
	UpdateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	AttachCategory(ctx context.Context, productID, categoryID int64) error  // Idempotent
	DetachCategory(ctx context.Context, productID, categoryID int64) error // No-op when absent
}

// ListOrdersParams holds parameters for listing a single owner's orders.
type ListOrdersParams struct {
	OwnerID int64
	Limit   int
	Offset  int
}

// OrderStorer defines the database operations for orders and the
// order/product join association.
type OrderStorer interface {
	CreateOrder(ctx context.Context, ownerID int64, productIDs []int64) (*domain.Order, error)
	GetOrderByID(ctx context.Context, id int64) (*domain.Order, error)
	ListOrdersByOwner(ctx context.Context, params ListOrdersParams) ([]domain.Order, int, error) // Ordered by id ASC
	DeleteOrder(ctx context.Context, id int64) error
	AddProduct(ctx context.Context, orderID, productID int64) error    // Idempotent
	RemoveProduct(ctx context.Context, orderID, productID int64) error // No-op when absent
}
