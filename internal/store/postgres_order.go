package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"bookstore-service/internal/domain"
)

// --- OrderStorer Implementation ---

// CreateOrder inserts the order and its product associations in a single
// transaction. An unknown product id fails the whole create. An order with
// zero products is permitted.
func (s *PostgresStore) CreateOrder(ctx context.Context, ownerID int64, productIDs []int64) (*domain.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: CreateOrder failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.log.Errorf("CreateOrder: failed to rollback transaction: %v", rbErr)
			}
		}
	}()

	query := `
		INSERT INTO orders (owner_id)
		VALUES ($1)
		RETURNING id, owner_id, created_at;
	`
	var created domain.Order
	err = tx.QueryRowContext(ctx, query, ownerID).Scan(&created.ID, &created.OwnerID, &created.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: CreateOrder failed to scan row: %w", err)
	}

	for _, productID := range productIDs {
		joinQuery := `
			INSERT INTO order_products (order_id, product_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING;
		`
		if _, err = tx.ExecContext(ctx, joinQuery, created.ID, productID); err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == pgForeignKeyViolation {
				err = ErrProductNotFound
				return nil, err
			}
			return nil, fmt.Errorf("store: CreateOrder failed to associate product %d: %w", productID, err)
		}
	}

	productsByOrder, err := s.loadProducts(ctx, tx, []int64{created.ID})
	if err != nil {
		return nil, err
	}
	created.Products = productsByOrder[created.ID]
	if created.Products == nil {
		created.Products = []domain.Product{}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: CreateOrder failed to commit transaction: %w", err)
	}
	return &created, nil
}

func (s *PostgresStore) GetOrderByID(ctx context.Context, id int64) (*domain.Order, error) {
	query := `
		SELECT id, owner_id, created_at
		FROM orders
		WHERE id = $1;
	`
	var order domain.Order
	err := s.db.QueryRowContext(ctx, query, id).Scan(&order.ID, &order.OwnerID, &order.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("store: GetOrderByID failed to scan row: %w", err)
	}

	productsByOrder, err := s.loadProducts(ctx, s.db, []int64{order.ID})
	if err != nil {
		return nil, err
	}
	order.Products = productsByOrder[order.ID]
	if order.Products == nil {
		order.Products = []domain.Product{}
	}
	return &order, nil
}

// ListOrdersByOwner returns only the given owner's orders, ordered by id
// ascending for stable pagination.
func (s *PostgresStore) ListOrdersByOwner(ctx context.Context, params ListOrdersParams) ([]domain.Order, int, error) {
	countQuery := `SELECT COUNT(*) FROM orders WHERE owner_id = $1;`
	var totalCount int
	if err := s.db.QueryRowContext(ctx, countQuery, params.OwnerID).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("store: ListOrdersByOwner failed to count orders: %w", err)
	}

	if totalCount == 0 {
		return []domain.Order{}, 0, nil
	}

	query := `
		SELECT id, owner_id, created_at
		FROM orders
		WHERE owner_id = $1
		ORDER BY id ASC
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.db.QueryContext(ctx, query, params.OwnerID, params.Limit, params.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("store: ListOrdersByOwner failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, params.Limit)
	orderIDs := make([]int64, 0, params.Limit)
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.OwnerID, &o.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("store: ListOrdersByOwner failed to scan order row: %w", err)
		}
		o.Products = []domain.Product{}
		orders = append(orders, o)
		orderIDs = append(orderIDs, o.ID)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("store: ListOrdersByOwner iteration error: %w", err)
	}

	productsByOrder, err := s.loadProducts(ctx, s.db, orderIDs)
	if err != nil {
		return nil, 0, err
	}
	for i := range orders {
		if products, ok := productsByOrder[orders[i].ID]; ok {
			orders[i].Products = products
		}
	}

	return orders, totalCount, nil
}

func (s *PostgresStore) DeleteOrder(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: DeleteOrder failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.log.Errorf("DeleteOrder: failed to rollback transaction: %v", rbErr)
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM order_products WHERE order_id = $1;`, id); err != nil {
		return fmt.Errorf("store: DeleteOrder failed to remove product associations: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("store: DeleteOrder failed to execute delete: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: DeleteOrder failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		err = ErrOrderNotFound
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("store: DeleteOrder failed to commit transaction: %w", err)
	}
	return nil
}

// AddProduct associates a product with an order. Adding a product that is
// already in the order is a no-op.
func (s *PostgresStore) AddProduct(ctx context.Context, orderID, productID int64) error {
	query := `
		INSERT INTO order_products (order_id, product_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING;
	`
	if _, err := s.db.ExecContext(ctx, query, orderID, productID); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgForeignKeyViolation {
			if strings.Contains(pqErr.Constraint, "order_id") {
				return ErrOrderNotFound
			}
			return ErrProductNotFound
		}
		return fmt.Errorf("store: AddProduct failed: %w", err)
	}
	return nil
}

// RemoveProduct drops the association row. Removing a product that is not in
// the order is a no-op.
func (s *PostgresStore) RemoveProduct(ctx context.Context, orderID, productID int64) error {
	query := `DELETE FROM order_products WHERE order_id = $1 AND product_id = $2;`
	if _, err := s.db.ExecContext(ctx, query, orderID, productID); err != nil {
		return fmt.Errorf("store: RemoveProduct failed: %w", err)
	}
	return nil
}

// loadProducts fetches the products associated with the given orders in one
// round trip, keyed by order id, with each product's categories nested.
func (s *PostgresStore) loadProducts(ctx context.Context, q querier, orderIDs []int64) (map[int64][]domain.Product, error) {
	result := make(map[int64][]domain.Product, len(orderIDs))
	if len(orderIDs) == 0 {
		return result, nil
	}

	query := `
		SELECT op.order_id, p.id, p.title, p.description, p.price, p.active, p.created_at, p.updated_at
		FROM order_products op
		JOIN products p ON p.id = op.product_id
		WHERE op.order_id = ANY($1)
		ORDER BY op.order_id ASC, p.id ASC;
	`
	rows, err := q.QueryContext(ctx, query, pq.Array(orderIDs))
	if err != nil {
		return nil, fmt.Errorf("store: loadProducts failed to query associations: %w", err)
	}
	defer rows.Close()

	productIDSet := make(map[int64]struct{})
	for rows.Next() {
		var orderID int64
		var p domain.Product
		if err := rows.Scan(&orderID, &p.ID, &p.Title, &p.Description, &p.Price, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: loadProducts failed to scan row: %w", err)
		}
		result[orderID] = append(result[orderID], p)
		productIDSet[p.ID] = struct{}{}
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: loadProducts iteration error: %w", err)
	}

	productIDs := make([]int64, 0, len(productIDSet))
	for id := range productIDSet {
		productIDs = append(productIDs, id)
	}
	categoriesByProduct, err := s.loadCategories(ctx, q, productIDs)
	if err != nil {
		return nil, err
	}
	for orderID, products := range result {
		for i := range products {
			products[i].Categories = categoriesByProduct[products[i].ID]
		}
		result[orderID] = products
	}

	return result, nil
}
