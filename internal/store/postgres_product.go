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

// --- ProductStorer Implementation ---

// CreateProduct inserts the product and its category associations in a single
// transaction. An unknown category id fails the whole create: nothing is
// persisted.
func (s *PostgresStore) CreateProduct(ctx context.Context, product *domain.Product, categoryIDs []int64) (*domain.Product, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: CreateProduct failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.log.Errorf("CreateProduct: failed to rollback transaction: %v", rbErr)
			}
		}
	}()

	query := `
		INSERT INTO products (title, description, price, active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, title, description, price, active, created_at, updated_at;
	`
	var created domain.Product
	err = tx.QueryRowContext(ctx, query, product.Title, product.Description, product.Price, product.Active).Scan(
		&created.ID,
		&created.Title,
		&created.Description,
		&created.Price,
		&created.Active,
		&created.CreatedAt,
		&created.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("store: CreateProduct failed to scan row: %w", err)
	}

	for _, categoryID := range categoryIDs {
		joinQuery := `
			INSERT INTO product_categories (product_id, category_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING;
		`
		if _, err = tx.ExecContext(ctx, joinQuery, created.ID, categoryID); err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == pgForeignKeyViolation {
				err = ErrCategoryNotFound
				return nil, err
			}
			return nil, fmt.Errorf("store: CreateProduct failed to associate category %d: %w", categoryID, err)
		}
	}

	categoriesByProduct, err := s.loadCategories(ctx, tx, []int64{created.ID})
	if err != nil {
		return nil, err
	}
	created.Categories = categoriesByProduct[created.ID]

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: CreateProduct failed to commit transaction: %w", err)
	}
	return &created, nil
}

func (s *PostgresStore) GetProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	query := `
		SELECT id, title, description, price, active, created_at, updated_at
		FROM products
		WHERE id = $1;
	`
	var product domain.Product
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&product.ID,
		&product.Title,
		&product.Description,
		&product.Price,
		&product.Active,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("store: GetProductByID failed to scan row: %w", err)
	}

	categoriesByProduct, err := s.loadCategories(ctx, s.db, []int64{product.ID})
	if err != nil {
		return nil, err
	}
	product.Categories = categoriesByProduct[product.ID]
	return &product, nil
}

func (s *PostgresStore) ListProducts(ctx context.Context, params ListProductsParams) ([]domain.Product, int, error) {
	var queryArgs []interface{}
	var whereClauses []string
	argID := 1

	if params.Active != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("active = $%d", argID))
		queryArgs = append(queryArgs, *params.Active)
		argID++
	}
	if params.CategoryID != nil {
		whereClauses = append(whereClauses,
			fmt.Sprintf("EXISTS (SELECT 1 FROM product_categories pc WHERE pc.product_id = products.id AND pc.category_id = $%d)", argID))
		queryArgs = append(queryArgs, *params.CategoryID)
		argID++
	}

	whereCondition := ""
	if len(whereClauses) > 0 {
		whereCondition = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	countQuery := "SELECT COUNT(*) FROM products" + whereCondition
	var totalCount int
	if err := s.db.QueryRowContext(ctx, countQuery, queryArgs...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("store: ListProducts failed to count products: %w", err)
	}

	if totalCount == 0 {
		return []domain.Product{}, 0, nil
	}

	dataQuery := fmt.Sprintf(`
		SELECT id, title, description, price, active, created_at, updated_at
		FROM products%s ORDER BY id ASC LIMIT $%d OFFSET $%d`,
		whereCondition, argID, argID+1)
	finalQueryArgs := append(queryArgs, params.Limit, params.Offset)

	rows, err := s.db.QueryContext(ctx, dataQuery, finalQueryArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("store: ListProducts failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, params.Limit)
	productIDs := make([]int64, 0, params.Limit)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.Price, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("store: ListProducts failed to scan product row: %w", err)
		}
		products = append(products, p)
		productIDs = append(productIDs, p.ID)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("store: ListProducts iteration error: %w", err)
	}

	categoriesByProduct, err := s.loadCategories(ctx, s.db, productIDs)
	if err != nil {
		return nil, 0, err
	}
	for i := range products {
		products[i].Categories = categoriesByProduct[products[i].ID]
	}

	return products, totalCount, nil
}

func (s *PostgresStore) UpdateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	query := `
		UPDATE products
		SET title = $1, description = $2, price = $3, active = $4, updated_at = CURRENT_TIMESTAMP
		WHERE id = $5
		RETURNING id, title, description, price, active, created_at, updated_at;
	`
	var updated domain.Product
	err := s.db.QueryRowContext(ctx, query, product.Title, product.Description, product.Price, product.Active, product.ID).Scan(
		&updated.ID,
		&updated.Title,
		&updated.Description,
		&updated.Price,
		&updated.Active,
		&updated.CreatedAt,
		&updated.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("store: UpdateProduct failed to scan row: %w", err)
	}

	categoriesByProduct, err := s.loadCategories(ctx, s.db, []int64{updated.ID})
	if err != nil {
		return nil, err
	}
	updated.Categories = categoriesByProduct[updated.ID]
	return &updated, nil
}

// DeleteProduct removes the product and every association row pointing at it,
// both category links and order links. Orders referencing the product survive
// with one product fewer.
func (s *PostgresStore) DeleteProduct(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: DeleteProduct failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.log.Errorf("DeleteProduct: failed to rollback transaction: %v", rbErr)
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM product_categories WHERE product_id = $1;`, id); err != nil {
		return fmt.Errorf("store: DeleteProduct failed to remove category associations: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM order_products WHERE product_id = $1;`, id); err != nil {
		return fmt.Errorf("store: DeleteProduct failed to remove order associations: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("store: DeleteProduct failed to execute delete: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: DeleteProduct failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		err = ErrProductNotFound
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("store: DeleteProduct failed to commit transaction: %w", err)
	}
	return nil
}

// AttachCategory associates a category with a product. Attaching an already
// associated category is a no-op.
func (s *PostgresStore) AttachCategory(ctx context.Context, productID, categoryID int64) error {
	query := `
		INSERT INTO product_categories (product_id, category_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING;
	`
	if _, err := s.db.ExecContext(ctx, query, productID, categoryID); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgForeignKeyViolation {
			if strings.Contains(pqErr.Constraint, "product_id") {
				return ErrProductNotFound
			}
			return ErrCategoryNotFound
		}
		return fmt.Errorf("store: AttachCategory failed: %w", err)
	}
	return nil
}

// DetachCategory drops the association row. Detaching a category that is not
// associated is a no-op.
func (s *PostgresStore) DetachCategory(ctx context.Context, productID, categoryID int64) error {
	query := `DELETE FROM product_categories WHERE product_id = $1 AND category_id = $2;`
	if _, err := s.db.ExecContext(ctx, query, productID, categoryID); err != nil {
		return fmt.Errorf("store: DetachCategory failed: %w", err)
	}
	return nil
}

// loadCategories fetches the categories associated with the given products in
// one round trip, keyed by product id.
func (s *PostgresStore) loadCategories(ctx context.Context, q querier, productIDs []int64) (map[int64][]domain.Category, error) {
	result := make(map[int64][]domain.Category, len(productIDs))
	if len(productIDs) == 0 {
		return result, nil
	}

	query := `
		SELECT pc.product_id, c.id, c.title, c.slug, c.description, c.active, c.created_at, c.updated_at
		FROM product_categories pc
		JOIN categories c ON c.id = pc.category_id
		WHERE pc.product_id = ANY($1)
		ORDER BY pc.product_id ASC, c.id ASC;
	`
	rows, err := q.QueryContext(ctx, query, pq.Array(productIDs))
	if err != nil {
		return nil, fmt.Errorf("store: loadCategories failed to query associations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var productID int64
		var c domain.Category
		if err := rows.Scan(&productID, &c.ID, &c.Title, &c.Slug, &c.Description, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: loadCategories failed to scan row: %w", err)
		}
		result[productID] = append(result[productID], c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: loadCategories iteration error: %w", err)
	}
	return result, nil
}
