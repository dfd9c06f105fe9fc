package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"bookstore-service/internal/domain"
)

// Predefined errors for store operations
var (
	ErrCategoryNotFound   = errors.New("store: category not found")
	ErrCategorySlugExists = errors.New("store: category slug already exists")
	ErrProductNotFound    = errors.New("store: product not found")
	ErrOrderNotFound      = errors.New("store: order not found")
)

// Postgres error codes we map to sentinel errors.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// PostgresStore implements the CategoryStorer, ProductStorer and OrderStorer
// interfaces using PostgreSQL.
type PostgresStore struct {
	db  *sql.DB
	log *logrus.Logger
}

// NewPostgresStore creates a new PostgresStore instance.
func NewPostgresStore(db *sql.DB, logger *logrus.Logger) *PostgresStore {
	return &PostgresStore{db: db, log: logger}
}

// querier is satisfied by both *sql.DB and *sql.Tx so the association
// loaders can run inside or outside a transaction.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// --- CategoryStorer Implementation ---

func (s *PostgresStore) CreateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error) {
	query := `
		INSERT INTO categories (title, slug, description, active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, title, slug, description, active, created_at, updated_at;
	`
	row := s.db.QueryRowContext(ctx, query, category.Title, category.Slug, category.Description, category.Active)

	var created domain.Category
	err := row.Scan(
		&created.ID,
		&created.Title,
		&created.Slug,
		&created.Description,
		&created.Active,
		&created.CreatedAt,
		&created.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			if strings.Contains(pqErr.Constraint, "categories_slug_key") || strings.Contains(pqErr.Detail, "Key (slug)") {
				return nil, ErrCategorySlugExists
			}
		}
		return nil, fmt.Errorf("store: CreateCategory failed to scan row: %w", err)
	}
	return &created, nil
}

func (s *PostgresStore) GetCategoryByID(ctx context.Context, id int64) (*domain.Category, error) {
	query := `
		SELECT id, title, slug, description, active, created_at, updated_at
		FROM categories
		WHERE id = $1;
	`
	var category domain.Category
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&category.ID,
		&category.Title,
		&category.Slug,
		&category.Description,
		&category.Active,
		&category.CreatedAt,
		&category.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("store: GetCategoryByID failed to scan row: %w", err)
	}
	return &category, nil
}

func (s *PostgresStore) ListCategories(ctx context.Context, params ListCategoriesParams) ([]domain.Category, int, error) {
	countQuery := `SELECT COUNT(*) FROM categories;`
	var totalCount int
	if err := s.db.QueryRowContext(ctx, countQuery).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("store: ListCategories failed to count categories: %w", err)
	}

	if totalCount == 0 {
		return []domain.Category{}, 0, nil
	}

	query := `
		SELECT id, title, slug, description, active, created_at, updated_at
		FROM categories
		ORDER BY slug ASC
		LIMIT $1 OFFSET $2;
	`
	rows, err := s.db.QueryContext(ctx, query, params.Limit, params.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("store: ListCategories failed to query categories: %w", err)
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, params.Limit)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Title, &c.Slug, &c.Description, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("store: ListCategories failed to scan category row: %w", err)
		}
		categories = append(categories, c)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("store: ListCategories iteration error: %w", err)
	}

	return categories, totalCount, nil
}

func (s *PostgresStore) UpdateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error) {
	query := `
		UPDATE categories
		SET title = $1, slug = $2, description = $3, active = $4, updated_at = CURRENT_TIMESTAMP
		WHERE id = $5
		RETURNING id, title, slug, description, active, created_at, updated_at;
	`
	var updated domain.Category
	err := s.db.QueryRowContext(ctx, query, category.Title, category.Slug, category.Description, category.Active, category.ID).Scan(
		&updated.ID,
		&updated.Title,
		&updated.Slug,
		&updated.Description,
		&updated.Active,
		&updated.CreatedAt,
		&updated.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			if strings.Contains(pqErr.Constraint, "categories_slug_key") || strings.Contains(pqErr.Detail, "Key (slug)") {
				return nil, ErrCategorySlugExists
			}
		}
		return nil, fmt.Errorf("store: UpdateCategory failed to scan row: %w", err)
	}
	return &updated, nil
}

// DeleteCategory removes a category together with its product associations.
// Products on the other side of the association are untouched.
func (s *PostgresStore) DeleteCategory(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: DeleteCategory failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.log.Errorf("DeleteCategory: failed to rollback transaction: %v", rbErr)
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM product_categories WHERE category_id = $1;`, id); err != nil {
		return fmt.Errorf("store: DeleteCategory failed to remove associations: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("store: DeleteCategory failed to execute delete: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: DeleteCategory failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		err = ErrCategoryNotFound
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("store: DeleteCategory failed to commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.db != nil {
		s.log.Info("Closing database connection pool...")
		if err := s.db.Close(); err != nil {
			s.log.Errorf("Failed to close database connection pool: %v", err)
			return err
		}
		s.log.Info("Database connection pool closed successfully.")
	}
	return nil
}
