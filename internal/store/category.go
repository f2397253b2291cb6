package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/libranet/apiserver/types"
)

// CategoryRepository handles persistence for book categories.
type CategoryRepository struct {
	db Querier
}

func NewCategoryRepository(db Querier) *CategoryRepository {
	return &CategoryRepository{db: db}
}

func (r *CategoryRepository) GetByKey(ctx context.Context, key string) (types.Category, error) {
	const query = `SELECT id, name, name_key FROM categories WHERE name_key = $1`
	var category types.Category
	err := r.db.QueryRowContext(ctx, query, key).Scan(&category.ID, &category.Name, &category.Key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Category{}, ErrNotFound
		}
		return types.Category{}, err
	}
	return category, nil
}

// Create inserts category. An existing key yields a ConflictError without
// aborting the surrounding transaction.
func (r *CategoryRepository) Create(ctx context.Context, category types.Category) (types.Category, error) {
	const query = `
		INSERT INTO categories (name, name_key) VALUES ($1, $2)
		ON CONFLICT (name_key) DO NOTHING
		RETURNING id`
	if err := r.db.QueryRowContext(ctx, query, category.Name, category.Key).Scan(&category.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Category{}, &ConflictError{Constraint: ConstraintCategoryKey}
		}
		return types.Category{}, mapError(err)
	}
	return category, nil
}

func (r *CategoryRepository) List(ctx context.Context) ([]types.CategorySummary, error) {
	const query = `
		SELECT c.id, c.name, c.name_key, COUNT(b.id)
		FROM categories c
		LEFT JOIN books b ON b.category_id = c.id
		GROUP BY c.id, c.name, c.name_key
		ORDER BY c.name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]types.CategorySummary, 0)
	for rows.Next() {
		var summary types.CategorySummary
		if err := rows.Scan(&summary.ID, &summary.Name, &summary.Key, &summary.BookCount); err != nil {
			return nil, err
		}
		categories = append(categories, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}
