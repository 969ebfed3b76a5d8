package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/reviewtrust/trustscore/internal/domain"
	"github.com/reviewtrust/trustscore/pkg/database"
	apperrors "github.com/reviewtrust/trustscore/pkg/errors"
)

// ProductRepository reads the catalog's product record.
type ProductRepository struct {
	pool database.DBTX
}

func NewProductRepository(pool database.DBTX) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// GetSummary retrieves the product fields quoted in analytics prompts.
func (r *ProductRepository) GetSummary(ctx context.Context, productID string) (*domain.ProductSummary, error) {
	query := `
		SELECT id, name, brand, category, platform, current_price::float8,
		       COALESCE(currency, 'VND'), average_rating::float8
		FROM products
		WHERE id = $1`

	var p domain.ProductSummary
	err := r.pool.QueryRow(ctx, query, productID).Scan(
		&p.ID,
		&p.Name,
		&p.Brand,
		&p.Category,
		&p.Platform,
		&p.CurrentPrice,
		&p.Currency,
		&p.AverageRating,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("product", productID)
		}
		return nil, fmt.Errorf("get product summary: %w", err)
	}
	return &p, nil
}
