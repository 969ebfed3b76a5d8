package postgres

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/reviewtrust/trustscore/pkg/errors"
)

func TestProductRepository_GetSummary(t *testing.T) {
	mock := setupMock(t)
	repo := NewProductRepository(mock)

	mock.ExpectQuery("SELECT .+ FROM products WHERE id").
		WithArgs("prod-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "brand", "category", "platform", "current_price", "currency", "average_rating"}).
			AddRow("prod-1", "Tai nghe Bluetooth", strPtr("Sony"), (*string)(nil), strPtr("shopee"), f64(1290000), "VND", f64(4.6)))

	p, err := repo.GetSummary(context.Background(), "prod-1")

	require.NoError(t, err)
	assert.Equal(t, "Tai nghe Bluetooth", p.Name)
	assert.Equal(t, "Sony", *p.Brand)
	assert.Nil(t, p.Category)
	assert.Equal(t, 4.6, *p.AverageRating)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_GetSummary_NotFound(t *testing.T) {
	mock := setupMock(t)
	repo := NewProductRepository(mock)

	mock.ExpectQuery("SELECT .+ FROM products").
		WithArgs("prod-x").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetSummary(context.Background(), "prod-x")

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
