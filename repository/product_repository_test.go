package repository

import (
	"context"
	"testing"

	"github.com/farmlink/orders-api/models"
	"github.com/farmlink/orders-api/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductRepository(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewProductRepository(db)
	ctx := context.Background()
	farmer := testutil.CreateUser(t, db, "auth0|farmer", models.RoleFarmer)

	listed := &models.Product{FarmerID: farmer.ID, Name: "Mangoes", Unit: "kg", Price: decimal.RequireFromString("120.50"), Stock: 5, Listed: true}
	require.NoError(t, repo.Create(ctx, listed))
	unlisted := &models.Product{FarmerID: farmer.ID, Name: "Onions", Unit: "kg", Price: decimal.RequireFromString("30"), Stock: 0, Listed: false}
	require.NoError(t, repo.Create(ctx, unlisted))
	// gorm skips zero-value bools on insert when a default exists
	require.NoError(t, db.Model(unlisted).Update("listed", false).Error)

	found, err := repo.FindProduct(ctx, listed.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mangoes", found.Name)
	assert.True(t, decimal.RequireFromString("120.5").Equal(found.Price))

	_, err = repo.FindProduct(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)

	products, total, err := repo.ListListed(ctx, 0, Page{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, products, 1)

	products, _, err = repo.ListListed(ctx, farmer.ID+1, Page{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, products)
}
