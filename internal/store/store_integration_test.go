//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Charlsz/localmarket/internal/database"
	"github.com/Charlsz/localmarket/internal/models"
	"github.com/Charlsz/localmarket/internal/store"
	"github.com/Charlsz/localmarket/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentStockDecrement(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()

	provider := testutil.CreateProfile(t, db, models.RoleProvider)
	product := testutil.CreateProduct(t, db, provider.ID, "Huevos", 100, 10)

	concurrency := 20
	var wg sync.WaitGroup
	results := make(chan error, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- store.DecrementStock(ctx, db, product.ID, 1)
		}()
	}

	wg.Wait()
	close(results)

	successCount := 0
	insufficientStockCount := 0
	for err := range results {
		switch {
		case err == nil:
			successCount++
		case errors.Is(err, database.ErrInsufficientStock):
			insufficientStockCount++
		default:
			t.Errorf("Unexpected error: %v", err)
		}
	}

	assert.Equal(t, 10, successCount)
	assert.Equal(t, 10, insufficientStockCount)

	after, err := store.GetProduct(ctx, db, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, after.Stock)
}

func TestUpdateProductOptimisticLocking(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()

	provider := testutil.CreateProfile(t, db, models.RoleProvider)
	product := testutil.CreateProduct(t, db, provider.ID, "Arepas", 3000, 10)

	stock := 8
	version := product.Version
	updated, err := store.UpdateProduct(ctx, db, product.ID, store.ProductUpdate{Stock: &stock, ExpectedVersion: &version})
	require.NoError(t, err)
	assert.Equal(t, 8, updated.Stock)
	assert.Equal(t, version+1, updated.Version)

	stale := 9
	_, err = store.UpdateProduct(ctx, db, product.ID, store.ProductUpdate{Stock: &stale, ExpectedVersion: &version})
	assert.ErrorIs(t, err, database.ErrOptimisticLockFailed)

	after, err := store.GetProduct(ctx, db, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, after.Stock)
}

func TestListProductsFilters(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()

	provider := testutil.CreateProfile(t, db, models.RoleProvider)
	testutil.CreateProduct(t, db, provider.ID, "Miel de abejas", 20000, 5)
	testutil.CreateProduct(t, db, provider.ID, "Mermelada 100%", 9000, 5)
	hidden := testutil.CreateProduct(t, db, provider.ID, "Miel vieja", 1000, 5)
	require.NoError(t, store.SetProductActive(ctx, db, hidden.ID, false))

	page, err := store.ListProducts(ctx, db, store.ProductFilter{Search: "miel", ActiveOnly: true}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)

	page, err = store.ListProducts(ctx, db, store.ProductFilter{Search: "%", ActiveOnly: true}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)

	page, err = store.ListProducts(ctx, db, store.ProductFilter{ActiveOnly: true}, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	assert.Equal(t, 2, page.TotalPages)

	all, err := store.ListProviderProducts(ctx, db, provider.ID, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestListOrdersCursor(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()

	buyer := testutil.CreateProfile(t, db, models.RoleClient)

	for i := 0; i < 15; i++ {
		order := &models.Order{
			OrderNumber:     "ORD-TEST-" + string(rune('A'+i)),
			UserID:          buyer.ID,
			Status:          models.OrderStatusPending,
			PaymentStatus:   models.PaymentStatusCompleted,
			Subtotal:        decimal.NewFromInt(10),
			Tax:             decimal.Zero,
			ShippingFee:     decimal.Zero,
			Total:           decimal.NewFromInt(10),
			ShippingName:    "Ana",
			ShippingPhone:   "300",
			ShippingAddress: "Calle 1",
		}
		require.NoError(t, store.InsertOrder(ctx, db, order))
	}

	page1, err := store.ListOrdersCursor(ctx, db, buyer.ID, "", "", 10)
	require.NoError(t, err)
	assert.True(t, page1.HasMore)
	assert.NotEmpty(t, page1.NextCursor)
	assert.Len(t, page1.Items, 10)

	page2, err := store.ListOrdersCursor(ctx, db, buyer.ID, "", page1.NextCursor, 10)
	require.NoError(t, err)
	assert.False(t, page2.HasMore)
	assert.Len(t, page2.Items, 5)

	seen := map[string]bool{}
	for _, page := range []*store.CursorPage{page1, page2} {
		for _, o := range page.Items.([]models.Order) {
			assert.False(t, seen[o.OrderNumber], "duplicate %s", o.OrderNumber)
			seen[o.OrderNumber] = true
		}
	}
	assert.Len(t, seen, 15)
}

func TestCreateReviewOncePerUser(t *testing.T) {
	db := testutil.NewPostgres(t)
	ctx := context.Background()

	provider := testutil.CreateProfile(t, db, models.RoleProvider)
	buyer := testutil.CreateProfile(t, db, models.RoleClient)
	product := testutil.CreateProduct(t, db, provider.ID, "Queso", 12000, 3)

	comment := "Excelente queso fresco"
	_, err := store.CreateReview(ctx, db, &models.Review{ProductID: product.ID, UserID: buyer.ID, Rating: 4, Comment: &comment})
	require.NoError(t, err)

	_, err = store.CreateReview(ctx, db, &models.Review{ProductID: product.ID, UserID: buyer.ID, Rating: 5, Comment: &comment})
	assert.ErrorIs(t, err, database.ErrAlreadyReviewed)

	view, err := store.GetProductView(ctx, db, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, view.ReviewCount)
	assert.True(t, view.AvgRating.Equal(decimal.NewFromInt(4)))
}
