package service

import (
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/Charlsz/localmarket/internal/auth"
	"github.com/Charlsz/localmarket/internal/database"
	"github.com/Charlsz/localmarket/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T {
	return &v
}

func TestComputeTotals(t *testing.T) {
	lines := []models.CartItem{
		{Quantity: 3, PriceSnapshot: decimal.NewFromInt(10)},
		{Quantity: 1, PriceSnapshot: decimal.RequireFromString("4.50")},
	}

	t.Run("zero policy", func(t *testing.T) {
		totals := computeTotals(lines, decimal.Zero, decimal.Zero)
		assert.Equal(t, "34.5", totals.Subtotal.String())
		assert.True(t, totals.Tax.IsZero())
		assert.True(t, totals.Total.Equal(totals.Subtotal))
	})

	t.Run("tax rounded to cents plus flat shipping", func(t *testing.T) {
		totals := computeTotals(lines, decimal.RequireFromString("0.19"), decimal.NewFromInt(5000))
		assert.Equal(t, "6.56", totals.Tax.String())
		assert.Equal(t, "5041.06", totals.Total.String())
	})

	t.Run("empty", func(t *testing.T) {
		totals := computeTotals(nil, decimal.RequireFromString("0.19"), decimal.Zero)
		assert.True(t, totals.Total.IsZero())
	})
}

func TestNewOrderNumber(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	pattern := regexp.MustCompile(`^ORD-1700000000123-[0-9A-Z]{7}$`)

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		n := newOrderNumber(now)
		assert.Regexp(t, pattern, n)
		seen[n] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestShippingDetailsValidate(t *testing.T) {
	err := ShippingDetails{ShippingName: "Ana", ShippingPhone: " "}.validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.Contains(t, err.Error(), "shipping_phone")
	assert.Contains(t, err.Error(), "shipping_address")

	assert.NoError(t, ShippingDetails{ShippingName: "Ana", ShippingPhone: "300", ShippingAddress: "Calle 1"}.validate())
}

func TestStockErrorMatchesInsufficientStock(t *testing.T) {
	err := checkStock(&models.Product{Name: "Miel", Stock: 5}, 6)
	require.Error(t, err)
	assert.True(t, errors.Is(err, database.ErrInsufficientStock))
	assert.Contains(t, err.Error(), "Miel")

	assert.NoError(t, checkStock(&models.Product{Stock: 5}, 5))
}

func TestProductInputValidate(t *testing.T) {
	valid := ProductInput{
		Name:     ptr("Queso campesino"),
		Category: ptr(models.CategoryDairy),
		Price:    ptr(decimal.NewFromInt(12000)),
	}
	assert.NoError(t, valid.validate(true))

	tests := map[string]struct {
		in       ProductInput
		creating bool
	}{
		"missing name":     {ProductInput{Category: valid.Category, Price: valid.Price}, true},
		"missing category": {ProductInput{Name: valid.Name, Price: valid.Price}, true},
		"missing price":    {ProductInput{Name: valid.Name, Category: valid.Category}, true},
		"blank name":       {ProductInput{Name: ptr("  ")}, false},
		"unknown category": {ProductInput{Category: ptr(models.Category("toys"))}, false},
		"negative price":   {ProductInput{Price: ptr(decimal.NewFromInt(-1))}, false},
		"negative stock":   {ProductInput{Stock: ptr(-3)}, false},
		"blank unit":       {ProductInput{Unit: ptr("")}, false},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := tc.in.validate(tc.creating)
			assert.True(t, errors.Is(err, ErrInvalidInput), "got %v", err)
		})
	}

	assert.NoError(t, ProductInput{Stock: ptr(0)}.validate(false))
}

func TestCanSeeProduct(t *testing.T) {
	owner := uuid.New()
	inactive := &models.Product{ProviderID: owner, IsActive: false}

	assert.True(t, canSeeProduct(auth.Caller{}, &models.Product{IsActive: true}))
	assert.False(t, canSeeProduct(auth.Caller{}, inactive))
	assert.False(t, canSeeProduct(auth.Caller{ID: uuid.New(), Role: models.RoleClient}, inactive))
	assert.True(t, canSeeProduct(auth.Caller{ID: owner, Role: models.RoleProvider}, inactive))
	assert.True(t, canSeeProduct(auth.Caller{ID: uuid.New(), Role: models.RoleAdmin}, inactive))
}

func TestNormalizePage(t *testing.T) {
	page, size := normalizePage(0, 0)
	assert.Equal(t, 1, page)
	assert.Equal(t, defaultPageSize, size)

	page, size = normalizePage(3, 500)
	assert.Equal(t, 3, page)
	assert.Equal(t, defaultPageSize, size)

	_, size = normalizePage(1, 50)
	assert.Equal(t, 50, size)
}

func TestReviewInputValidate(t *testing.T) {
	assert.NoError(t, ReviewInput{Rating: 5, Comment: "Muy buena miel"}.validate())
	assert.NoError(t, ReviewInput{Rating: 1, Comment: "ñañañañaña"}.validate())

	for _, in := range []ReviewInput{
		{Rating: 0, Comment: "long enough comment"},
		{Rating: 6, Comment: "long enough comment"},
		{Rating: 3, Comment: "   short   "},
	} {
		assert.True(t, errors.Is(in.validate(), ErrInvalidInput))
	}
}

func TestSliceForProvider(t *testing.T) {
	mine := uuid.New()
	order := models.Order{
		ID: uuid.New(),
		Items: []models.OrderItem{
			{ProviderID: mine, ProductName: "Pan"},
			{ProviderID: uuid.New(), ProductName: "Leche"},
		},
	}

	sliced := sliceForProvider(order, mine)
	require.Len(t, sliced.Items, 1)
	assert.Equal(t, "Pan", sliced.Items[0].ProductName)
	assert.Len(t, order.Items, 2)
}

func TestOrderViewFor(t *testing.T) {
	buyer := uuid.New()
	provider := uuid.New()
	order := &models.Order{
		UserID: buyer,
		Items: []models.OrderItem{
			{ProviderID: provider},
			{ProviderID: uuid.New()},
		},
	}

	view, ok := orderViewFor(auth.Caller{ID: buyer, Role: models.RoleClient}, order)
	require.True(t, ok)
	assert.Len(t, view.Items, 2)

	view, ok = orderViewFor(auth.Caller{ID: uuid.New(), Role: models.RoleAdmin}, order)
	require.True(t, ok)
	assert.Len(t, view.Items, 2)

	view, ok = orderViewFor(auth.Caller{ID: provider, Role: models.RoleProvider}, order)
	require.True(t, ok)
	assert.Len(t, view.Items, 1)

	_, ok = orderViewFor(auth.Caller{ID: uuid.New(), Role: models.RoleProvider}, order)
	assert.False(t, ok)

	_, ok = orderViewFor(auth.Caller{ID: uuid.New(), Role: models.RoleClient}, order)
	assert.False(t, ok)
}

func TestAuthorizeStatusUpdate(t *testing.T) {
	cancel := StatusUpdate{Status: ptr(models.OrderStatusCancelled)}
	confirm := StatusUpdate{Status: ptr(models.OrderStatusConfirmed)}
	refund := StatusUpdate{PaymentStatus: ptr(models.PaymentStatusRefunded)}

	admin := orderActor{admin: true}
	provider := orderActor{provider: true}
	buyer := orderActor{buyer: true}
	stranger := orderActor{}

	assert.NoError(t, authorizeStatusUpdate(admin, models.OrderStatusShipped, confirm))
	assert.NoError(t, authorizeStatusUpdate(provider, models.OrderStatusPending, refund))
	assert.NoError(t, authorizeStatusUpdate(buyer, models.OrderStatusPending, cancel))

	assert.ErrorIs(t, authorizeStatusUpdate(buyer, models.OrderStatusConfirmed, cancel), ErrForbidden)
	assert.ErrorIs(t, authorizeStatusUpdate(buyer, models.OrderStatusPending, confirm), ErrForbidden)
	assert.ErrorIs(t, authorizeStatusUpdate(buyer, models.OrderStatusPending, refund), ErrForbidden)
	assert.ErrorIs(t, authorizeStatusUpdate(stranger, models.OrderStatusPending, cancel), database.ErrOrderNotFound)
}

func TestNextStatuses(t *testing.T) {
	order := &models.Order{Status: models.OrderStatusPending, PaymentStatus: models.PaymentStatusCompleted}

	status, payment, err := nextStatuses(order, StatusUpdate{Status: ptr(models.OrderStatusConfirmed)})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, status)
	assert.Equal(t, models.PaymentStatusCompleted, payment)

	_, _, err = nextStatuses(order, StatusUpdate{Status: ptr(models.OrderStatusShipped)})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, _, err = nextStatuses(order, StatusUpdate{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, _, err = nextStatuses(order, StatusUpdate{PaymentStatus: ptr(models.PaymentStatus("bogus"))})
	assert.ErrorIs(t, err, ErrInvalidInput)

	status, payment, err = nextStatuses(order, StatusUpdate{PaymentStatus: ptr(models.PaymentStatusRefunded)})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, status)
	assert.Equal(t, models.PaymentStatusRefunded, payment)

	delivered := &models.Order{Status: models.OrderStatusDelivered}
	_, _, err = nextStatuses(delivered, StatusUpdate{Status: ptr(models.OrderStatusCancelled)})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSummarizeSales(t *testing.T) {
	orders := []models.Order{
		{Status: models.OrderStatusPending, Items: []models.OrderItem{
			{Quantity: 2, Subtotal: decimal.NewFromInt(20)},
			{Quantity: 1, Subtotal: decimal.RequireFromString("7.50")},
		}},
		{Status: models.OrderStatusCancelled, Items: []models.OrderItem{
			{Quantity: 9, Subtotal: decimal.NewFromInt(90)},
		}},
		{Status: models.OrderStatusDelivered, Items: []models.OrderItem{
			{Quantity: 1, Subtotal: decimal.NewFromInt(5)},
		}},
	}

	summary := summarizeSales(orders)
	assert.Equal(t, 2, summary.OrderCount)
	assert.Equal(t, 4, summary.UnitsSold)
	assert.Equal(t, "32.5", summary.Revenue.String())

	assert.True(t, summarizeSales(nil).Revenue.IsZero())
}

func TestInputErrorMessage(t *testing.T) {
	err := invalidInput("quantity must be at least %d", 1)
	assert.Equal(t, "quantity must be at least 1", err.Error())
	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.False(t, strings.Contains(err.Error(), "invalid input"))
}
