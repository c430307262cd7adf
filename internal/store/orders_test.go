package store

import (
	"testing"

	"github.com/Charlsz/localmarket/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupProviderOrders(t *testing.T) {
	newer := models.Order{ID: uuid.New(), OrderNumber: "ORD-2"}
	older := models.Order{ID: uuid.New(), OrderNumber: "ORD-1"}

	rows := []providerOrderRow{
		{order: newer, item: models.OrderItem{ID: uuid.New(), OrderID: newer.ID, ProductName: "Miel"}},
		{order: newer, item: models.OrderItem{ID: uuid.New(), OrderID: newer.ID, ProductName: "Queso"}},
		{order: older, item: models.OrderItem{ID: uuid.New(), OrderID: older.ID, ProductName: "Pan"}},
	}

	orders := groupProviderOrders(rows)

	require.Len(t, orders, 2)
	assert.Equal(t, "ORD-2", orders[0].OrderNumber)
	require.Len(t, orders[0].Items, 2)
	assert.Equal(t, "Miel", orders[0].Items[0].ProductName)
	assert.Equal(t, "Queso", orders[0].Items[1].ProductName)
	assert.Equal(t, "ORD-1", orders[1].OrderNumber)
	require.Len(t, orders[1].Items, 1)
}

func TestGroupProviderOrdersEmpty(t *testing.T) {
	orders := groupProviderOrders(nil)
	assert.NotNil(t, orders)
	assert.Empty(t, orders)
}
