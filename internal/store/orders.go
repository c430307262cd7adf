package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Charlsz/localmarket/internal/database"
	"github.com/Charlsz/localmarket/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// InsertOrder stores the order header and fills in its generated columns.
func InsertOrder(ctx context.Context, q database.Querier, order *models.Order) error {
	query := `
		INSERT INTO orders (order_number, user_id, status, payment_status, subtotal, tax, shipping_fee, total,
		                    shipping_name, shipping_phone, shipping_address, shipping_city, shipping_postal_code,
		                    notes, idempotency_key, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW(), 1)
		RETURNING id, created_at, updated_at, version`

	err := q.QueryRowContext(ctx, query,
		order.OrderNumber,
		order.UserID,
		order.Status,
		order.PaymentStatus,
		order.Subtotal,
		order.Tax,
		order.ShippingFee,
		order.Total,
		order.ShippingName,
		order.ShippingPhone,
		order.ShippingAddress,
		order.ShippingCity,
		order.ShippingPostalCode,
		order.Notes,
		order.IdempotencyKey,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt, &order.Version)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}

	return nil
}

func InsertOrderItem(ctx context.Context, q database.Querier, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_id, provider_id, product_name, product_description,
		                         product_image_url, quantity, unit_price, subtotal, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING id, created_at`

	err := q.QueryRowContext(ctx, query,
		item.OrderID,
		item.ProductID,
		item.ProviderID,
		item.ProductName,
		item.ProductDescription,
		item.ProductImageURL,
		item.Quantity,
		item.UnitPrice,
		item.Subtotal,
	).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return fmt.Errorf("create order item: %w", err)
	}

	return nil
}

// GetOrder returns the order header only; see GetOrderWithItems.
func GetOrder(ctx context.Context, q database.Querier, id uuid.UUID) (*models.Order, error) {
	return getOrder(ctx, q, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

// LockOrder reads the order header holding a row lock for the transaction.
func LockOrder(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*models.Order, error) {
	return getOrder(ctx, tx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func GetOrderByIdempotencyKey(ctx context.Context, q database.Querier, userID uuid.UUID, key string) (*models.Order, error) {
	order, err := getOrder(ctx, q,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 AND idempotency_key = $2`,
		userID, key)
	if err != nil {
		return nil, err
	}
	return attachItems(ctx, q, order)
}

func getOrder(ctx context.Context, q database.Querier, query string, args ...any) (*models.Order, error) {
	order := &models.Order{}

	err := q.QueryRowContext(ctx, query, args...).Scan(orderFields(order)...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	return order, nil
}

func GetOrderWithItems(ctx context.Context, q database.Querier, id uuid.UUID) (*models.Order, error) {
	order, err := GetOrder(ctx, q, id)
	if err != nil {
		return nil, err
	}
	return attachItems(ctx, q, order)
}

func attachItems(ctx context.Context, q database.Querier, order *models.Order) (*models.Order, error) {
	items, err := ListOrderItems(ctx, q, []uuid.UUID{order.ID})
	if err != nil {
		return nil, err
	}
	order.Items = items[order.ID]
	if order.Items == nil {
		order.Items = []models.OrderItem{}
	}
	return order, nil
}

// ListOrderItems loads the items of several orders in one round trip, keyed
// by order id.
func ListOrderItems(ctx context.Context, q database.Querier, orderIDs []uuid.UUID) (map[uuid.UUID][]models.OrderItem, error) {
	byOrder := make(map[uuid.UUID][]models.OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return byOrder, nil
	}

	query := `
		SELECT ` + orderItemColumns + `
		FROM order_items
		WHERE order_id = ANY($1::uuid[])
		ORDER BY created_at, id`

	rows, err := q.QueryContext(ctx, query, pq.Array(uuidStrings(orderIDs)))
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(orderItemFields(&item)...); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		byOrder[item.OrderID] = append(byOrder[item.OrderID], item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return byOrder, nil
}

// ListOrdersCursor pages through a buyer's orders newest first using a
// (created_at, id) keyset cursor.
func ListOrdersCursor(ctx context.Context, q database.Querier, userID uuid.UUID, status models.OrderStatus, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	args := []any{userID}
	where := "user_id = $1"
	if status != "" {
		args = append(args, status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if cursorData != nil {
		args = append(args, cursorData.CreatedAt, cursorData.ID)
		where += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", len(args)-1, len(args))
	}
	args = append(args, limit+1)

	query := fmt.Sprintf(`
		SELECT %s
		FROM orders
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d`, orderColumns, where, len(args))

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		var order models.Order
		if err := rows.Scan(orderFields(&order)...); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	ids := make([]uuid.UUID, len(orders))
	for i, order := range orders {
		ids[i] = order.ID
	}
	items, err := ListOrderItems(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
		if orders[i].Items == nil {
			orders[i].Items = []models.OrderItem{}
		}
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// UpdateOrderStatus is a compare-and-set on version: it fails with
// ErrOptimisticLockFailed when the order changed since it was read.
func UpdateOrderStatus(ctx context.Context, q database.Querier, id uuid.UUID, status models.OrderStatus, payment models.PaymentStatus, version int) (*models.Order, error) {
	order := &models.Order{}

	query := `
		UPDATE orders
		SET status = $1, payment_status = $2, version = version + 1, updated_at = NOW()
		WHERE id = $3 AND version = $4
		RETURNING ` + orderColumns

	err := q.QueryRowContext(ctx, query, status, payment, id, version).Scan(orderFields(order)...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOptimisticLockFailed
		}
		return nil, fmt.Errorf("update order status: %w", err)
	}

	return order, nil
}

func IsProviderInOrder(ctx context.Context, q database.Querier, orderID, providerID uuid.UUID) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM order_items WHERE order_id = $1 AND provider_id = $2)",
		orderID, providerID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check provider in order: %w", err)
	}
	return exists, nil
}

// ListProviderOrders returns the orders that contain items of a provider,
// newest first, each carrying only that provider's items. One join replaces
// a lookup per order.
func ListProviderOrders(ctx context.Context, q database.Querier, providerID uuid.UUID, status models.OrderStatus) ([]models.Order, error) {
	args := []any{providerID}
	where := "oi.provider_id = $1"
	if status != "" {
		args = append(args, status)
		where += " AND o.status = $2"
	}

	query := `
		SELECT ` + prefixColumns("o", orderColumns) + `, ` + prefixColumns("oi", orderItemColumns) + `
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE ` + where + `
		ORDER BY o.created_at DESC, o.id DESC, oi.created_at, oi.id`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list provider orders: %w", err)
	}
	defer rows.Close()

	var flat []providerOrderRow
	for rows.Next() {
		var row providerOrderRow
		fields := append(orderFields(&row.order), orderItemFields(&row.item)...)
		if err := rows.Scan(fields...); err != nil {
			return nil, fmt.Errorf("scan provider order: %w", err)
		}
		flat = append(flat, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return groupProviderOrders(flat), nil
}

type providerOrderRow struct {
	order models.Order
	item  models.OrderItem
}

// groupProviderOrders folds joined rows into orders, keeping row order.
func groupProviderOrders(rows []providerOrderRow) []models.Order {
	orders := []models.Order{}
	index := make(map[uuid.UUID]int)

	for _, row := range rows {
		i, ok := index[row.order.ID]
		if !ok {
			order := row.order
			order.Items = []models.OrderItem{}
			orders = append(orders, order)
			i = len(orders) - 1
			index[order.ID] = i
		}
		orders[i].Items = append(orders[i].Items, row.item)
	}

	return orders
}
