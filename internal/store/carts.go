package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Charlsz/localmarket/internal/database"
	"github.com/Charlsz/localmarket/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const cartColumns = `id, user_id, created_at, updated_at`

const cartItemColumns = `id, cart_id, product_id, quantity, price_snapshot, created_at, updated_at`

func cartItemFields(i *models.CartItem) []any {
	return []any{
		&i.ID,
		&i.CartID,
		&i.ProductID,
		&i.Quantity,
		&i.PriceSnapshot,
		&i.CreatedAt,
		&i.UpdatedAt,
	}
}

func GetCartByUser(ctx context.Context, q database.Querier, userID uuid.UUID) (*models.Cart, error) {
	cart := &models.Cart{}

	err := q.QueryRowContext(ctx,
		`SELECT `+cartColumns+` FROM carts WHERE user_id = $1`,
		userID).Scan(&cart.ID, &cart.UserID, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCartNotFound
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}

	return cart, nil
}

// GetOrCreateCart returns the user's cart, creating it in the same statement
// when absent. Safe under concurrent first requests.
func GetOrCreateCart(ctx context.Context, q database.Querier, userID uuid.UUID) (*models.Cart, error) {
	cart := &models.Cart{}

	query := `
		INSERT INTO carts (user_id, created_at, updated_at)
		VALUES ($1, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING ` + cartColumns

	err := q.QueryRowContext(ctx, query, userID).Scan(&cart.ID, &cart.UserID, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get or create cart: %w", err)
	}

	return cart, nil
}

func ListCartItems(ctx context.Context, q database.Querier, cartID uuid.UUID) ([]models.CartItem, error) {
	query := `
		SELECT ` + prefixColumns("ci", cartItemColumns) + `, ` + prefixColumns("p", productColumns) + `
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
		ORDER BY ci.created_at, ci.id`

	return queryCartLines(ctx, q, query, cartID)
}

// LockCartLines loads the lines of a cart together with their products and
// locks the product rows in id order, which keeps concurrent checkouts from
// deadlocking on each other.
func LockCartLines(ctx context.Context, tx *sql.Tx, cartID uuid.UUID) ([]models.CartItem, error) {
	query := `
		SELECT ` + prefixColumns("ci", cartItemColumns) + `, ` + prefixColumns("p", productColumns) + `
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
		ORDER BY p.id
		FOR UPDATE OF p`

	return queryCartLines(ctx, tx, query, cartID)
}

func queryCartLines(ctx context.Context, q database.Querier, query string, args ...any) ([]models.CartItem, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	defer rows.Close()

	items := []models.CartItem{}
	for rows.Next() {
		var item models.CartItem
		item.Product = &models.Product{}
		fields := append(cartItemFields(&item), productFields(item.Product)...)
		if err := rows.Scan(fields...); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// GetCartItem returns a cart line with its product and the owner of its cart.
func GetCartItem(ctx context.Context, q database.Querier, itemID uuid.UUID) (*models.CartItem, uuid.UUID, error) {
	var ownerID uuid.UUID
	item := &models.CartItem{Product: &models.Product{}}

	query := `
		SELECT c.user_id, ` + prefixColumns("ci", cartItemColumns) + `, ` + prefixColumns("p", productColumns) + `
		FROM cart_items ci
		JOIN carts c ON c.id = ci.cart_id
		JOIN products p ON p.id = ci.product_id
		WHERE ci.id = $1`

	fields := append([]any{&ownerID}, cartItemFields(item)...)
	fields = append(fields, productFields(item.Product)...)

	err := q.QueryRowContext(ctx, query, itemID).Scan(fields...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, uuid.Nil, database.ErrCartItemNotFound
		}
		return nil, uuid.Nil, fmt.Errorf("get cart item: %w", err)
	}

	return item, ownerID, nil
}

// FindCartItemForUpdate returns the line of product in cart, row-locked.
func FindCartItemForUpdate(ctx context.Context, tx *sql.Tx, cartID, productID uuid.UUID) (*models.CartItem, error) {
	item := &models.CartItem{}

	err := tx.QueryRowContext(ctx,
		`SELECT `+cartItemColumns+`
		 FROM cart_items
		 WHERE cart_id = $1 AND product_id = $2
		 FOR UPDATE`,
		cartID, productID).Scan(cartItemFields(item)...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCartItemNotFound
		}
		return nil, fmt.Errorf("find cart item: %w", err)
	}

	return item, nil
}

func InsertCartItem(ctx context.Context, q database.Querier, cartID, productID uuid.UUID, quantity int, price decimal.Decimal) (*models.CartItem, error) {
	item := &models.CartItem{}

	query := `
		INSERT INTO cart_items (cart_id, product_id, quantity, price_snapshot, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING ` + cartItemColumns

	err := q.QueryRowContext(ctx, query, cartID, productID, quantity, price).Scan(cartItemFields(item)...)
	if err != nil {
		return nil, fmt.Errorf("insert cart item: %w", err)
	}

	return item, nil
}

func UpdateCartItemQuantity(ctx context.Context, q database.Querier, itemID uuid.UUID, quantity int) (*models.CartItem, error) {
	item := &models.CartItem{}

	query := `
		UPDATE cart_items
		SET quantity = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING ` + cartItemColumns

	err := q.QueryRowContext(ctx, query, quantity, itemID).Scan(cartItemFields(item)...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCartItemNotFound
		}
		return nil, fmt.Errorf("update cart item: %w", err)
	}

	return item, nil
}

// DeleteCartItem removes a line only if it belongs to the user's cart and
// reports how many rows went away.
func DeleteCartItem(ctx context.Context, q database.Querier, itemID, userID uuid.UUID) (int64, error) {
	result, err := q.ExecContext(ctx,
		`DELETE FROM cart_items
		 WHERE id = $1
		   AND cart_id IN (SELECT id FROM carts WHERE user_id = $2)`,
		itemID, userID)
	if err != nil {
		return 0, fmt.Errorf("delete cart item: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}

	return rowsAffected, nil
}

func CartItemExists(ctx context.Context, q database.Querier, itemID uuid.UUID) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM cart_items WHERE id = $1)",
		itemID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check cart item exists: %w", err)
	}
	return exists, nil
}

func ClearCart(ctx context.Context, q database.Querier, cartID uuid.UUID) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func ClearCartForUser(ctx context.Context, q database.Querier, userID uuid.UUID) error {
	_, err := q.ExecContext(ctx,
		`DELETE FROM cart_items
		 WHERE cart_id IN (SELECT id FROM carts WHERE user_id = $1)`,
		userID)
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
