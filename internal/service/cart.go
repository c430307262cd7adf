package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Charlsz/localmarket/internal/auth"
	"github.com/Charlsz/localmarket/internal/database"
	"github.com/Charlsz/localmarket/internal/models"
	"github.com/Charlsz/localmarket/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type CartService struct {
	db       *sql.DB
	currency string
	logger   *zap.Logger
}

func NewCartService(db *sql.DB, currency string, logger *zap.Logger) *CartService {
	return &CartService{
		db:       db,
		currency: currency,
		logger:   logger,
	}
}

// GetCart returns the caller's cart with totals. A caller that never added
// anything gets an empty view without a cart row being created.
func (s *CartService) GetCart(ctx context.Context, caller auth.Caller) (*models.CartView, error) {
	view := &models.CartView{
		Cart:     models.Cart{UserID: caller.ID},
		Items:    []models.CartItem{},
		Total:    decimal.Zero,
		Currency: s.currency,
	}

	cart, err := store.GetCartByUser(ctx, s.db, caller.ID)
	if errors.Is(err, database.ErrCartNotFound) {
		return view, nil
	}
	if err != nil {
		return nil, err
	}

	items, err := store.ListCartItems(ctx, s.db, cart.ID)
	if err != nil {
		return nil, err
	}

	view.Cart = *cart
	view.Items = items
	view.Total = models.CartTotal(items)
	view.ItemCount = models.CartItemCount(items)
	view.LineCount = len(items)
	return view, nil
}

// AddItem puts quantity units of a product in the caller's cart, merging
// with an existing line. It reports whether a new line was created. The
// product row stays share-locked while the stock check runs so the check
// cannot race a concurrent checkout.
func (s *CartService) AddItem(ctx context.Context, caller auth.Caller, productID uuid.UUID, quantity int) (*models.CartItem, bool, error) {
	if err := requireProfile(caller); err != nil {
		return nil, false, err
	}
	if quantity < 1 {
		return nil, false, invalidInput("quantity must be at least 1")
	}

	var (
		item    *models.CartItem
		created bool
	)

	err := database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		product, err := store.LockProductShared(ctx, tx, productID)
		if err != nil {
			return err
		}
		if !product.IsActive {
			return database.ErrProductNotFound
		}

		cart, err := store.GetOrCreateCart(ctx, tx, caller.ID)
		if err != nil {
			return err
		}

		existing, err := store.FindCartItemForUpdate(ctx, tx, cart.ID, productID)
		switch {
		case err == nil:
			if err := checkStock(product, existing.Quantity+quantity); err != nil {
				return err
			}
			item, err = store.UpdateCartItemQuantity(ctx, tx, existing.ID, existing.Quantity+quantity)
			if err != nil {
				return err
			}
			created = false
		case errors.Is(err, database.ErrCartItemNotFound):
			if err := checkStock(product, quantity); err != nil {
				return err
			}
			item, err = store.InsertCartItem(ctx, tx, cart.ID, productID, quantity, product.Price)
			if err != nil {
				return err
			}
			created = true
		default:
			return err
		}

		item.Product = product
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return item, created, nil
}

// UpdateItem sets the quantity of a line of the caller's cart, re-checked
// against live stock.
func (s *CartService) UpdateItem(ctx context.Context, caller auth.Caller, itemID uuid.UUID, quantity int) (*models.CartItem, error) {
	if quantity < 1 {
		return nil, invalidInput("quantity must be at least 1")
	}

	var item *models.CartItem

	err := database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		current, ownerID, err := store.GetCartItem(ctx, tx, itemID)
		if err != nil {
			return err
		}
		if ownerID != caller.ID {
			return ErrForbidden
		}

		// Product before line, the same order as AddItem and checkout.
		product, err := store.LockProductShared(ctx, tx, current.ProductID)
		if err != nil {
			return err
		}

		if _, err := store.FindCartItemForUpdate(ctx, tx, current.CartID, current.ProductID); err != nil {
			return err
		}
		if err := checkStock(product, quantity); err != nil {
			return err
		}

		item, err = store.UpdateCartItemQuantity(ctx, tx, itemID, quantity)
		if err != nil {
			return err
		}
		item.Product = product
		return nil
	})
	if err != nil {
		return nil, err
	}

	return item, nil
}

// RemoveItem is idempotent: removing a line that no longer exists succeeds.
// Only a line of someone else's cart is refused.
func (s *CartService) RemoveItem(ctx context.Context, caller auth.Caller, itemID uuid.UUID) error {
	removed, err := store.DeleteCartItem(ctx, s.db, itemID, caller.ID)
	if err != nil {
		return err
	}
	if removed > 0 {
		return nil
	}

	exists, err := store.CartItemExists(ctx, s.db, itemID)
	if err != nil {
		return err
	}
	if exists {
		return ErrForbidden
	}
	return nil
}

func (s *CartService) ClearCart(ctx context.Context, caller auth.Caller) error {
	return store.ClearCartForUser(ctx, s.db, caller.ID)
}

func checkStock(p *models.Product, quantity int) error {
	if quantity > p.Stock {
		return &StockError{
			ProductID:   p.ID,
			ProductName: p.Name,
			Available:   p.Stock,
			Requested:   quantity,
		}
	}
	return nil
}
