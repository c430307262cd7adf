package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/Charlsz/localmarket/internal/auth"
	"github.com/Charlsz/localmarket/internal/config"
	"github.com/Charlsz/localmarket/internal/database"
	"github.com/Charlsz/localmarket/internal/events"
	"github.com/Charlsz/localmarket/internal/models"
	"github.com/Charlsz/localmarket/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const idempotencyIndex = "idx_orders_idempotency"

type ShippingDetails struct {
	ShippingName       string  `json:"shipping_name"`
	ShippingPhone      string  `json:"shipping_phone"`
	ShippingAddress    string  `json:"shipping_address"`
	ShippingCity       *string `json:"shipping_city"`
	ShippingPostalCode *string `json:"shipping_postal_code"`
	Notes              *string `json:"notes"`
}

func (d ShippingDetails) validate() error {
	var missing []string
	if strings.TrimSpace(d.ShippingName) == "" {
		missing = append(missing, "shipping_name")
	}
	if strings.TrimSpace(d.ShippingPhone) == "" {
		missing = append(missing, "shipping_phone")
	}
	if strings.TrimSpace(d.ShippingAddress) == "" {
		missing = append(missing, "shipping_address")
	}
	if len(missing) > 0 {
		return invalidInput("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

type Totals struct {
	Subtotal    decimal.Decimal
	Tax         decimal.Decimal
	ShippingFee decimal.Decimal
	Total       decimal.Decimal
}

func computeTotals(lines []models.CartItem, taxRate, shippingFee decimal.Decimal) Totals {
	subtotal := models.CartTotal(lines)
	tax := subtotal.Mul(taxRate).Round(2)

	return Totals{
		Subtotal:    subtotal,
		Tax:         tax,
		ShippingFee: shippingFee,
		Total:       subtotal.Add(tax).Add(shippingFee),
	}
}

const orderTokenAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// newOrderNumber formats ORD-<epoch millis>-<7 base36 chars>.
func newOrderNumber(now time.Time) string {
	token := make([]byte, 7)
	for i := range token {
		token[i] = orderTokenAlphabet[rand.Intn(len(orderTokenAlphabet))]
	}
	return fmt.Sprintf("ORD-%d-%s", now.UnixMilli(), token)
}

type CheckoutService struct {
	db        *sql.DB
	cfg       config.CheckoutConfig
	publisher events.Publisher
	logger    *zap.Logger
}

func NewCheckoutService(db *sql.DB, cfg config.CheckoutConfig, publisher events.Publisher, logger *zap.Logger) *CheckoutService {
	return &CheckoutService{
		db:        db,
		cfg:       cfg,
		publisher: publisher,
		logger:    logger,
	}
}

// Checkout turns the caller's cart into an order in one serializable
// transaction: stock is checked and decremented, items are copied and the
// cart is emptied, or nothing happens at all. With an idempotency key a
// repeated request returns the order created first and created is false.
func (s *CheckoutService) Checkout(ctx context.Context, caller auth.Caller, details ShippingDetails, idempotencyKey string) (order *models.Order, created bool, err error) {
	if err := requireProfile(caller); err != nil {
		return nil, false, err
	}
	if err := details.validate(); err != nil {
		return nil, false, err
	}

	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey != "" {
		existing, err := store.GetOrderByIdempotencyKey(ctx, s.db, caller.ID, idempotencyKey)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, database.ErrOrderNotFound) {
			return nil, false, err
		}
	}

	opts := database.TxOptions{
		IsolationLevel: sql.LevelSerializable,
		MaxRetries:     s.cfg.MaxRetries,
	}

	err = database.WithRetry(ctx, s.db, opts, func(tx *sql.Tx) error {
		var err error
		order, err = s.placeOrder(ctx, tx, caller, details, idempotencyKey)
		return err
	})
	if err != nil {
		if idempotencyKey != "" && database.IsUniqueViolation(err, idempotencyIndex) {
			existing, lookupErr := store.GetOrderByIdempotencyKey(ctx, s.db, caller.ID, idempotencyKey)
			if lookupErr == nil {
				return existing, false, nil
			}
		}
		return nil, false, err
	}

	s.logger.Info("Order placed",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.String("user_id", caller.ID.String()),
		zap.Int("items", len(order.Items)),
		zap.String("total", order.Total.StringFixed(2)))

	if err := s.publisher.PublishOrderPlaced(ctx, order); err != nil {
		s.logger.Error("Failed to publish order placed event",
			zap.String("order_id", order.ID.String()),
			zap.Error(err))
	}

	return order, true, nil
}

// placeOrder runs once per transaction attempt and must not keep state
// across attempts.
func (s *CheckoutService) placeOrder(ctx context.Context, tx *sql.Tx, caller auth.Caller, details ShippingDetails, idempotencyKey string) (*models.Order, error) {
	cart, err := store.GetCartByUser(ctx, tx, caller.ID)
	if errors.Is(err, database.ErrCartNotFound) {
		return nil, ErrEmptyCart
	}
	if err != nil {
		return nil, err
	}

	lines, err := store.LockCartLines(ctx, tx, cart.ID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	for _, line := range lines {
		if !line.Product.IsActive {
			return nil, invalidInput("product %q is no longer available", line.Product.Name)
		}
		if err := checkStock(line.Product, line.Quantity); err != nil {
			return nil, err
		}
	}

	totals := computeTotals(lines, s.cfg.TaxRate, s.cfg.ShippingFee)

	order := &models.Order{
		OrderNumber:        newOrderNumber(time.Now()),
		UserID:             caller.ID,
		Status:             models.OrderStatusPending,
		PaymentStatus:      models.PaymentStatusCompleted,
		Subtotal:           totals.Subtotal,
		Tax:                totals.Tax,
		ShippingFee:        totals.ShippingFee,
		Total:              totals.Total,
		ShippingName:       strings.TrimSpace(details.ShippingName),
		ShippingPhone:      strings.TrimSpace(details.ShippingPhone),
		ShippingAddress:    strings.TrimSpace(details.ShippingAddress),
		ShippingCity:       details.ShippingCity,
		ShippingPostalCode: details.ShippingPostalCode,
		Notes:              details.Notes,
	}
	if idempotencyKey != "" {
		order.IdempotencyKey = &idempotencyKey
	}

	if err := store.InsertOrder(ctx, tx, order); err != nil {
		return nil, err
	}

	order.Items = make([]models.OrderItem, 0, len(lines))
	for _, line := range lines {
		item := models.OrderItem{
			OrderID:            order.ID,
			ProductID:          line.ProductID,
			ProviderID:         line.Product.ProviderID,
			ProductName:        line.Product.Name,
			ProductDescription: line.Product.Description,
			ProductImageURL:    line.Product.ImageURL,
			Quantity:           line.Quantity,
			UnitPrice:          line.PriceSnapshot,
			Subtotal:           line.Subtotal(),
		}

		if err := store.InsertOrderItem(ctx, tx, &item); err != nil {
			return nil, err
		}

		if err := store.DecrementStock(ctx, tx, line.ProductID, line.Quantity); err != nil {
			if errors.Is(err, database.ErrInsufficientStock) {
				return nil, &StockError{
					ProductID:   line.ProductID,
					ProductName: line.Product.Name,
					Available:   line.Product.Stock,
					Requested:   line.Quantity,
				}
			}
			return nil, err
		}

		order.Items = append(order.Items, item)
	}

	if err := store.ClearCart(ctx, tx, cart.ID); err != nil {
		return nil, err
	}

	return order, nil
}
