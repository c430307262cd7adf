package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/Charlsz/localmarket/internal/auth"
	"github.com/Charlsz/localmarket/internal/database"
	"github.com/Charlsz/localmarket/internal/events"
	"github.com/Charlsz/localmarket/internal/models"
	"github.com/Charlsz/localmarket/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StatusUpdate changes the fulfillment and/or payment status of an order.
// Version, when given, must match the order's current version.
type StatusUpdate struct {
	Status        *models.OrderStatus   `json:"status"`
	PaymentStatus *models.PaymentStatus `json:"payment_status"`
	Version       *int                  `json:"version"`
}

type OrderService struct {
	db        *sql.DB
	publisher events.Publisher
	logger    *zap.Logger
}

func NewOrderService(db *sql.DB, publisher events.Publisher, logger *zap.Logger) *OrderService {
	return &OrderService{
		db:        db,
		publisher: publisher,
		logger:    logger,
	}
}

// ListOrders pages through the caller's own orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, caller auth.Caller, status models.OrderStatus, cursor string, limit int) (*store.CursorPage, error) {
	if status != "" && !status.Valid() {
		return nil, invalidInput("unknown status %q", status)
	}
	if _, err := store.DecodeCursor(cursor); err != nil {
		return nil, invalidInput("invalid cursor")
	}
	if limit < 1 || limit > maxPageSize {
		limit = defaultPageSize
	}

	return store.ListOrdersCursor(ctx, s.db, caller.ID, status, cursor, limit)
}

// GetOrder shows the whole order to its buyer and to admins, and to an
// involved provider only the provider's own items. Everyone else gets
// not found.
func (s *OrderService) GetOrder(ctx context.Context, caller auth.Caller, id uuid.UUID) (*models.Order, error) {
	order, err := store.GetOrderWithItems(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	view, ok := orderViewFor(caller, order)
	if !ok {
		return nil, database.ErrOrderNotFound
	}
	return view, nil
}

func orderViewFor(caller auth.Caller, order *models.Order) (*models.Order, bool) {
	if caller.IsAdmin() || order.UserID == caller.ID {
		return order, true
	}
	if !caller.IsProvider() {
		return nil, false
	}

	sliced := sliceForProvider(*order, caller.ID)
	if len(sliced.Items) == 0 {
		return nil, false
	}
	return &sliced, true
}

// sliceForProvider keeps the order header and only the items of providerID.
func sliceForProvider(order models.Order, providerID uuid.UUID) models.Order {
	items := []models.OrderItem{}
	for _, item := range order.Items {
		if item.ProviderID == providerID {
			items = append(items, item)
		}
	}
	order.Items = items
	return order
}

type orderActor struct {
	admin    bool
	provider bool
	buyer    bool
}

// authorizeStatusUpdate decides whether actor may apply u to an order
// currently in status current.
func authorizeStatusUpdate(actor orderActor, current models.OrderStatus, u StatusUpdate) error {
	if actor.admin || actor.provider {
		return nil
	}
	if !actor.buyer {
		return database.ErrOrderNotFound
	}
	if u.PaymentStatus != nil {
		return ErrForbidden
	}
	if u.Status == nil || *u.Status != models.OrderStatusCancelled || current != models.OrderStatusPending {
		return ErrForbidden
	}
	return nil
}

// nextStatuses validates u against the order and returns the resulting
// status pair.
func nextStatuses(order *models.Order, u StatusUpdate) (models.OrderStatus, models.PaymentStatus, error) {
	status := order.Status
	payment := order.PaymentStatus

	if u.Status == nil && u.PaymentStatus == nil {
		return "", "", invalidInput("status or payment_status is required")
	}

	if u.Status != nil && *u.Status != order.Status {
		if !u.Status.Valid() {
			return "", "", invalidInput("unknown status %q", *u.Status)
		}
		if !order.Status.CanTransitionTo(*u.Status) {
			return "", "", fmt.Errorf("%w: %s to %s", ErrInvalidTransition, order.Status, *u.Status)
		}
		status = *u.Status
	}

	if u.PaymentStatus != nil {
		if !u.PaymentStatus.Valid() {
			return "", "", invalidInput("unknown payment status %q", *u.PaymentStatus)
		}
		payment = *u.PaymentStatus
	}

	return status, payment, nil
}

// UpdateStatus moves an order through its workflow. Cancelling puts the
// stock of every item back in the same transaction.
func (s *OrderService) UpdateStatus(ctx context.Context, caller auth.Caller, id uuid.UUID, u StatusUpdate) (*models.Order, error) {
	var (
		updated  *models.Order
		previous models.OrderStatus
	)

	err := database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		order, err := store.LockOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		previous = order.Status

		actor := orderActor{
			admin: caller.IsAdmin(),
			buyer: order.UserID == caller.ID,
		}
		if caller.IsProvider() {
			actor.provider, err = store.IsProviderInOrder(ctx, tx, id, caller.ID)
			if err != nil {
				return err
			}
		}

		if err := authorizeStatusUpdate(actor, order.Status, u); err != nil {
			return err
		}

		status, payment, err := nextStatuses(order, u)
		if err != nil {
			return err
		}

		if u.Version != nil && *u.Version != order.Version {
			return database.ErrOptimisticLockFailed
		}

		updated, err = store.UpdateOrderStatus(ctx, tx, id, status, payment, order.Version)
		if err != nil {
			return err
		}

		items, err := store.ListOrderItems(ctx, tx, []uuid.UUID{id})
		if err != nil {
			return err
		}
		updated.Items = items[id]
		if updated.Items == nil {
			updated.Items = []models.OrderItem{}
		}

		if status == models.OrderStatusCancelled && previous != models.OrderStatusCancelled {
			return restock(ctx, tx, updated.Items)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if updated.Status != previous {
		s.logger.Info("Order status changed",
			zap.String("order_id", id.String()),
			zap.String("from", string(previous)),
			zap.String("to", string(updated.Status)),
			zap.String("actor_id", caller.ID.String()))

		if err := s.publisher.PublishOrderStatusChanged(ctx, updated, previous, caller.ID); err != nil {
			s.logger.Error("Failed to publish status changed event",
				zap.String("order_id", id.String()),
				zap.Error(err))
		}
	}

	view, _ := orderViewFor(caller, updated)
	if view == nil {
		view = updated
	}
	return view, nil
}

// restock returns the units of items to their products, visiting products
// in id order like checkout does.
func restock(ctx context.Context, tx *sql.Tx, items []models.OrderItem) error {
	quantities := make(map[uuid.UUID]int)
	for _, item := range items {
		quantities[item.ProductID] += item.Quantity
	}

	ids := make([]uuid.UUID, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	for _, id := range ids {
		if err := store.IncrementStock(ctx, tx, id, quantities[id]); err != nil {
			return fmt.Errorf("restock product %s: %w", id, err)
		}
	}
	return nil
}
