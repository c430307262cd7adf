package service

import (
	"context"
	"database/sql"

	"github.com/Charlsz/localmarket/internal/auth"
	"github.com/Charlsz/localmarket/internal/models"
	"github.com/Charlsz/localmarket/internal/store"
	"github.com/shopspring/decimal"
)

// SalesSummary covers the provider's own items in orders that were not
// cancelled.
type SalesSummary struct {
	OrderCount int             `json:"order_count"`
	UnitsSold  int             `json:"units_sold"`
	Revenue    decimal.Decimal `json:"revenue"`
}

type ProviderOrders struct {
	Orders  []models.Order `json:"orders"`
	Summary SalesSummary   `json:"summary"`
}

type DashboardService struct {
	db *sql.DB
}

func NewDashboardService(db *sql.DB) *DashboardService {
	return &DashboardService{db: db}
}

// MyProducts lists every product of the calling provider, inactive ones
// included.
func (s *DashboardService) MyProducts(ctx context.Context, caller auth.Caller) ([]models.ProductWithProvider, error) {
	if !caller.IsProvider() {
		return nil, ErrForbidden
	}
	return store.ListProviderProducts(ctx, s.db, caller.ID, false)
}

// MyOrders lists the orders holding the provider's items, each sliced to
// those items, newest first.
func (s *DashboardService) MyOrders(ctx context.Context, caller auth.Caller, status models.OrderStatus) (*ProviderOrders, error) {
	if !caller.IsProvider() {
		return nil, ErrForbidden
	}
	if status != "" && !status.Valid() {
		return nil, invalidInput("unknown status %q", status)
	}

	orders, err := store.ListProviderOrders(ctx, s.db, caller.ID, status)
	if err != nil {
		return nil, err
	}

	return &ProviderOrders{
		Orders:  orders,
		Summary: summarizeSales(orders),
	}, nil
}

func summarizeSales(orders []models.Order) SalesSummary {
	summary := SalesSummary{Revenue: decimal.Zero}
	for _, order := range orders {
		if order.Status == models.OrderStatusCancelled {
			continue
		}
		summary.OrderCount++
		for _, item := range order.Items {
			summary.UnitsSold += item.Quantity
			summary.Revenue = summary.Revenue.Add(item.Subtotal)
		}
	}
	return summary
}
