package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Charlsz/localmarket/internal/auth"
	"github.com/Charlsz/localmarket/internal/middleware"
	"github.com/Charlsz/localmarket/internal/models"
	"github.com/Charlsz/localmarket/internal/service"
	"github.com/Charlsz/localmarket/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type OrderManager interface {
	ListOrders(ctx context.Context, caller auth.Caller, status models.OrderStatus, cursor string, limit int) (*store.CursorPage, error)
	GetOrder(ctx context.Context, caller auth.Caller, id uuid.UUID) (*models.Order, error)
	UpdateStatus(ctx context.Context, caller auth.Caller, id uuid.UUID, u service.StatusUpdate) (*models.Order, error)
}

type Dashboard interface {
	MyProducts(ctx context.Context, caller auth.Caller) ([]models.ProductWithProvider, error)
	MyOrders(ctx context.Context, caller auth.Caller, status models.OrderStatus) (*service.ProviderOrders, error)
}

type OrderHandler struct {
	orders    OrderManager
	dashboard Dashboard
	logger    *zap.Logger
}

func NewOrderHandler(orders OrderManager, dashboard Dashboard, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orders:    orders,
		dashboard: dashboard,
		logger:    logger,
	}
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	caller, _ := middleware.CallerFrom(c)

	limit, _ := strconv.Atoi(c.Query("limit"))
	status := models.OrderStatus(c.Query("status"))

	page, err := h.orders.ListOrders(c.Request.Context(), caller, status, c.Query("cursor"), limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondData(c, http.StatusOK, page)
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	caller, _ := middleware.CallerFrom(c)

	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), caller, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondData(c, http.StatusOK, order)
}

func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	caller, _ := middleware.CallerFrom(c)

	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req service.StatusUpdate
	if !bindJSON(c, &req) {
		return
	}

	order, err := h.orders.UpdateStatus(c.Request.Context(), caller, id, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondData(c, http.StatusOK, order)
}

func (h *OrderHandler) MyProducts(c *gin.Context) {
	caller, _ := middleware.CallerFrom(c)

	products, err := h.dashboard.MyProducts(c.Request.Context(), caller)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondData(c, http.StatusOK, products)
}

func (h *OrderHandler) MyOrders(c *gin.Context) {
	caller, _ := middleware.CallerFrom(c)

	result, err := h.dashboard.MyOrders(c.Request.Context(), caller, models.OrderStatus(c.Query("status")))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondData(c, http.StatusOK, result)
}
