package handler

import (
	"context"
	"net/http"

	"github.com/Charlsz/localmarket/internal/auth"
	"github.com/Charlsz/localmarket/internal/middleware"
	"github.com/Charlsz/localmarket/internal/models"
	"github.com/Charlsz/localmarket/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CartManager interface {
	GetCart(ctx context.Context, caller auth.Caller) (*models.CartView, error)
	AddItem(ctx context.Context, caller auth.Caller, productID uuid.UUID, quantity int) (*models.CartItem, bool, error)
	UpdateItem(ctx context.Context, caller auth.Caller, itemID uuid.UUID, quantity int) (*models.CartItem, error)
	RemoveItem(ctx context.Context, caller auth.Caller, itemID uuid.UUID) error
	ClearCart(ctx context.Context, caller auth.Caller) error
}

type CheckoutProcessor interface {
	Checkout(ctx context.Context, caller auth.Caller, details service.ShippingDetails, idempotencyKey string) (*models.Order, bool, error)
}

type CartHandler struct {
	carts    CartManager
	checkout CheckoutProcessor
	logger   *zap.Logger
}

func NewCartHandler(carts CartManager, checkout CheckoutProcessor, logger *zap.Logger) *CartHandler {
	return &CartHandler{
		carts:    carts,
		checkout: checkout,
		logger:   logger,
	}
}

func (h *CartHandler) GetCart(c *gin.Context) {
	caller, _ := middleware.CallerFrom(c)

	view, err := h.carts.GetCart(c.Request.Context(), caller)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondData(c, http.StatusOK, view)
}

type addItemRequest struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  *int      `json:"quantity"`
}

func (h *CartHandler) AddItem(c *gin.Context) {
	caller, _ := middleware.CallerFrom(c)

	var req addItemRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.ProductID == uuid.Nil {
		respondMessage(c, http.StatusBadRequest, "product_id is required")
		return
	}

	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	item, created, err := h.carts.AddItem(c.Request.Context(), caller, req.ProductID, quantity)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondData(c, status, item)
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

func (h *CartHandler) UpdateItem(c *gin.Context) {
	caller, _ := middleware.CallerFrom(c)

	itemID, ok := pathID(c, "itemId")
	if !ok {
		return
	}

	var req updateItemRequest
	if !bindJSON(c, &req) {
		return
	}

	item, err := h.carts.UpdateItem(c.Request.Context(), caller, itemID, req.Quantity)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondData(c, http.StatusOK, item)
}

func (h *CartHandler) RemoveItem(c *gin.Context) {
	caller, _ := middleware.CallerFrom(c)

	itemID, ok := pathID(c, "itemId")
	if !ok {
		return
	}

	if err := h.carts.RemoveItem(c.Request.Context(), caller, itemID); err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondData(c, http.StatusOK, gin.H{"success": true})
}

func (h *CartHandler) ClearCart(c *gin.Context) {
	caller, _ := middleware.CallerFrom(c)

	if err := h.carts.ClearCart(c.Request.Context(), caller); err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondData(c, http.StatusOK, gin.H{"success": true})
}

// Checkout honours an optional Idempotency-Key header: a replay answers 200
// with the order created the first time.
func (h *CartHandler) Checkout(c *gin.Context) {
	caller, _ := middleware.CallerFrom(c)

	var req service.ShippingDetails
	if !bindJSON(c, &req) {
		return
	}

	order, created, err := h.checkout.Checkout(c.Request.Context(), caller, req, c.GetHeader("Idempotency-Key"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondData(c, status, order)
}
