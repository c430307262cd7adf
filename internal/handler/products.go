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

type Catalog interface {
	ListProducts(ctx context.Context, q service.ProductQuery) (*store.OffsetPage, error)
	GetProduct(ctx context.Context, caller auth.Caller, id uuid.UUID) (*models.ProductWithProvider, error)
	CreateProduct(ctx context.Context, caller auth.Caller, in service.ProductInput) (*models.Product, error)
	UpdateProduct(ctx context.Context, caller auth.Caller, id uuid.UUID, in service.ProductInput) (*models.Product, error)
	DeleteProduct(ctx context.Context, caller auth.Caller, id uuid.UUID) error
	ProviderPage(ctx context.Context, providerID uuid.UUID) (*service.ProviderPage, error)
}

type ReviewManager interface {
	Submit(ctx context.Context, caller auth.Caller, productID uuid.UUID, in service.ReviewInput) (*models.Review, error)
	List(ctx context.Context, productID uuid.UUID) (*service.ReviewList, error)
}

type ProductHandler struct {
	catalog Catalog
	reviews ReviewManager
	logger  *zap.Logger
}

func NewProductHandler(catalog Catalog, reviews ReviewManager, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		catalog: catalog,
		reviews: reviews,
		logger:  logger,
	}
}

func (h *ProductHandler) ListProducts(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	pageSize, _ := strconv.Atoi(c.Query("page_size"))

	result, err := h.catalog.ListProducts(c.Request.Context(), service.ProductQuery{
		Category: models.Category(c.Query("category")),
		Featured: c.Query("featured") == "true",
		Search:   c.Query("search"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondData(c, http.StatusOK, result)
}

func (h *ProductHandler) GetProduct(c *gin.Context) {
	caller, _ := middleware.CallerFrom(c)

	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	product, err := h.catalog.GetProduct(c.Request.Context(), caller, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondData(c, http.StatusOK, product)
}

func (h *ProductHandler) CreateProduct(c *gin.Context) {
	caller, _ := middleware.CallerFrom(c)

	var req service.ProductInput
	if !bindJSON(c, &req) {
		return
	}

	product, err := h.catalog.CreateProduct(c.Request.Context(), caller, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondData(c, http.StatusCreated, product)
}

func (h *ProductHandler) UpdateProduct(c *gin.Context) {
	caller, _ := middleware.CallerFrom(c)

	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req service.ProductInput
	if !bindJSON(c, &req) {
		return
	}

	product, err := h.catalog.UpdateProduct(c.Request.Context(), caller, id, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondData(c, http.StatusOK, product)
}

func (h *ProductHandler) DeleteProduct(c *gin.Context) {
	caller, _ := middleware.CallerFrom(c)

	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.catalog.DeleteProduct(c.Request.Context(), caller, id); err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondData(c, http.StatusOK, gin.H{"success": true})
}

func (h *ProductHandler) ListReviews(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	reviews, err := h.reviews.List(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondData(c, http.StatusOK, reviews)
}

func (h *ProductHandler) SubmitReview(c *gin.Context) {
	caller, _ := middleware.CallerFrom(c)

	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req service.ReviewInput
	if !bindJSON(c, &req) {
		return
	}

	review, err := h.reviews.Submit(c.Request.Context(), caller, id, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondData(c, http.StatusCreated, review)
}

func (h *ProductHandler) GetProvider(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	page, err := h.catalog.ProviderPage(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondData(c, http.StatusOK, page)
}
