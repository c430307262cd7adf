package service

import (
	"context"
	"database/sql"
	"strings"

	"github.com/Charlsz/localmarket/internal/auth"
	"github.com/Charlsz/localmarket/internal/database"
	"github.com/Charlsz/localmarket/internal/models"
	"github.com/Charlsz/localmarket/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	defaultUnit     = "unit"
)

// ProductInput is the writable part of a product. On update only the
// non-nil fields change; Version, when given, guards against lost updates.
type ProductInput struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Category    *models.Category `json:"category"`
	Price       *decimal.Decimal `json:"price"`
	Stock       *int             `json:"stock"`
	Unit        *string          `json:"unit"`
	ImageURL    *string          `json:"image_url"`
	Images      []string         `json:"images"`
	IsFeatured  *bool            `json:"is_featured"`
	IsActive    *bool            `json:"is_active"`
	Version     *int             `json:"version"`
}

func (in ProductInput) validate(creating bool) error {
	if creating {
		if in.Name == nil {
			return invalidInput("name is required")
		}
		if in.Category == nil {
			return invalidInput("category is required")
		}
		if in.Price == nil {
			return invalidInput("price is required")
		}
	}

	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return invalidInput("name must not be empty")
	}
	if in.Category != nil && !in.Category.Valid() {
		return invalidInput("unknown category %q", *in.Category)
	}
	if in.Price != nil && in.Price.IsNegative() {
		return invalidInput("price must not be negative")
	}
	if in.Stock != nil && *in.Stock < 0 {
		return invalidInput("stock must not be negative")
	}
	if in.Unit != nil && strings.TrimSpace(*in.Unit) == "" {
		return invalidInput("unit must not be empty")
	}
	return nil
}

type ProductQuery struct {
	Category models.Category
	Featured bool
	Search   string
	Page     int
	PageSize int
}

// ProviderPage is the public storefront of a provider.
type ProviderPage struct {
	Provider *models.Profile              `json:"provider"`
	Products []models.ProductWithProvider `json:"products"`
	Stats    *store.ProviderStats         `json:"stats"`
}

type CatalogService struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewCatalogService(db *sql.DB, logger *zap.Logger) *CatalogService {
	return &CatalogService{
		db:     db,
		logger: logger,
	}
}

// ListProducts returns a page of active products, newest first.
func (s *CatalogService) ListProducts(ctx context.Context, q ProductQuery) (*store.OffsetPage, error) {
	if q.Category != "" && !q.Category.Valid() {
		return nil, invalidInput("unknown category %q", q.Category)
	}

	page, pageSize := normalizePage(q.Page, q.PageSize)

	return store.ListProducts(ctx, s.db, store.ProductFilter{
		Category:     q.Category,
		FeaturedOnly: q.Featured,
		Search:       strings.TrimSpace(q.Search),
		ActiveOnly:   true,
	}, page, pageSize)
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}
	return page, pageSize
}

// GetProduct hides inactive products from everyone but their owner and
// admins. caller is the zero Caller for anonymous requests.
func (s *CatalogService) GetProduct(ctx context.Context, caller auth.Caller, id uuid.UUID) (*models.ProductWithProvider, error) {
	product, err := store.GetProductView(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	if !canSeeProduct(caller, &product.Product) {
		return nil, database.ErrProductNotFound
	}
	return product, nil
}

func canSeeProduct(caller auth.Caller, p *models.Product) bool {
	return p.IsActive || caller.IsAdmin() || (caller.ID != uuid.Nil && caller.ID == p.ProviderID)
}

func (s *CatalogService) CreateProduct(ctx context.Context, caller auth.Caller, in ProductInput) (*models.Product, error) {
	if !caller.IsProvider() {
		return nil, ErrForbidden
	}
	if err := in.validate(true); err != nil {
		return nil, err
	}

	np := store.NewProduct{
		ProviderID:  caller.ID,
		Name:        strings.TrimSpace(*in.Name),
		Description: in.Description,
		Category:    *in.Category,
		Price:       *in.Price,
		Unit:        defaultUnit,
		ImageURL:    in.ImageURL,
		Images:      in.Images,
	}
	if in.Stock != nil {
		np.Stock = *in.Stock
	}
	if in.Unit != nil {
		np.Unit = strings.TrimSpace(*in.Unit)
	}
	if in.IsFeatured != nil {
		np.IsFeatured = *in.IsFeatured
	}

	product, err := store.CreateProduct(ctx, s.db, np)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Product created",
		zap.String("product_id", product.ID.String()),
		zap.String("provider_id", caller.ID.String()))

	return product, nil
}

func (s *CatalogService) UpdateProduct(ctx context.Context, caller auth.Caller, id uuid.UUID, in ProductInput) (*models.Product, error) {
	if err := s.requireOwner(ctx, caller, id); err != nil {
		return nil, err
	}
	if err := in.validate(false); err != nil {
		return nil, err
	}

	update := store.ProductUpdate{
		Name:            trimmed(in.Name),
		Description:     in.Description,
		Category:        in.Category,
		Price:           in.Price,
		Stock:           in.Stock,
		Unit:            trimmed(in.Unit),
		ImageURL:        in.ImageURL,
		Images:          in.Images,
		IsFeatured:      in.IsFeatured,
		IsActive:        in.IsActive,
		ExpectedVersion: in.Version,
	}

	return store.UpdateProduct(ctx, s.db, id, update)
}

// DeleteProduct deactivates the product; order history keeps referencing it.
func (s *CatalogService) DeleteProduct(ctx context.Context, caller auth.Caller, id uuid.UUID) error {
	if err := s.requireOwner(ctx, caller, id); err != nil {
		return err
	}

	if err := store.SetProductActive(ctx, s.db, id, false); err != nil {
		return err
	}

	s.logger.Info("Product deactivated",
		zap.String("product_id", id.String()),
		zap.String("provider_id", caller.ID.String()))

	return nil
}

func (s *CatalogService) requireOwner(ctx context.Context, caller auth.Caller, id uuid.UUID) error {
	product, err := store.GetProduct(ctx, s.db, id)
	if err != nil {
		return err
	}
	if product.ProviderID != caller.ID {
		return ErrForbidden
	}
	return nil
}

func (s *CatalogService) ProviderPage(ctx context.Context, providerID uuid.UUID) (*ProviderPage, error) {
	provider, err := store.GetProfile(ctx, s.db, providerID)
	if err != nil {
		return nil, err
	}
	if provider.Role != models.RoleProvider {
		return nil, database.ErrProfileNotFound
	}

	products, err := store.ListProviderProducts(ctx, s.db, providerID, true)
	if err != nil {
		return nil, err
	}

	stats, err := store.GetProviderStats(ctx, s.db, providerID)
	if err != nil {
		return nil, err
	}

	return &ProviderPage{
		Provider: provider,
		Products: products,
		Stats:    stats,
	}, nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}

