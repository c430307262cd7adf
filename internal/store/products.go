package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Charlsz/localmarket/internal/database"
	"github.com/Charlsz/localmarket/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type NewProduct struct {
	ProviderID  uuid.UUID
	Name        string
	Description *string
	Category    models.Category
	Price       decimal.Decimal
	Stock       int
	Unit        string
	ImageURL    *string
	Images      []string
	IsFeatured  bool
}

// ProductUpdate applies only the non-nil fields. ExpectedVersion, when set,
// makes the update fail with ErrOptimisticLockFailed if the row moved on.
type ProductUpdate struct {
	Name            *string
	Description     *string
	Category        *models.Category
	Price           *decimal.Decimal
	Stock           *int
	Unit            *string
	ImageURL        *string
	Images          []string
	IsFeatured      *bool
	IsActive        *bool
	ExpectedVersion *int
}

type ProductFilter struct {
	Category     models.Category
	FeaturedOnly bool
	Search       string
	ProviderID   uuid.UUID
	ActiveOnly   bool
}

func CreateProduct(ctx context.Context, q database.Querier, np NewProduct) (*models.Product, error) {
	product := &models.Product{}

	query := `
		INSERT INTO products (provider_id, name, description, category, price, stock, unit,
		                      image_url, images, is_active, is_featured, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE, $10, NOW(), NOW(), 1)
		RETURNING ` + productColumns

	err := q.QueryRowContext(ctx, query,
		np.ProviderID, np.Name, np.Description, np.Category, np.Price, np.Stock, np.Unit,
		np.ImageURL, pq.Array(np.Images), np.IsFeatured,
	).Scan(productFields(product)...)
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func GetProduct(ctx context.Context, q database.Querier, id uuid.UUID) (*models.Product, error) {
	product := &models.Product{}

	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	err := q.QueryRowContext(ctx, query, id).Scan(productFields(product)...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

// LockProductShared reads a product holding a share lock until the
// transaction ends, so its stock cannot change underneath the caller.
func LockProductShared(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*models.Product, error) {
	product := &models.Product{}

	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 FOR SHARE`

	err := tx.QueryRowContext(ctx, query, id).Scan(productFields(product)...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("lock product: %w", err)
	}

	return product, nil
}

func GetProductView(ctx context.Context, q database.Querier, id uuid.UUID) (*models.ProductWithProvider, error) {
	product := &models.ProductWithProvider{}

	query := `SELECT ` + productViewColumns + ` FROM products_with_provider WHERE id = $1`

	err := scanProductView(q.QueryRowContext(ctx, query, id), product)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product view: %w", err)
	}

	return product, nil
}

func buildProductWhere(f ProductFilter) (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.ActiveOnly {
		conds = append(conds, "is_active = TRUE")
	}
	if f.Category != "" {
		add("category = $%d", f.Category)
	}
	if f.FeaturedOnly {
		conds = append(conds, "is_featured = TRUE")
	}
	if f.Search != "" {
		add(`name ILIKE $%d ESCAPE '\'`, likePattern(f.Search))
	}
	if f.ProviderID != uuid.Nil {
		add("provider_id = $%d", f.ProviderID)
	}

	if len(conds) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

func ListProducts(ctx context.Context, q database.Querier, f ProductFilter, page, pageSize int) (*OffsetPage, error) {
	where, args := buildProductWhere(f)

	var total int64
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM products_with_provider `+where, args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	offset := (page - 1) * pageSize
	query := fmt.Sprintf(`
		SELECT %s
		FROM products_with_provider
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, productViewColumns, where, len(args)+1, len(args)+2)

	products, err := queryProductViews(ctx, q, query, append(args, pageSize, offset)...)
	if err != nil {
		return nil, err
	}

	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}

	return &OffsetPage{
		Items:      products,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

// ListProviderProducts returns every product of a provider, newest first.
func ListProviderProducts(ctx context.Context, q database.Querier, providerID uuid.UUID, activeOnly bool) ([]models.ProductWithProvider, error) {
	where, args := buildProductWhere(ProductFilter{ProviderID: providerID, ActiveOnly: activeOnly})

	query := `SELECT ` + productViewColumns + ` FROM products_with_provider ` + where +
		` ORDER BY created_at DESC, id DESC`

	return queryProductViews(ctx, q, query, args...)
}

func queryProductViews(ctx context.Context, q database.Querier, query string, args ...any) ([]models.ProductWithProvider, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := []models.ProductWithProvider{}
	for rows.Next() {
		var product models.ProductWithProvider
		if err := scanProductView(rows, &product); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return products, nil
}

func UpdateProduct(ctx context.Context, q database.Querier, id uuid.UUID, u ProductUpdate) (*models.Product, error) {
	sets := []string{"updated_at = NOW()", "version = version + 1"}
	var args []any

	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if u.Name != nil {
		set("name", *u.Name)
	}
	if u.Description != nil {
		set("description", *u.Description)
	}
	if u.Category != nil {
		set("category", *u.Category)
	}
	if u.Price != nil {
		set("price", *u.Price)
	}
	if u.Stock != nil {
		set("stock", *u.Stock)
	}
	if u.Unit != nil {
		set("unit", *u.Unit)
	}
	if u.ImageURL != nil {
		set("image_url", *u.ImageURL)
	}
	if u.Images != nil {
		set("images", pq.Array(u.Images))
	}
	if u.IsFeatured != nil {
		set("is_featured", *u.IsFeatured)
	}
	if u.IsActive != nil {
		set("is_active", *u.IsActive)
	}

	args = append(args, id)
	where := fmt.Sprintf("id = $%d", len(args))
	if u.ExpectedVersion != nil {
		args = append(args, *u.ExpectedVersion)
		where += fmt.Sprintf(" AND version = $%d", len(args))
	}

	query := fmt.Sprintf(`UPDATE products SET %s WHERE %s RETURNING %s`,
		strings.Join(sets, ", "), where, productColumns)

	product := &models.Product{}
	err := q.QueryRowContext(ctx, query, args...).Scan(productFields(product)...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if u.ExpectedVersion != nil {
				return nil, database.ErrOptimisticLockFailed
			}
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("update product: %w", err)
	}

	return product, nil
}

func SetProductActive(ctx context.Context, q database.Querier, id uuid.UUID, active bool) error {
	result, err := q.ExecContext(ctx,
		`UPDATE products
		 SET is_active = $1, version = version + 1, updated_at = NOW()
		 WHERE id = $2`,
		active, id)
	if err != nil {
		return fmt.Errorf("set product active: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrProductNotFound
	}

	return nil
}

// DecrementStock removes quantity units only if that many are available, so
// stock can never go negative even without a prior read.
func DecrementStock(ctx context.Context, q database.Querier, productID uuid.UUID, quantity int) error {
	result, err := q.ExecContext(ctx,
		`UPDATE products
		 SET stock = stock - $1,
		     version = version + 1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND stock >= $1`,
		quantity, productID)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrInsufficientStock
	}

	return nil
}

func IncrementStock(ctx context.Context, q database.Querier, productID uuid.UUID, quantity int) error {
	result, err := q.ExecContext(ctx,
		`UPDATE products
		 SET stock = stock + $1,
		     version = version + 1,
		     updated_at = NOW()
		 WHERE id = $2`,
		quantity, productID)
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrProductNotFound
	}

	return nil
}
