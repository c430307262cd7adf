package store

import (
	"strings"

	"github.com/Charlsz/localmarket/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const productColumns = `id, provider_id, name, description, category, price, stock, unit,
	image_url, images, is_active, is_featured, created_at, updated_at, version`

func productFields(p *models.Product) []any {
	return []any{
		&p.ID,
		&p.ProviderID,
		&p.Name,
		&p.Description,
		&p.Category,
		&p.Price,
		&p.Stock,
		&p.Unit,
		&p.ImageURL,
		pq.Array(&p.Images),
		&p.IsActive,
		&p.IsFeatured,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.Version,
	}
}

const productViewColumns = productColumns + `,
	provider_business_name, provider_description, provider_verified, avg_rating, review_count`

func scanProductView(row rowScanner, p *models.ProductWithProvider) error {
	fields := append(productFields(&p.Product),
		&p.ProviderBusinessName,
		&p.ProviderDescription,
		&p.ProviderVerified,
		&p.AvgRating,
		&p.ReviewCount,
	)
	return row.Scan(fields...)
}

const orderColumns = `id, order_number, user_id, status, payment_status, subtotal, tax, shipping_fee, total,
	shipping_name, shipping_phone, shipping_address, shipping_city, shipping_postal_code, notes,
	idempotency_key, created_at, updated_at, version`

func orderFields(o *models.Order) []any {
	return []any{
		&o.ID,
		&o.OrderNumber,
		&o.UserID,
		&o.Status,
		&o.PaymentStatus,
		&o.Subtotal,
		&o.Tax,
		&o.ShippingFee,
		&o.Total,
		&o.ShippingName,
		&o.ShippingPhone,
		&o.ShippingAddress,
		&o.ShippingCity,
		&o.ShippingPostalCode,
		&o.Notes,
		&o.IdempotencyKey,
		&o.CreatedAt,
		&o.UpdatedAt,
		&o.Version,
	}
}

const orderItemColumns = `id, order_id, product_id, provider_id, product_name, product_description,
	product_image_url, quantity, unit_price, subtotal, created_at`

func orderItemFields(i *models.OrderItem) []any {
	return []any{
		&i.ID,
		&i.OrderID,
		&i.ProductID,
		&i.ProviderID,
		&i.ProductName,
		&i.ProductDescription,
		&i.ProductImageURL,
		&i.Quantity,
		&i.UnitPrice,
		&i.Subtotal,
		&i.CreatedAt,
	}
}

// prefixColumns qualifies a column list with a table alias.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// likePattern builds a substring pattern for ILIKE with wildcards escaped.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}
