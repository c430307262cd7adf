package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Profile struct {
	ID                  uuid.UUID `json:"id"`
	Email               string    `json:"email"`
	FullName            *string   `json:"full_name"`
	Role                Role      `json:"role"`
	Phone               *string   `json:"phone"`
	AvatarURL           *string   `json:"avatar_url"`
	BusinessName        *string   `json:"business_name"`
	BusinessDescription *string   `json:"business_description"`
	BusinessAddress     *string   `json:"business_address"`
	IsVerified          bool      `json:"is_verified"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

type Product struct {
	ID          uuid.UUID       `json:"id"`
	ProviderID  uuid.UUID       `json:"provider_id"`
	Name        string          `json:"name"`
	Description *string         `json:"description"`
	Category    Category        `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Unit        string          `json:"unit"`
	ImageURL    *string         `json:"image_url"`
	Images      []string        `json:"images"`
	IsActive    bool            `json:"is_active"`
	IsFeatured  bool            `json:"is_featured"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Version     int             `json:"version"`
}

// ProductWithProvider is a product row of the products_with_provider view.
type ProductWithProvider struct {
	Product
	ProviderBusinessName *string         `json:"provider_business_name"`
	ProviderDescription  *string         `json:"provider_description"`
	ProviderVerified     bool            `json:"provider_verified"`
	AvgRating            decimal.Decimal `json:"avg_rating"`
	ReviewCount          int             `json:"review_count"`
}

type Cart struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CartItem holds the price of the product at the time it was added; later
// price changes do not affect it.
type CartItem struct {
	ID            uuid.UUID       `json:"id"`
	CartID        uuid.UUID       `json:"cart_id"`
	ProductID     uuid.UUID       `json:"product_id"`
	Quantity      int             `json:"quantity"`
	PriceSnapshot decimal.Decimal `json:"price_snapshot"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Product       *Product        `json:"product,omitempty"`
}

func (i CartItem) Subtotal() decimal.Decimal {
	return i.PriceSnapshot.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type CartView struct {
	Cart      Cart            `json:"cart"`
	Items     []CartItem      `json:"items"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"item_count"`
	LineCount int             `json:"line_count"`
	Currency  string          `json:"currency"`
}

// CartTotal is the sum of quantity x price snapshot over all lines.
func CartTotal(items []CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

func CartItemCount(items []CartItem) int {
	count := 0
	for _, item := range items {
		count += item.Quantity
	}
	return count
}

type Order struct {
	ID                 uuid.UUID       `json:"id"`
	OrderNumber        string          `json:"order_number"`
	UserID             uuid.UUID       `json:"user_id"`
	Status             OrderStatus     `json:"status"`
	PaymentStatus      PaymentStatus   `json:"payment_status"`
	Subtotal           decimal.Decimal `json:"subtotal"`
	Tax                decimal.Decimal `json:"tax"`
	ShippingFee        decimal.Decimal `json:"shipping_fee"`
	Total              decimal.Decimal `json:"total"`
	ShippingName       string          `json:"shipping_name"`
	ShippingPhone      string          `json:"shipping_phone"`
	ShippingAddress    string          `json:"shipping_address"`
	ShippingCity       *string         `json:"shipping_city"`
	ShippingPostalCode *string         `json:"shipping_postal_code"`
	Notes              *string         `json:"notes"`
	IdempotencyKey     *string         `json:"-"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	Version            int             `json:"version"`
	Items              []OrderItem     `json:"items"`
}

// OrderItem is a denormalized copy of the purchased product so the order
// stays readable after the product is edited or deactivated.
type OrderItem struct {
	ID                 uuid.UUID       `json:"id"`
	OrderID            uuid.UUID       `json:"order_id"`
	ProductID          uuid.UUID       `json:"product_id"`
	ProviderID         uuid.UUID       `json:"provider_id"`
	ProductName        string          `json:"product_name"`
	ProductDescription *string         `json:"product_description"`
	ProductImageURL    *string         `json:"product_image_url"`
	Quantity           int             `json:"quantity"`
	UnitPrice          decimal.Decimal `json:"unit_price"`
	Subtotal           decimal.Decimal `json:"subtotal"`
	CreatedAt          time.Time       `json:"created_at"`
}

type Review struct {
	ID         uuid.UUID  `json:"id"`
	ProductID  uuid.UUID  `json:"product_id"`
	UserID     uuid.UUID  `json:"user_id"`
	OrderID    *uuid.UUID `json:"order_id"`
	Rating     int        `json:"rating"`
	Comment    *string    `json:"comment"`
	AuthorName *string    `json:"author_name,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// AverageRating rounds the mean rating to one decimal, zero when empty.
func AverageRating(ratings []int) decimal.Decimal {
	if len(ratings) == 0 {
		return decimal.Zero
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	return decimal.NewFromInt(int64(sum)).
		DivRound(decimal.NewFromInt(int64(len(ratings))), 4).
		Round(1)
}
