package store

import (
	"context"
	"fmt"

	"github.com/Charlsz/localmarket/internal/database"
	"github.com/Charlsz/localmarket/internal/models"
	"github.com/google/uuid"
)

const reviewColumns = `id, product_id, user_id, order_id, rating, comment, created_at, updated_at`

func reviewFields(r *models.Review) []any {
	return []any{
		&r.ID,
		&r.ProductID,
		&r.UserID,
		&r.OrderID,
		&r.Rating,
		&r.Comment,
		&r.CreatedAt,
		&r.UpdatedAt,
	}
}

// CreateReview relies on the (product_id, user_id) unique constraint to
// reject a second review by the same user.
func CreateReview(ctx context.Context, q database.Querier, r *models.Review) (*models.Review, error) {
	review := &models.Review{}

	query := `
		INSERT INTO reviews (product_id, user_id, order_id, rating, comment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING ` + reviewColumns

	err := q.QueryRowContext(ctx, query, r.ProductID, r.UserID, r.OrderID, r.Rating, r.Comment).
		Scan(reviewFields(review)...)
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			return nil, database.ErrAlreadyReviewed
		}
		return nil, fmt.Errorf("create review: %w", err)
	}

	return review, nil
}

// LatestOrderContaining returns the newest order of userID that included
// productID, or nil when the user never bought it.
func LatestOrderContaining(ctx context.Context, q database.Querier, userID, productID uuid.UUID) (*uuid.UUID, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT o.id
		 FROM orders o
		 JOIN order_items oi ON oi.order_id = o.id
		 WHERE o.user_id = $1 AND oi.product_id = $2 AND o.status <> 'cancelled'
		 ORDER BY o.created_at DESC
		 LIMIT 1`,
		userID, productID)
	if err != nil {
		return nil, fmt.Errorf("find order for review: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	var id uuid.UUID
	if err := rows.Scan(&id); err != nil {
		return nil, fmt.Errorf("scan order id: %w", err)
	}
	return &id, nil
}

func ListProductReviews(ctx context.Context, q database.Querier, productID uuid.UUID) ([]models.Review, error) {
	query := `
		SELECT ` + prefixColumns("r", reviewColumns) + `, pr.full_name
		FROM reviews r
		JOIN profiles pr ON pr.id = r.user_id
		WHERE r.product_id = $1
		ORDER BY r.created_at DESC, r.id DESC`

	rows, err := q.QueryContext(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	reviews := []models.Review{}
	for rows.Next() {
		var review models.Review
		fields := append(reviewFields(&review), &review.AuthorName)
		if err := rows.Scan(fields...); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, review)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return reviews, nil
}
