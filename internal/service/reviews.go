package service

import (
	"context"
	"database/sql"
	"strings"
	"unicode/utf8"

	"github.com/Charlsz/localmarket/internal/auth"
	"github.com/Charlsz/localmarket/internal/models"
	"github.com/Charlsz/localmarket/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const minCommentLength = 10

type ReviewInput struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func (in ReviewInput) validate() error {
	if in.Rating < 1 || in.Rating > 5 {
		return invalidInput("rating must be between 1 and 5")
	}
	if utf8.RuneCountInString(strings.TrimSpace(in.Comment)) < minCommentLength {
		return invalidInput("comment must be at least %d characters", minCommentLength)
	}
	return nil
}

type ReviewList struct {
	Reviews     []models.Review `json:"reviews"`
	AvgRating   decimal.Decimal `json:"avg_rating"`
	ReviewCount int             `json:"review_count"`
}

type ReviewService struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewReviewService(db *sql.DB, logger *zap.Logger) *ReviewService {
	return &ReviewService{
		db:     db,
		logger: logger,
	}
}

// Submit records the caller's single review of a product. The provider
// selling the product cannot review it.
func (s *ReviewService) Submit(ctx context.Context, caller auth.Caller, productID uuid.UUID, in ReviewInput) (*models.Review, error) {
	if err := requireProfile(caller); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	product, err := store.GetProduct(ctx, s.db, productID)
	if err != nil {
		return nil, err
	}
	if product.ProviderID == caller.ID {
		return nil, ErrNotEligible
	}

	orderID, err := store.LatestOrderContaining(ctx, s.db, caller.ID, productID)
	if err != nil {
		return nil, err
	}

	comment := strings.TrimSpace(in.Comment)
	review, err := store.CreateReview(ctx, s.db, &models.Review{
		ProductID: productID,
		UserID:    caller.ID,
		OrderID:   orderID,
		Rating:    in.Rating,
		Comment:   &comment,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Review submitted",
		zap.String("review_id", review.ID.String()),
		zap.String("product_id", productID.String()),
		zap.Int("rating", review.Rating))

	return review, nil
}

// List returns the reviews of a product newest first with their aggregate.
func (s *ReviewService) List(ctx context.Context, productID uuid.UUID) (*ReviewList, error) {
	if _, err := store.GetProduct(ctx, s.db, productID); err != nil {
		return nil, err
	}

	reviews, err := store.ListProductReviews(ctx, s.db, productID)
	if err != nil {
		return nil, err
	}

	ratings := make([]int, len(reviews))
	for i, r := range reviews {
		ratings[i] = r.Rating
	}

	return &ReviewList{
		Reviews:     reviews,
		AvgRating:   models.AverageRating(ratings),
		ReviewCount: len(reviews),
	}, nil
}
