package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Charlsz/localmarket/internal/database"
	"github.com/Charlsz/localmarket/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const profileColumns = `id, email, full_name, role, phone, avatar_url, business_name,
	business_description, business_address, is_verified, created_at, updated_at`

func profileFields(p *models.Profile) []any {
	return []any{
		&p.ID,
		&p.Email,
		&p.FullName,
		&p.Role,
		&p.Phone,
		&p.AvatarURL,
		&p.BusinessName,
		&p.BusinessDescription,
		&p.BusinessAddress,
		&p.IsVerified,
		&p.CreatedAt,
		&p.UpdatedAt,
	}
}

// ProfileUpdate changes only the non-nil fields.
type ProfileUpdate struct {
	FullName            *string
	Phone               *string
	AvatarURL           *string
	BusinessName        *string
	BusinessDescription *string
	BusinessAddress     *string
}

type ProviderStats struct {
	TotalProducts  int             `json:"total_products"`
	ActiveProducts int             `json:"active_products"`
	AvgRating      decimal.Decimal `json:"avg_rating"`
	TotalReviews   int             `json:"total_reviews"`
}

func CreateProfile(ctx context.Context, q database.Querier, p *models.Profile) (*models.Profile, error) {
	profile := &models.Profile{}

	query := `
		INSERT INTO profiles (id, email, full_name, role, phone, avatar_url, business_name,
		                      business_description, business_address, is_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE, NOW(), NOW())
		RETURNING ` + profileColumns

	err := q.QueryRowContext(ctx, query,
		p.ID, p.Email, p.FullName, p.Role, p.Phone, p.AvatarURL,
		p.BusinessName, p.BusinessDescription, p.BusinessAddress,
	).Scan(profileFields(profile)...)
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			return nil, database.ErrProfileExists
		}
		return nil, fmt.Errorf("create profile: %w", err)
	}

	return profile, nil
}

func GetProfile(ctx context.Context, q database.Querier, id uuid.UUID) (*models.Profile, error) {
	profile := &models.Profile{}

	err := q.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = $1`,
		id).Scan(profileFields(profile)...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProfileNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}

	return profile, nil
}

func UpdateProfile(ctx context.Context, q database.Querier, id uuid.UUID, u ProfileUpdate) (*models.Profile, error) {
	profile := &models.Profile{}

	query := `
		UPDATE profiles
		SET full_name            = COALESCE($2, full_name),
		    phone                = COALESCE($3, phone),
		    avatar_url           = COALESCE($4, avatar_url),
		    business_name        = COALESCE($5, business_name),
		    business_description = COALESCE($6, business_description),
		    business_address     = COALESCE($7, business_address),
		    updated_at           = NOW()
		WHERE id = $1
		RETURNING ` + profileColumns

	err := q.QueryRowContext(ctx, query,
		id, u.FullName, u.Phone, u.AvatarURL, u.BusinessName, u.BusinessDescription, u.BusinessAddress,
	).Scan(profileFields(profile)...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProfileNotFound
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}

	return profile, nil
}

func SetProfileVerified(ctx context.Context, q database.Querier, id uuid.UUID, verified bool) (*models.Profile, error) {
	profile := &models.Profile{}

	err := q.QueryRowContext(ctx,
		`UPDATE profiles SET is_verified = $1, updated_at = NOW() WHERE id = $2 RETURNING `+profileColumns,
		verified, id).Scan(profileFields(profile)...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProfileNotFound
		}
		return nil, fmt.Errorf("set profile verified: %w", err)
	}

	return profile, nil
}

// GetProviderStats aggregates a provider's catalog and the ratings left on
// any of their products.
func GetProviderStats(ctx context.Context, q database.Querier, providerID uuid.UUID) (*ProviderStats, error) {
	stats := &ProviderStats{}

	query := `
		SELECT
			(SELECT COUNT(*) FROM products WHERE provider_id = $1),
			(SELECT COUNT(*) FROM products WHERE provider_id = $1 AND is_active),
			COALESCE(ROUND(AVG(r.rating)::numeric, 1), 0),
			COUNT(r.id)
		FROM reviews r
		JOIN products p ON p.id = r.product_id
		WHERE p.provider_id = $1`

	err := q.QueryRowContext(ctx, query, providerID).Scan(
		&stats.TotalProducts,
		&stats.ActiveProducts,
		&stats.AvgRating,
		&stats.TotalReviews,
	)
	if err != nil {
		return nil, fmt.Errorf("get provider stats: %w", err)
	}

	return stats, nil
}
