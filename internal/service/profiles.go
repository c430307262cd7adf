package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/Charlsz/localmarket/internal/auth"
	"github.com/Charlsz/localmarket/internal/database"
	"github.com/Charlsz/localmarket/internal/models"
	"github.com/Charlsz/localmarket/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ProfileInput struct {
	Role                models.Role `json:"role"`
	FullName            *string     `json:"full_name"`
	Phone               *string     `json:"phone"`
	AvatarURL           *string     `json:"avatar_url"`
	BusinessName        *string     `json:"business_name"`
	BusinessDescription *string     `json:"business_description"`
	BusinessAddress     *string     `json:"business_address"`
}

// Me is the token identity of the caller plus their profile, which is nil
// until created.
type Me struct {
	ID      uuid.UUID       `json:"id"`
	Email   string          `json:"email"`
	Profile *models.Profile `json:"profile"`
}

type ProfileService struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewProfileService(db *sql.DB, logger *zap.Logger) *ProfileService {
	return &ProfileService{
		db:     db,
		logger: logger,
	}
}

// GetProfile lets the auth middleware resolve roles.
func (s *ProfileService) GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	return store.GetProfile(ctx, s.db, id)
}

func (s *ProfileService) Me(ctx context.Context, caller auth.Caller) (*Me, error) {
	me := &Me{ID: caller.ID, Email: caller.Email}

	profile, err := store.GetProfile(ctx, s.db, caller.ID)
	if errors.Is(err, database.ErrProfileNotFound) {
		return me, nil
	}
	if err != nil {
		return nil, err
	}

	me.Profile = profile
	return me, nil
}

// Create registers the caller's profile. Admin cannot be self-assigned and
// providers must name their business.
func (s *ProfileService) Create(ctx context.Context, caller auth.Caller, in ProfileInput) (*models.Profile, error) {
	if in.Role == "" {
		in.Role = models.RoleClient
	}
	switch in.Role {
	case models.RoleClient:
	case models.RoleProvider:
		if in.BusinessName == nil || strings.TrimSpace(*in.BusinessName) == "" {
			return nil, invalidInput("business_name is required for providers")
		}
	case models.RoleAdmin:
		return nil, ErrForbidden
	default:
		return nil, invalidInput("unknown role %q", in.Role)
	}
	if strings.TrimSpace(caller.Email) == "" {
		return nil, invalidInput("token carries no email")
	}

	profile, err := store.CreateProfile(ctx, s.db, &models.Profile{
		ID:                  caller.ID,
		Email:               caller.Email,
		FullName:            trimmed(in.FullName),
		Role:                in.Role,
		Phone:               trimmed(in.Phone),
		AvatarURL:           in.AvatarURL,
		BusinessName:        trimmed(in.BusinessName),
		BusinessDescription: in.BusinessDescription,
		BusinessAddress:     trimmed(in.BusinessAddress),
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Profile created",
		zap.String("user_id", caller.ID.String()),
		zap.String("role", string(profile.Role)))

	return profile, nil
}

// Update edits the caller's own profile. Role and verification are not
// editable here; business fields only apply to providers.
func (s *ProfileService) Update(ctx context.Context, caller auth.Caller, in ProfileInput) (*models.Profile, error) {
	if err := requireProfile(caller); err != nil {
		return nil, err
	}
	if in.Role != "" && in.Role != caller.Role {
		return nil, ErrForbidden
	}

	update := store.ProfileUpdate{
		FullName:  trimmed(in.FullName),
		Phone:     trimmed(in.Phone),
		AvatarURL: in.AvatarURL,
	}
	if caller.IsProvider() {
		if in.BusinessName != nil && strings.TrimSpace(*in.BusinessName) == "" {
			return nil, invalidInput("business_name must not be empty")
		}
		update.BusinessName = trimmed(in.BusinessName)
		update.BusinessDescription = in.BusinessDescription
		update.BusinessAddress = trimmed(in.BusinessAddress)
	}

	return store.UpdateProfile(ctx, s.db, caller.ID, update)
}

func (s *ProfileService) SetVerified(ctx context.Context, caller auth.Caller, id uuid.UUID, verified bool) (*models.Profile, error) {
	if !caller.IsAdmin() {
		return nil, ErrForbidden
	}

	profile, err := store.SetProfileVerified(ctx, s.db, id, verified)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Profile verification changed",
		zap.String("profile_id", id.String()),
		zap.Bool("verified", verified),
		zap.String("admin_id", caller.ID.String()))

	return profile, nil
}
