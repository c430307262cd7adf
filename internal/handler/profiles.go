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

type ProfileManager interface {
	middleware.ProfileLookup
	Me(ctx context.Context, caller auth.Caller) (*service.Me, error)
	Create(ctx context.Context, caller auth.Caller, in service.ProfileInput) (*models.Profile, error)
	Update(ctx context.Context, caller auth.Caller, in service.ProfileInput) (*models.Profile, error)
	SetVerified(ctx context.Context, caller auth.Caller, id uuid.UUID, verified bool) (*models.Profile, error)
}

type ProfileHandler struct {
	profiles ProfileManager
	logger   *zap.Logger
}

func NewProfileHandler(profiles ProfileManager, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{
		profiles: profiles,
		logger:   logger,
	}
}

func (h *ProfileHandler) Me(c *gin.Context) {
	caller, _ := middleware.CallerFrom(c)

	me, err := h.profiles.Me(c.Request.Context(), caller)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondData(c, http.StatusOK, me)
}

func (h *ProfileHandler) CreateProfile(c *gin.Context) {
	caller, _ := middleware.CallerFrom(c)

	var req service.ProfileInput
	if !bindJSON(c, &req) {
		return
	}

	profile, err := h.profiles.Create(c.Request.Context(), caller, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondData(c, http.StatusCreated, profile)
}

func (h *ProfileHandler) UpdateMe(c *gin.Context) {
	caller, _ := middleware.CallerFrom(c)

	var req service.ProfileInput
	if !bindJSON(c, &req) {
		return
	}

	profile, err := h.profiles.Update(c.Request.Context(), caller, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondData(c, http.StatusOK, profile)
}

type verifyRequest struct {
	IsVerified *bool `json:"is_verified"`
}

func (h *ProfileHandler) SetVerified(c *gin.Context) {
	caller, _ := middleware.CallerFrom(c)

	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req verifyRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.IsVerified == nil {
		respondMessage(c, http.StatusBadRequest, "is_verified is required")
		return
	}

	profile, err := h.profiles.SetVerified(c.Request.Context(), caller, id, *req.IsVerified)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondData(c, http.StatusOK, profile)
}
