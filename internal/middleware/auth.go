package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Charlsz/localmarket/internal/auth"
	"github.com/Charlsz/localmarket/internal/database"
	"github.com/Charlsz/localmarket/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const callerKey = "caller"

// ProfileLookup resolves the role of an authenticated user.
type ProfileLookup interface {
	GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error)
}

// RequireAuth validates the Bearer token, resolves the caller's role from
// their profile and stores the caller in the context. A user without a
// profile passes with an empty role.
func RequireAuth(secret string, profiles ProfileLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid Authorization header"})
			return
		}

		if !authenticate(c, secret, profiles, token) {
			return
		}
		c.Next()
	}
}

// OptionalAuth resolves the caller when a token is present and lets
// anonymous requests through. An invalid token is still rejected.
func OptionalAuth(secret string, profiles ProfileLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.Next()
			return
		}

		if !authenticate(c, secret, profiles, token) {
			return
		}
		c.Next()
	}
}

func authenticate(c *gin.Context, secret string, profiles ProfileLookup, token string) bool {
	caller, err := auth.ParseToken(secret, token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return false
	}

	profile, err := profiles.GetProfile(c.Request.Context(), caller.ID)
	switch {
	case err == nil:
		caller.Role = profile.Role
		if caller.Email == "" {
			caller.Email = profile.Email
		}
	case errors.Is(err, database.ErrProfileNotFound):
	default:
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return false
	}

	c.Set(callerKey, caller)
	return true
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// RequireRoles ensures the caller has a profile with one of the allowed
// roles. It must run after RequireAuth.
func RequireRoles(allowed ...models.Role) gin.HandlerFunc {
	roleSet := make(map[models.Role]struct{}, len(allowed))
	for _, r := range allowed {
		roleSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		caller, ok := CallerFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		if !caller.HasProfile() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "profile required"})
			return
		}
		if _, ok := roleSet[caller.Role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden: insufficient role"})
			return
		}
		c.Next()
	}
}

func CallerFrom(c *gin.Context) (auth.Caller, bool) {
	value, ok := c.Get(callerKey)
	if !ok {
		return auth.Caller{}, false
	}
	caller, ok := value.(auth.Caller)
	return caller, ok
}

// SetCaller stores caller in the context; used by tests of handlers that sit
// behind RequireAuth.
func SetCaller(c *gin.Context, caller auth.Caller) {
	c.Set(callerKey, caller)
}
