package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Charlsz/localmarket/internal/auth"
	"github.com/Charlsz/localmarket/internal/database"
	"github.com/Charlsz/localmarket/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "middleware-secret"

type fakeProfiles map[uuid.UUID]*models.Profile

func (f fakeProfiles) GetProfile(_ context.Context, id uuid.UUID) (*models.Profile, error) {
	if p, ok := f[id]; ok {
		return p, nil
	}
	return nil, database.ErrProfileNotFound
}

type failingProfiles struct{}

func (failingProfiles) GetProfile(context.Context, uuid.UUID) (*models.Profile, error) {
	return nil, errors.New("connection refused")
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(RequestID(), Logger(zap.NewNop()))
	handlers := append(mw, func(c *gin.Context) {
		caller, ok := CallerFrom(c)
		c.JSON(http.StatusOK, gin.H{"authenticated": ok, "role": caller.Role, "id": caller.ID})
	})
	router.GET("/", handlers...)
	return router
}

func request(t *testing.T, router *gin.Engine, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func signed(t *testing.T, id uuid.UUID) string {
	t.Helper()
	token, err := auth.SignToken(testSecret, id, "user@example.com", time.Hour)
	require.NoError(t, err)
	return token
}

func TestRequestIDGeneratedAndEchoed(t *testing.T) {
	router := newRouter()

	w := request(t, router, "")
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestRequireAuth(t *testing.T) {
	providerID := uuid.New()
	noProfileID := uuid.New()
	profiles := fakeProfiles{providerID: {ID: providerID, Role: models.RoleProvider}}
	router := newRouter(RequireAuth(testSecret, profiles))

	t.Run("missing token", func(t *testing.T) {
		w := request(t, router, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		w := request(t, router, "garbage")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("resolves role from profile", func(t *testing.T) {
		w := request(t, router, signed(t, providerID))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"role":"provider"`)
	})

	t.Run("no profile yet", func(t *testing.T) {
		w := request(t, router, signed(t, noProfileID))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"role":""`)
	})
}

func TestRequireAuthProfileLookupFailure(t *testing.T) {
	router := newRouter(RequireAuth(testSecret, failingProfiles{}))

	w := request(t, router, signed(t, uuid.New()))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestOptionalAuth(t *testing.T) {
	router := newRouter(OptionalAuth(testSecret, fakeProfiles{}))

	w := request(t, router, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"authenticated":false`)

	w = request(t, router, signed(t, uuid.New()))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"authenticated":true`)

	w = request(t, router, "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRoles(t *testing.T) {
	adminID := uuid.New()
	clientID := uuid.New()
	profiles := fakeProfiles{
		adminID:  {ID: adminID, Role: models.RoleAdmin},
		clientID: {ID: clientID, Role: models.RoleClient},
	}
	router := newRouter(RequireAuth(testSecret, profiles), RequireRoles(models.RoleAdmin))

	assert.Equal(t, http.StatusOK, request(t, router, signed(t, adminID)).Code)
	assert.Equal(t, http.StatusForbidden, request(t, router, signed(t, clientID)).Code)
	assert.Equal(t, http.StatusForbidden, request(t, router, signed(t, uuid.New())).Code)
}
