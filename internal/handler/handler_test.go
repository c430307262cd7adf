package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Charlsz/localmarket/internal/auth"
	"github.com/Charlsz/localmarket/internal/database"
	"github.com/Charlsz/localmarket/internal/models"
	"github.com/Charlsz/localmarket/internal/service"
	"github.com/Charlsz/localmarket/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "handler-secret"

// --- Fake services ---

type fakeServices struct {
	profiles map[uuid.UUID]*models.Profile
	err      error

	created bool

	lastQuery    service.ProductQuery
	lastQuantity int
	lastKey      string
	lastStatus   models.OrderStatus
}

func (f *fakeServices) GetProfile(_ context.Context, id uuid.UUID) (*models.Profile, error) {
	if p, ok := f.profiles[id]; ok {
		return p, nil
	}
	return nil, database.ErrProfileNotFound
}

func (f *fakeServices) Me(_ context.Context, caller auth.Caller) (*service.Me, error) {
	return &service.Me{ID: caller.ID, Email: caller.Email, Profile: f.profiles[caller.ID]}, f.err
}

func (f *fakeServices) Create(_ context.Context, caller auth.Caller, in service.ProfileInput) (*models.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Profile{ID: caller.ID, Role: in.Role}, nil
}

func (f *fakeServices) Update(_ context.Context, caller auth.Caller, _ service.ProfileInput) (*models.Profile, error) {
	return &models.Profile{ID: caller.ID, Role: caller.Role}, f.err
}

func (f *fakeServices) SetVerified(_ context.Context, _ auth.Caller, id uuid.UUID, verified bool) (*models.Profile, error) {
	return &models.Profile{ID: id, IsVerified: verified}, f.err
}

func (f *fakeServices) ListProducts(_ context.Context, q service.ProductQuery) (*store.OffsetPage, error) {
	f.lastQuery = q
	if f.err != nil {
		return nil, f.err
	}
	return &store.OffsetPage{Items: []models.ProductWithProvider{}, Page: 1, PageSize: 20}, nil
}

func (f *fakeServices) GetProduct(_ context.Context, _ auth.Caller, id uuid.UUID) (*models.ProductWithProvider, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.ProductWithProvider{Product: models.Product{ID: id, Name: "Miel"}}, nil
}

func (f *fakeServices) CreateProduct(_ context.Context, caller auth.Caller, in service.ProductInput) (*models.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Product{ID: uuid.New(), ProviderID: caller.ID, Name: *in.Name}, nil
}

func (f *fakeServices) UpdateProduct(_ context.Context, _ auth.Caller, id uuid.UUID, _ service.ProductInput) (*models.Product, error) {
	return &models.Product{ID: id}, f.err
}

func (f *fakeServices) DeleteProduct(context.Context, auth.Caller, uuid.UUID) error {
	return f.err
}

func (f *fakeServices) ProviderPage(_ context.Context, id uuid.UUID) (*service.ProviderPage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &service.ProviderPage{Provider: &models.Profile{ID: id}}, nil
}

func (f *fakeServices) Submit(_ context.Context, caller auth.Caller, productID uuid.UUID, in service.ReviewInput) (*models.Review, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Review{ProductID: productID, UserID: caller.ID, Rating: in.Rating}, nil
}

func (f *fakeServices) List(context.Context, uuid.UUID) (*service.ReviewList, error) {
	return &service.ReviewList{Reviews: []models.Review{}}, f.err
}

func (f *fakeServices) GetCart(_ context.Context, caller auth.Caller) (*models.CartView, error) {
	return &models.CartView{Cart: models.Cart{UserID: caller.ID}, Items: []models.CartItem{}, Currency: "COP"}, f.err
}

func (f *fakeServices) AddItem(_ context.Context, _ auth.Caller, productID uuid.UUID, quantity int) (*models.CartItem, bool, error) {
	f.lastQuantity = quantity
	if f.err != nil {
		return nil, false, f.err
	}
	return &models.CartItem{ID: uuid.New(), ProductID: productID, Quantity: quantity}, f.created, nil
}

func (f *fakeServices) UpdateItem(_ context.Context, _ auth.Caller, itemID uuid.UUID, quantity int) (*models.CartItem, error) {
	f.lastQuantity = quantity
	if f.err != nil {
		return nil, f.err
	}
	return &models.CartItem{ID: itemID, Quantity: quantity}, nil
}

func (f *fakeServices) RemoveItem(context.Context, auth.Caller, uuid.UUID) error {
	return f.err
}

func (f *fakeServices) ClearCart(context.Context, auth.Caller) error {
	return f.err
}

func (f *fakeServices) Checkout(_ context.Context, caller auth.Caller, _ service.ShippingDetails, key string) (*models.Order, bool, error) {
	f.lastKey = key
	if f.err != nil {
		return nil, false, f.err
	}
	return &models.Order{ID: uuid.New(), UserID: caller.ID, OrderNumber: "ORD-1-ABCDEFG", Total: decimal.NewFromInt(30)}, f.created, nil
}

func (f *fakeServices) ListOrders(_ context.Context, _ auth.Caller, status models.OrderStatus, _ string, _ int) (*store.CursorPage, error) {
	f.lastStatus = status
	if f.err != nil {
		return nil, f.err
	}
	return &store.CursorPage{Items: []models.Order{}}, nil
}

func (f *fakeServices) GetOrder(_ context.Context, _ auth.Caller, id uuid.UUID) (*models.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Order{ID: id}, nil
}

func (f *fakeServices) UpdateStatus(_ context.Context, _ auth.Caller, id uuid.UUID, u service.StatusUpdate) (*models.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Order{ID: id, Status: *u.Status}, nil
}

func (f *fakeServices) MyProducts(context.Context, auth.Caller) ([]models.ProductWithProvider, error) {
	return []models.ProductWithProvider{}, f.err
}

func (f *fakeServices) MyOrders(_ context.Context, _ auth.Caller, status models.OrderStatus) (*service.ProviderOrders, error) {
	f.lastStatus = status
	return &service.ProviderOrders{Orders: []models.Order{}}, f.err
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

// --- Helpers ---

type env struct {
	router *gin.Engine
	fake   *fakeServices
	client uuid.UUID
	seller uuid.UUID
	admin  uuid.UUID
}

func setup(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	e := &env{client: uuid.New(), seller: uuid.New(), admin: uuid.New()}
	e.fake = &fakeServices{profiles: map[uuid.UUID]*models.Profile{
		e.client: {ID: e.client, Role: models.RoleClient},
		e.seller: {ID: e.seller, Role: models.RoleProvider},
		e.admin:  {ID: e.admin, Role: models.RoleAdmin},
	}}

	svc := Services{
		Catalog:   e.fake,
		Carts:     e.fake,
		Checkout:  e.fake,
		Orders:    e.fake,
		Reviews:   e.fake,
		Profiles:  e.fake,
		Dashboard: e.fake,
	}
	e.router = NewRouter(svc, testSecret, fakePinger{}, zap.NewNop())
	return e
}

func (e *env) do(t *testing.T, method, path string, userID uuid.UUID, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != uuid.Nil {
		token, err := auth.SignToken(testSecret, userID, "user@example.com", time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error
}

// --- Tests ---

func TestHealth(t *testing.T) {
	e := setup(t)
	w := e.do(t, http.MethodGet, "/health", uuid.Nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	router := NewRouter(Services{Profiles: e.fake}, testSecret, fakePinger{err: errors.New("down")}, zap.NewNop())
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestListProductsPassesFilters(t *testing.T) {
	e := setup(t)

	w := e.do(t, http.MethodGet, "/api/products?category=honey&featured=true&search=miel&page=2&page_size=5", uuid.Nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, service.ProductQuery{
		Category: models.CategoryHoney,
		Featured: true,
		Search:   "miel",
		Page:     2,
		PageSize: 5,
	}, e.fake.lastQuery)
	assert.Contains(t, w.Body.String(), `"data"`)
}

func TestGetProductErrors(t *testing.T) {
	e := setup(t)

	w := e.do(t, http.MethodGet, "/api/products/not-a-uuid", uuid.Nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	e.fake.err = database.ErrProductNotFound
	w = e.do(t, http.MethodGet, "/api/products/"+uuid.NewString(), uuid.Nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "product not found", errorBody(t, w))
}

func TestCartRequiresAuth(t *testing.T) {
	e := setup(t)

	w := e.do(t, http.MethodGet, "/api/cart", uuid.Nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, http.MethodGet, "/api/cart", e.client, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAddItem(t *testing.T) {
	e := setup(t)
	productID := uuid.New()

	e.fake.created = true
	w := e.do(t, http.MethodPost, "/api/cart", e.client, map[string]interface{}{"product_id": productID})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, e.fake.lastQuantity)

	e.fake.created = false
	w = e.do(t, http.MethodPost, "/api/cart", e.client, map[string]interface{}{"product_id": productID, "quantity": 2})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, e.fake.lastQuantity)

	w = e.do(t, http.MethodPost, "/api/cart", e.client, map[string]interface{}{"quantity": 2})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, "/api/cart", e.client, "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	e.fake.err = &service.StockError{ProductName: "Miel", Available: 5, Requested: 6}
	w = e.do(t, http.MethodPost, "/api/cart", e.client, map[string]interface{}{"product_id": productID, "quantity": 6})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, errorBody(t, w), "Miel")
}

func TestRemoveItemForbidden(t *testing.T) {
	e := setup(t)
	e.fake.err = service.ErrForbidden

	w := e.do(t, http.MethodDelete, "/api/cart/"+uuid.NewString(), e.client, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCheckout(t *testing.T) {
	e := setup(t)
	details := map[string]string{
		"shipping_name":    "Ana",
		"shipping_phone":   "300",
		"shipping_address": "Calle 1",
	}

	e.fake.created = true
	w := e.do(t, http.MethodPost, "/api/checkout", e.client, details, "Idempotency-Key", "abc")
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "abc", e.fake.lastKey)

	e.fake.created = false
	w = e.do(t, http.MethodPost, "/api/checkout", e.client, details, "Idempotency-Key", "abc")
	assert.Equal(t, http.StatusOK, w.Code)

	e.fake.err = service.ErrEmptyCart
	w = e.do(t, http.MethodPost, "/api/checkout", e.client, details)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "cart is empty", errorBody(t, w))
}

func TestUpdateOrderStatusErrors(t *testing.T) {
	e := setup(t)
	path := "/api/orders/" + uuid.NewString()
	body := map[string]string{"status": "shipped"}

	e.fake.err = fmt.Errorf("%w: pending to shipped", service.ErrInvalidTransition)
	w := e.do(t, http.MethodPut, path, e.seller, body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, errorBody(t, w), "pending to shipped")

	e.fake.err = service.ErrForbidden
	w = e.do(t, http.MethodPut, path, e.client, body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	e.fake.err = database.ErrOptimisticLockFailed
	w = e.do(t, http.MethodPut, path, e.seller, body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	e.fake.err = nil
	w = e.do(t, http.MethodPut, path, e.seller, body)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"shipped"`)
}

func TestListOrdersStatusFilter(t *testing.T) {
	e := setup(t)

	w := e.do(t, http.MethodGet, "/api/orders?status=pending&limit=5", e.client, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.OrderStatusPending, e.fake.lastStatus)
}

func TestSubmitReviewNotEligible(t *testing.T) {
	e := setup(t)
	e.fake.err = service.ErrNotEligible

	w := e.do(t, http.MethodPost, "/api/products/"+uuid.NewString()+"/reviews", e.seller,
		map[string]interface{}{"rating": 5, "comment": "Mi propio producto"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	e.fake.err = database.ErrAlreadyReviewed
	w = e.do(t, http.MethodPost, "/api/products/"+uuid.NewString()+"/reviews", e.client,
		map[string]interface{}{"rating": 5, "comment": "Segunda reseña"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDashboardRequiresProvider(t *testing.T) {
	e := setup(t)

	w := e.do(t, http.MethodGet, "/api/dashboard/orders", e.client, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, http.MethodGet, "/api/dashboard/orders?status=confirmed", e.seller, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.OrderStatusConfirmed, e.fake.lastStatus)

	w = e.do(t, http.MethodGet, "/api/dashboard/products", uuid.New(), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminVerify(t *testing.T) {
	e := setup(t)
	path := "/api/admin/profiles/" + e.seller.String()

	w := e.do(t, http.MethodPatch, path, e.seller, map[string]bool{"is_verified": true})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, http.MethodPatch, path, e.admin, map[string]bool{"is_verified": true})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"is_verified":true`)

	w = e.do(t, http.MethodPatch, path, e.admin, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMeWithoutProfile(t *testing.T) {
	e := setup(t)

	w := e.do(t, http.MethodGet, "/api/auth/me", uuid.New(), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"profile":null`)
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	e := setup(t)
	e.fake.err = errors.New("pq: password authentication failed")

	w := e.do(t, http.MethodGet, "/api/orders/"+uuid.NewString(), e.client, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", errorBody(t, w))
}
