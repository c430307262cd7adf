package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/Charlsz/localmarket/internal/middleware"
	"github.com/Charlsz/localmarket/internal/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Services struct {
	Catalog   Catalog
	Carts     CartManager
	Checkout  CheckoutProcessor
	Orders    OrderManager
	Reviews   ReviewManager
	Profiles  ProfileManager
	Dashboard Dashboard
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

func NewRouter(svc Services, jwtSecret string, db Pinger, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))

	router.GET("/health", health(db))

	carts := NewCartHandler(svc.Carts, svc.Checkout, logger)
	orders := NewOrderHandler(svc.Orders, svc.Dashboard, logger)
	products := NewProductHandler(svc.Catalog, svc.Reviews, logger)
	profiles := NewProfileHandler(svc.Profiles, logger)

	api := router.Group("/api")

	public := api.Group("", middleware.OptionalAuth(jwtSecret, svc.Profiles))
	{
		public.GET("/products", products.ListProducts)
		public.GET("/products/:id", products.GetProduct)
		public.GET("/products/:id/reviews", products.ListReviews)
		public.GET("/providers/:id", products.GetProvider)
	}

	authed := api.Group("", middleware.RequireAuth(jwtSecret, svc.Profiles))
	{
		authed.GET("/auth/me", profiles.Me)
		authed.PUT("/auth/me", profiles.UpdateMe)
		authed.POST("/auth/profile", profiles.CreateProfile)

		authed.GET("/cart", carts.GetCart)
		authed.POST("/cart", carts.AddItem)
		authed.DELETE("/cart", carts.ClearCart)
		authed.PUT("/cart/:itemId", carts.UpdateItem)
		authed.DELETE("/cart/:itemId", carts.RemoveItem)
		authed.POST("/checkout", carts.Checkout)

		authed.GET("/orders", orders.ListOrders)
		authed.GET("/orders/:id", orders.GetOrder)
		authed.PUT("/orders/:id", orders.UpdateStatus)

		authed.POST("/products", products.CreateProduct)
		authed.PUT("/products/:id", products.UpdateProduct)
		authed.DELETE("/products/:id", products.DeleteProduct)
		authed.POST("/products/:id/reviews", products.SubmitReview)

		dashboard := authed.Group("/dashboard", middleware.RequireRoles(models.RoleProvider))
		dashboard.GET("/products", orders.MyProducts)
		dashboard.GET("/orders", orders.MyOrders)

		admin := authed.Group("/admin", middleware.RequireRoles(models.RoleAdmin))
		admin.PATCH("/profiles/:id", profiles.SetVerified)
	}

	return router
}

func health(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": "unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "database": "ok"})
	}
}
