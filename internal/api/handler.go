package api

import (
	"context"
	"html/template"
	"net/http"
	"time"

	"farm-market/internal/auth"
	"farm-market/internal/models"
	"farm-market/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services are the business services the handlers call.
type Services struct {
	Auth     *service.AuthService
	Products *service.ProductService
	Catalog  *service.CatalogService
	Carts    *service.CartService
	Orders   *service.OrderService
	Farmers  *service.FarmerService
	Profiles *service.ProfileService
	Wishlist *service.WishlistService
	Alerts   *service.AlertService
	Admin    *service.AdminService
}

// Handler contains HTTP handlers
type Handler struct {
	svc         Services
	tokens      *auth.TokenIssuer
	db          Pinger
	authLimiter *ipRateLimiter
	pages       *template.Template
}

// NewHandler creates a new HTTP handler. authRatePerMinute limits each
// client on the auth endpoints; zero disables the limit.
func NewHandler(svc Services, tokens *auth.TokenIssuer, db Pinger, authRatePerMinute int) *Handler {
	return &Handler{
		svc:         svc,
		tokens:      tokens,
		db:          db,
		authLimiter: newIPRateLimiter(authRatePerMinute),
		pages:       parsePages(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(requestLogger())
	router.SetHTMLTemplate(h.pages)

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")

	authGroup := v1.Group("/auth", h.authLimiter.middleware())
	{
		authGroup.POST("/register", h.register)
		authGroup.POST("/register/farmer", h.registerFarmer)
		authGroup.POST("/verify-email", h.verifyEmail)
		authGroup.POST("/login", h.login)
		authGroup.POST("/refresh", h.refresh)
		authGroup.POST("/forgot-password", h.forgotPassword)
		authGroup.POST("/reset-password", h.resetPassword)
		authGroup.GET("/password-requirements", h.passwordRequirements)
		authGroup.GET("/me", h.authRequired(), h.me)
	}

	catalog := v1.Group("/products")
	{
		catalog.GET("", h.listCatalog)
		catalog.GET("/featured", h.featuredProducts)
		catalog.GET("/categories", h.listCategories)
		catalog.GET("/:id", h.getCatalogProduct)
		catalog.GET("/:id/pricing", h.catalogPricing)
	}

	authed := v1.Group("", h.authRequired())

	cart := authed.Group("/cart")
	{
		cart.GET("", h.getCart)
		cart.DELETE("", h.clearCart)
		cart.GET("/count", h.cartCount)
		cart.GET("/validate", h.validateCart)
		cart.POST("/items", h.addCartItem)
		cart.PUT("/items/:id", h.updateCartItem)
		cart.DELETE("/items/:id", h.removeCartItem)
	}

	orders := authed.Group("/orders")
	{
		orders.POST("/checkout", h.checkout)
		orders.GET("", h.listOrders)
		orders.GET("/:id", h.getOrder)
		orders.POST("/:id/cancel", h.cancelOrder)
	}

	users := authed.Group("/users")
	{
		users.GET("/profile", h.getProfile)
		users.PUT("/profile", h.updateProfile)
		users.GET("/addresses", h.listAddresses)
		users.POST("/addresses", h.addAddress)
		users.PUT("/addresses/:id", h.updateAddress)
		users.DELETE("/addresses/:id", h.deleteAddress)
		users.GET("/payment-methods", h.listPaymentMethods)
		users.POST("/payment-methods", h.addPaymentMethod)
		users.DELETE("/payment-methods/:id", h.deletePaymentMethod)
		users.PUT("/preferences", h.updatePreferences)
	}

	wishlist := authed.Group("/wishlist")
	{
		wishlist.GET("", h.listWishlist)
		wishlist.POST("/:product_id", h.addToWishlist)
		wishlist.DELETE("/:product_id", h.removeFromWishlist)
		wishlist.GET("/:product_id/check", h.checkWishlist)
	}

	farmer := authed.Group("/farmer", requireRole(models.RoleFarmer), h.farmerContext())
	{
		farmer.GET("/profile", h.getFarmerProfile)
		farmer.PUT("/profile", h.updateFarmerProfile)
		farmer.GET("/bank-account", h.getBankAccount)
		farmer.PUT("/bank-account", h.saveBankAccount)
		farmer.DELETE("/bank-account", h.deleteBankAccount)

		products := farmer.Group("/products")
		products.POST("", h.createProduct)
		products.GET("", h.listFarmerProducts)
		products.GET("/:id", h.getFarmerProduct)
		products.PATCH("/:id", h.updateProduct)
		products.DELETE("/:id", h.deleteProduct)
		products.PUT("/:id/archive", h.archiveProduct)
		products.PUT("/:id/reactivate", h.reactivateProduct)
		products.PUT("/:id/inventory", h.updateInventory)
		products.PUT("/:id/out-of-stock", h.markOutOfStock)
		products.PUT("/:id/in-stock", h.markInStock)
		products.PUT("/:id/threshold", h.updateThreshold)
		products.PUT("/:id/price", h.updatePrice)
		products.PUT("/:id/discount", h.applyDiscount)
		products.DELETE("/:id/discount", h.removeDiscount)
		products.PUT("/:id/bulk-pricing", h.setBulkPricing)
		products.GET("/:id/bulk-pricing", h.getBulkPricing)
		products.DELETE("/:id/bulk-pricing", h.deleteBulkPricing)
		products.GET("/:id/price-history", h.priceHistory)
		products.GET("/:id/pricing", h.farmerPricing)
		products.POST("/:id/images", h.addImages)
		products.DELETE("/:id/images", h.removeImage)

		farmer.GET("/stock/low", h.lowStock)
		farmer.GET("/stock/alerts", h.listAlerts)
		farmer.POST("/stock/alerts/read", h.markAlertsRead)

		farmer.GET("/pages/products", h.productsFragment)
		farmer.GET("/pages/stock/low", h.lowStockFragment)
	}

	admin := authed.Group("/admin", requireRole(models.RoleAdmin))
	{
		admin.GET("/users", h.adminListUsers)
		admin.GET("/users/:id", h.adminGetUser)
		admin.PUT("/users/:id/role", h.adminChangeRole)
		admin.DELETE("/users/:id", h.adminDeleteUser)
		admin.GET("/farmers", h.adminListFarmers)
		admin.GET("/products", h.adminListProducts)
		admin.PATCH("/products/:id", h.adminUpdateProduct)
		admin.DELETE("/products/:id", h.adminDeleteProduct)
		admin.PUT("/orders/:id/status", h.adminAdvanceOrder)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready once the database answers
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not ready",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}
