package api

import (
	"net/http"
	"strconv"

	"farm-market/internal/models"

	"github.com/gin-gonic/gin"
)

// queryInt parses an integer query parameter, falling back to def when it
// is absent or malformed.
func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}

func productFilter(c *gin.Context) models.ProductFilter {
	return models.ProductFilter{
		Status:   models.ProductStatus(c.Query("status")),
		Category: models.Category(c.Query("category")),
		Search:   c.Query("search"),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 0),
	}
}

func (h *Handler) listCatalog(c *gin.Context) {
	f := productFilter(c)
	f.Status = ""
	page, err := h.svc.Catalog.Catalog(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) featuredProducts(c *gin.Context) {
	products, err := h.svc.Catalog.Featured(c.Request.Context(), queryInt(c, "limit", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *Handler) listCategories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"categories": h.svc.Catalog.Categories()})
}

func (h *Handler) getCatalogProduct(c *gin.Context) {
	detail, err := h.svc.Catalog.Product(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *Handler) catalogPricing(c *gin.Context) {
	quote, err := h.svc.Catalog.Quote(c.Request.Context(), c.Param("id"), queryInt(c, "quantity", 1))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

type cartItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity"`
}

type quantityRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

func (h *Handler) getCart(c *gin.Context) {
	cart, err := h.svc.Carts.GetCart(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *Handler) addCartItem(c *gin.Context) {
	var req cartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.svc.Carts.AddItem(c.Request.Context(), userID(c), req.ProductID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) updateCartItem(c *gin.Context) {
	var req quantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.svc.Carts.UpdateItem(c.Request.Context(), userID(c), c.Param("id"), *req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) removeCartItem(c *gin.Context) {
	res, err := h.svc.Carts.RemoveItem(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) clearCart(c *gin.Context) {
	res, err := h.svc.Carts.Clear(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) cartCount(c *gin.Context) {
	count, err := h.svc.Carts.Count(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (h *Handler) validateCart(c *gin.Context) {
	issues, err := h.svc.Carts.Validate(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"valid":  len(issues) == 0,
		"issues": issues,
	})
}

type checkoutRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// checkout takes the idempotency key from the body or the Idempotency-Key
// header. A replayed checkout answers 200 instead of 201.
func (h *Handler) checkout(c *gin.Context) {
	var req checkoutRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	res, err := h.svc.Orders.Checkout(c.Request.Context(), userID(c), req.IdempotencyKey)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, res)
}

func (h *Handler) listOrders(c *gin.Context) {
	page, err := h.svc.Orders.ListOrders(c.Request.Context(), userID(c),
		queryInt(c, "page", 1), queryInt(c, "page_size", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.svc.Orders.GetOrder(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) cancelOrder(c *gin.Context) {
	var req cancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	order, err := h.svc.Orders.CancelOrder(c.Request.Context(), userID(c), c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) listWishlist(c *gin.Context) {
	entries, err := h.svc.Wishlist.List(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": entries, "count": len(entries)})
}

func (h *Handler) addToWishlist(c *gin.Context) {
	item, err := h.svc.Wishlist.Add(c.Request.Context(), userID(c), c.Param("product_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *Handler) removeFromWishlist(c *gin.Context) {
	if err := h.svc.Wishlist.Remove(c.Request.Context(), userID(c), c.Param("product_id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "removed from wishlist"})
}

func (h *Handler) checkWishlist(c *gin.Context) {
	ok, err := h.svc.Wishlist.Contains(c.Request.Context(), userID(c), c.Param("product_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"in_wishlist": ok})
}
