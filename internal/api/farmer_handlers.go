package api

import (
	"net/http"

	"farm-market/internal/models"
	"farm-market/internal/pricing"
	"farm-market/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type priceRequest struct {
	Price  decimal.Decimal `json:"price"`
	Reason *string         `json:"reason"`
}

type thresholdRequest struct {
	Threshold *int `json:"low_stock_threshold" binding:"required"`
}

type bulkPricingRequest struct {
	Tiers []pricing.Tier `json:"tiers" binding:"required"`
}

type imagesRequest struct {
	URLs []string `json:"image_urls" binding:"required,min=1"`
}

type markReadRequest struct {
	AlertIDs []string `json:"alert_ids"`
}

func (h *Handler) getFarmerProfile(c *gin.Context) {
	profile, err := h.svc.Farmers.Profile(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *Handler) updateFarmerProfile(c *gin.Context) {
	var req models.FarmDetails
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	profile, err := h.svc.Farmers.UpdateFarmDetails(c.Request.Context(), userID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *Handler) getBankAccount(c *gin.Context) {
	acct, err := h.svc.Farmers.BankAccount(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, acct)
}

func (h *Handler) saveBankAccount(c *gin.Context) {
	var req service.BankAccountInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	acct, err := h.svc.Farmers.SaveBankAccount(c.Request.Context(), userID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, acct)
}

func (h *Handler) deleteBankAccount(c *gin.Context) {
	if err := h.svc.Farmers.DeleteBankAccount(c.Request.Context(), userID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) createProduct(c *gin.Context) {
	var req service.CreateProductInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	view, err := h.svc.Products.CreateProduct(c.Request.Context(), farmerID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *Handler) listFarmerProducts(c *gin.Context) {
	page, err := h.svc.Products.ListProducts(c.Request.Context(), farmerID(c), productFilter(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) getFarmerProduct(c *gin.Context) {
	view, err := h.svc.Products.GetProduct(c.Request.Context(), farmerID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) updateProduct(c *gin.Context) {
	var req service.UpdateProductInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	view, err := h.svc.Products.UpdateProduct(c.Request.Context(), farmerID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) deleteProduct(c *gin.Context) {
	if err := h.svc.Products.DeleteProduct(c.Request.Context(), farmerID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "product deleted"})
}

func respondProduct(c *gin.Context, view *service.ProductView, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) archiveProduct(c *gin.Context) {
	view, err := h.svc.Products.ArchiveProduct(c.Request.Context(), farmerID(c), c.Param("id"))
	respondProduct(c, view, err)
}

func (h *Handler) reactivateProduct(c *gin.Context) {
	view, err := h.svc.Products.ReactivateProduct(c.Request.Context(), farmerID(c), c.Param("id"))
	respondProduct(c, view, err)
}

func (h *Handler) markOutOfStock(c *gin.Context) {
	view, err := h.svc.Products.MarkOutOfStock(c.Request.Context(), farmerID(c), c.Param("id"))
	respondProduct(c, view, err)
}

func (h *Handler) removeDiscount(c *gin.Context) {
	view, err := h.svc.Products.RemoveDiscount(c.Request.Context(), farmerID(c), c.Param("id"))
	respondProduct(c, view, err)
}

func (h *Handler) deleteBulkPricing(c *gin.Context) {
	view, err := h.svc.Products.DeleteBulkPricing(c.Request.Context(), farmerID(c), c.Param("id"))
	respondProduct(c, view, err)
}

func (h *Handler) updateInventory(c *gin.Context) {
	var req quantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	view, err := h.svc.Products.UpdateInventory(c.Request.Context(), farmerID(c), c.Param("id"), *req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) markInStock(c *gin.Context) {
	var req quantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	view, err := h.svc.Products.MarkInStock(c.Request.Context(), farmerID(c), c.Param("id"), *req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) updateThreshold(c *gin.Context) {
	var req thresholdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	view, err := h.svc.Products.UpdateThreshold(c.Request.Context(), farmerID(c), c.Param("id"), *req.Threshold)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) updatePrice(c *gin.Context) {
	var req priceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	view, err := h.svc.Products.UpdatePrice(c.Request.Context(), farmerID(c), c.Param("id"), userID(c), req.Price, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) applyDiscount(c *gin.Context) {
	var req pricing.Discount
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	view, err := h.svc.Products.ApplyDiscount(c.Request.Context(), farmerID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) setBulkPricing(c *gin.Context) {
	var req bulkPricingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	view, err := h.svc.Products.SetBulkPricing(c.Request.Context(), farmerID(c), c.Param("id"), req.Tiers)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) getBulkPricing(c *gin.Context) {
	tiers, err := h.svc.Products.GetBulkPricing(c.Request.Context(), farmerID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tiers": tiers})
}

func (h *Handler) priceHistory(c *gin.Context) {
	history, err := h.svc.Products.PriceHistory(c.Request.Context(), farmerID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

func (h *Handler) farmerPricing(c *gin.Context) {
	quote, err := h.svc.Products.Quote(c.Request.Context(), farmerID(c), c.Param("id"), queryInt(c, "quantity", 1))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (h *Handler) addImages(c *gin.Context) {
	var req imagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	view, err := h.svc.Products.AddImages(c.Request.Context(), farmerID(c), c.Param("id"), req.URLs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) removeImage(c *gin.Context) {
	view, err := h.svc.Products.RemoveImage(c.Request.Context(), farmerID(c), c.Param("id"), c.Query("url"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) lowStock(c *gin.Context) {
	products, err := h.svc.Products.LowStockProducts(c.Request.Context(), farmerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products, "count": len(products)})
}

func (h *Handler) listAlerts(c *gin.Context) {
	alerts, err := h.svc.Alerts.List(c.Request.Context(), farmerID(c), c.Query("unread") == "true")
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

func (h *Handler) markAlertsRead(c *gin.Context) {
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	n, err := h.svc.Alerts.MarkRead(c.Request.Context(), farmerID(c), req.AlertIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked_read": n})
}
