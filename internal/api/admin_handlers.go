package api

import (
	"net/http"

	"farm-market/internal/models"
	"farm-market/internal/service"

	"github.com/gin-gonic/gin"
)

type roleRequest struct {
	Role models.Role `json:"role" binding:"required"`
}

type orderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) adminListUsers(c *gin.Context) {
	page, err := h.svc.Admin.ListUsers(c.Request.Context(), models.UserFilter{
		Role:     models.Role(c.Query("role")),
		Search:   c.Query("search"),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 0),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) adminGetUser(c *gin.Context) {
	user, err := h.svc.Admin.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) adminChangeRole(c *gin.Context) {
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, err := h.svc.Admin.ChangeRole(c.Request.Context(), userID(c), c.Param("id"), req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) adminDeleteUser(c *gin.Context) {
	if err := h.svc.Admin.DeleteUser(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user deleted"})
}

func (h *Handler) adminListFarmers(c *gin.Context) {
	page, err := h.svc.Admin.ListFarmers(c.Request.Context(), queryInt(c, "page", 1), queryInt(c, "page_size", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) adminListProducts(c *gin.Context) {
	page, err := h.svc.Admin.ListProducts(c.Request.Context(), productFilter(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) adminUpdateProduct(c *gin.Context) {
	var req service.UpdateProductInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	view, err := h.svc.Admin.UpdateProduct(c.Request.Context(), c.Param("id"), req)
	respondProduct(c, view, err)
}

func (h *Handler) adminDeleteProduct(c *gin.Context) {
	if err := h.svc.Admin.DeleteProduct(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "product deleted"})
}

func (h *Handler) adminAdvanceOrder(c *gin.Context) {
	var req orderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	order, err := h.svc.Admin.AdvanceOrder(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
