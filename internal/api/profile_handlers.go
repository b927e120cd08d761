package api

import (
	"net/http"

	"farm-market/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) getProfile(c *gin.Context) {
	profile, err := h.svc.Profiles.Profile(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *Handler) updateProfile(c *gin.Context) {
	var req service.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	profile, err := h.svc.Profiles.UpdateProfile(c.Request.Context(), userID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *Handler) listAddresses(c *gin.Context) {
	addresses, err := h.svc.Profiles.ListAddresses(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"addresses": addresses})
}

func (h *Handler) addAddress(c *gin.Context) {
	var req service.AddressInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	address, err := h.svc.Profiles.AddAddress(c.Request.Context(), userID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, address)
}

func (h *Handler) updateAddress(c *gin.Context) {
	var req service.AddressInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	address, err := h.svc.Profiles.UpdateAddress(c.Request.Context(), userID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, address)
}

func (h *Handler) deleteAddress(c *gin.Context) {
	if err := h.svc.Profiles.DeleteAddress(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listPaymentMethods(c *gin.Context) {
	methods, err := h.svc.Profiles.ListPaymentMethods(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment_methods": methods})
}

// addPaymentMethod never echoes the card number; the response carries the
// last four digits only.
func (h *Handler) addPaymentMethod(c *gin.Context) {
	var req service.PaymentMethodInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	method, err := h.svc.Profiles.AddPaymentMethod(c.Request.Context(), userID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, method)
}

func (h *Handler) deletePaymentMethod(c *gin.Context) {
	if err := h.svc.Profiles.DeletePaymentMethod(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) updatePreferences(c *gin.Context) {
	var req service.PreferencesInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	prefs, err := h.svc.Profiles.UpdatePreferences(c.Request.Context(), userID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"dietary_preferences":       prefs.Dietary,
		"communication_preferences": prefs.Communication,
		"message":                   "Preferences updated successfully",
	})
}
