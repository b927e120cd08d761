package api

import (
	"errors"
	"net/http"

	"farm-market/internal/service"
	"farm-market/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func statusFor(kind service.Kind) int {
	switch kind {
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindValidation, service.KindBusinessRule:
		return http.StatusBadRequest
	case service.KindVersionConflict, service.KindConflict:
		return http.StatusConflict
	case service.KindUnauthorized:
		return http.StatusUnauthorized
	case service.KindForbidden:
		return http.StatusForbidden
	case service.KindLocked:
		return http.StatusLocked
	}
	return http.StatusInternalServerError
}

// respondError writes err as a JSON error body. Service errors keep their
// message; anything else is logged and hidden behind a 500.
func respondError(c *gin.Context, err error) {
	var e *service.Error
	if errors.As(err, &e) {
		body := gin.H{"error": e.Message, "code": e.Kind.String()}
		if len(e.Details) > 0 {
			body["details"] = e.Details
		}
		c.AbortWithStatusJSON(statusFor(e.Kind), body)
		return
	}

	util.GetLogger().Error("Request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Error(err))
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error": "internal server error",
	})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":   "invalid request body",
		"details": err.Error(),
	})
}
