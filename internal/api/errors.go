package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"restodash/server/internal/services"
)

// respondError переводит ошибки сервисов в HTTP статус
func respondError(c *gin.Context, err error) {
	var (
		validation *services.ValidationError
		transition *services.InvalidTransitionError
		storeErr   *services.StoreWriteError
	)
	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "field": validation.Field, "details": validation.Reason})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found", "details": err.Error()})
	case errors.As(err, &transition):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid transition", "from": transition.From, "to": transition.To, "details": err.Error()})
	case errors.As(err, &storeErr):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store write failed", "retryable": storeErr.Retryable(), "details": err.Error()})
	default:
		log.Printf("❌ %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "details": err.Error()})
	}
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
