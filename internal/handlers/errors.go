package handlers

import (
	"net/http"
	"time"

	"serverless-container/internal/middleware"

	"github.com/gin-gonic/gin"
)

// abortWithError writes a standard error response and stops the chain
func abortWithError(c *gin.Context, status int, title, message string) {
	c.AbortWithStatusJSON(status, middleware.ErrorResponse{
		Error:     title,
		Message:   message,
		RequestID: c.GetString(middleware.RequestIDKey),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func badRequest(c *gin.Context, message string) {
	abortWithError(c, http.StatusBadRequest, "Invalid request", message)
}
