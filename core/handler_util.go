package core

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	ctxKeyGateReason = "gate_reason"
	ctxKeyRequestID  = "request_id"
)

// respondMessage sends the API's uniform payload {"message": ...}.
func respondMessage(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"message": message})
}

func respondInternal(c *gin.Context) {
	respondMessage(c, http.StatusInternalServerError, "internal server error")
}
