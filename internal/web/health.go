package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "webharbour-api"

// HandleHealth reports liveness with the current server time.
func HandleHealth(now func() time.Time) gin.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": ServiceName,
			"time":    now().UTC().Format(time.RFC3339),
		})
	}
}

// HandleNotFound answers unknown routes with a JSON body.
func HandleNotFound(contextGin *gin.Context) {
	contextGin.JSON(http.StatusNotFound, gin.H{"message": "Not Found"})
}
