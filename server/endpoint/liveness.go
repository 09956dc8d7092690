package endpoint

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Liveness returns a handler for Kubernetes liveness probes.
// It confirms the process is alive and able to serve HTTP.
func Liveness(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "alive",
			"name":      name,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}
