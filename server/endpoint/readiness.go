package endpoint

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/gowizard/health"
)

// Readiness returns a handler for Kubernetes readiness probes. The service
// is not ready while it shuts down or while any health check fails; the
// failing check names are listed in the response.
func Readiness(name string, registry *health.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "ready"
		httpStatus := http.StatusOK
		failing := []string{}

		if registry.ShuttingDown() {
			status = "shutting_down"
			httpStatus = http.StatusServiceUnavailable
		} else {
			for check, result := range registry.RunAll(c.Request.Context()) {
				if !result.Healthy {
					failing = append(failing, check)
				}
			}
			if len(failing) > 0 {
				sort.Strings(failing)
				status = "not_ready"
				httpStatus = http.StatusServiceUnavailable
			}
		}

		c.JSON(httpStatus, gin.H{
			"status":    status,
			"name":      name,
			"failing":   failing,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}
