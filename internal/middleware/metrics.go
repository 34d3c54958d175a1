package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/markbookhq/markbook-api/internal/service"
)

// Metrics records one duration observation per request, labelled by the
// route template rather than the raw path so path parameters do not explode
// the label cardinality.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			// 404s and other unmatched requests share one label.
			route = "unmatched"
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
