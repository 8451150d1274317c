package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campuskit/scheduler-api/internal/service"
)

// Routes that only the scrapers and probes hit. Recording them would drown
// the latency histograms in noise that says nothing about booking traffic.
var unobservedPaths = map[string]struct{}{
	"/metrics": {},
	"/health":  {},
	"/ready":   {},
}

// Metrics returns middleware that captures request metrics using the provided service.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		if _, skip := unobservedPaths[path]; skip {
			return
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
