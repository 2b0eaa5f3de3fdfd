package main

import (
	"net/http"
	"time"

	"call-relay/internal/httpapi"
	"call-relay/pkg/utils"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, a *app, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if a.db != nil {
			if err := utils.HealthCheck(c.Request.Context(), a.db, 2*time.Second); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(a.metrics.Handler()))

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)

	h := httpapi.Handlers{
		Calls:     a.calls,
		Directory: a.directory,
		Signaling: a.signaling,
		Stats:     a.stats,
		Sweeper:   a.sweeper,
		Audit:     a.audit,
	}
	h.Register(v1)
}
