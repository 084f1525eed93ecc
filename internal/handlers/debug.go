package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"chatty/internal/realtime"
)

type Auditor interface {
	Emit(ctx context.Context, action, requestID, userID string, fields map[string]any)
}

// ConnectionStats reports live registry state.
type ConnectionStats interface {
	Stats() realtime.RegistryStats
	OnlineUsers() []string
}

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, emitter Auditor, stats ConnectionStats, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "audit_test", requestIDFromContext(c), userIDFromContext(c), nil)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/debug/connections", func(c *gin.Context) {
		s := stats.Stats()
		c.JSON(http.StatusOK, gin.H{
			"users":       s.Users,
			"connections": s.Connections,
			"online":      stats.OnlineUsers(),
		})
	})
}
