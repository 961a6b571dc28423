package server

import (
	"github.com/compozy/techrag/engine/infra/server/router"
	"github.com/compozy/techrag/pkg/version"
	"github.com/gin-gonic/gin"
)

// Health endpoint
//
//	@Summary      Get server health
//	@Tags         health
//	@Produce      json
//	@Success      200 {object} map[string]interface{} "Service is healthy"
//	@Router       /api/v0/health [get]
func CreateHealthHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		metricsReady := s.deps.Monitoring != nil && s.deps.Monitoring.IsInitialized()
		router.RespondOK(c, "Success", gin.H{
			"status":  "healthy",
			"version": version.Get(),
			"metrics": gin.H{
				"prometheus": metricsReady,
				"summary":    s.deps.Summary != nil,
			},
		})
	}
}
