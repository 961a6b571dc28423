package server

import (
	"net/http"

	"github.com/compozy/techrag/engine/infra/server/router"
	"github.com/gin-gonic/gin"
)

// Metrics summary endpoint
//
//	@Summary      Aggregate step and session metrics
//	@Tags         metrics
//	@Produce      json
//	@Success      200 {object} agent.Summary
//	@Failure      503 {object} router.ErrorInfo
//	@Router       /api/v0/metrics/summary [get]
func CreateSummaryHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.deps.Summary == nil {
			router.RespondWithError(c,
				router.NewRequestError(http.StatusServiceUnavailable, "metrics collection is disabled", nil))
			return
		}
		summary, err := s.deps.Summary.AggregateSummary(c.Request.Context())
		if err != nil {
			router.RespondWithError(c,
				router.NewRequestError(http.StatusServiceUnavailable, "metrics summary unavailable", err))
			return
		}
		router.RespondOK(c, "Success", summary)
	}
}
