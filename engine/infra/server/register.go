package server

import (
	"github.com/compozy/techrag/pkg/logger"
	"github.com/gin-gonic/gin"
)

const apiBase = "/api/v0"

func (s *Server) buildRouter(log logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(log))
	if s.deps.Monitoring != nil {
		r.Use(s.deps.Monitoring.GinMiddleware())
		r.GET(s.deps.Monitoring.Path(), gin.WrapH(s.deps.Monitoring.ExporterHandler()))
	}
	api := r.Group(apiBase)
	api.GET("/health", CreateHealthHandler(s))
	api.POST("/ask", CreateAskHandler(s))
	api.GET("/metrics/summary", CreateSummaryHandler(s))
	return r
}
