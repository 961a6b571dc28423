package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/compozy/techrag/engine/agent"
	"github.com/compozy/techrag/engine/infra/server/router"
	"github.com/gin-gonic/gin"
)

type AskRequest struct {
	Question string `json:"question" binding:"required,max=4000"`
}

// Ask endpoint
//
//	@Summary      Answer a technical question
//	@Tags         ask
//	@Accept       json
//	@Produce      json
//	@Param        request body AskRequest true "Question"
//	@Success      200 {object} agent.Answer
//	@Failure      400 {object} router.ErrorInfo
//	@Router       /api/v0/ask [post]
func CreateAskHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxQuestionBytes)
		var req AskRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			router.RespondWithError(c, router.NewRequestError(http.StatusBadRequest, "invalid request body", err))
			return
		}
		ctx := c.Request.Context()
		if s.config.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
			defer cancel()
		}
		answer, err := s.deps.Answerer.Ask(ctx, req.Question)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, agent.ErrEmptyQuestion) {
				status = http.StatusBadRequest
			}
			router.RespondWithError(c, router.NewRequestError(status, "question could not be answered", err))
			return
		}
		router.RespondOK(c, "Success", answer)
	}
}
