package server

import (
	"io"

	"github.com/gin-gonic/gin"
)

func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil || len(payload) == 0 {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.webhookSvc.Handle(c.Request.Context(), c.GetHeader("Idempotency-Key"), payload)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if resp.Duplicate {
		c.Header("X-Idempotent-Replay", "true")
	}
	c.Data(resp.StatusCode, "application/json", resp.Body)
}
