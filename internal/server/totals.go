package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func (s *Server) GetCampaignTotals(c *gin.Context) {
	campaignID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_campaign_id", "invalid campaign id"))
		return
	}

	realtime := strings.EqualFold(c.Query("realtime"), "true")
	totals, err := s.totalsSvc.Read(c.Request.Context(), campaignID, realtime)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, totals)
}

func (s *Server) InvalidateCampaignTotals(c *gin.Context) {
	campaignID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_campaign_id", "invalid campaign id"))
		return
	}

	if err := s.totalsSvc.Invalidate(c.Request.Context(), campaignID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
