package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	pledgedomain "github.com/pledgekit/fundway/internal/pledge/domain"
)

type createPledgeRequest struct {
	CampaignID string          `json:"campaign_id" binding:"required"`
	DonorEmail string          `json:"donor_email" binding:"required"`
	Amount     int64           `json:"amount" binding:"required"`
	Currency   string          `json:"currency" binding:"required"`
	Metadata   json.RawMessage `json:"metadata"`
}

func (s *Server) CreatePledge(c *gin.Context) {
	var req createPledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	campaignID, err := snowflake.ParseString(strings.TrimSpace(req.CampaignID))
	if err != nil {
		AbortWithError(c, newValidationError("campaign_id", "invalid_campaign_id", "invalid campaign id"))
		return
	}

	pledge, err := s.pledgeSvc.Create(c.Request.Context(), pledgedomain.CreateInput{
		CampaignID: campaignID,
		DonorEmail: req.DonorEmail,
		Amount:     req.Amount,
		Currency:   req.Currency,
		Metadata:   req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, pledge)
}

func (s *Server) GetPledge(c *gin.Context) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_pledge_id", "invalid pledge id"))
		return
	}

	pledge, err := s.pledgeSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, pledge)
}

func (s *Server) ListCampaignPledges(c *gin.Context) {
	campaignID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_campaign_id", "invalid campaign id"))
		return
	}

	limit := 50
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
			return
		}
		limit = parsed
	}

	pledges, err := s.pledgeSvc.ListByCampaign(c.Request.Context(), campaignID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"pledges": pledges})
}
