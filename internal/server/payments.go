package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	paymentdomain "github.com/pledgekit/fundway/internal/payment/domain"
)

type createIntentRequest struct {
	PledgeID string `json:"pledge_id" binding:"required"`
	Amount   int64  `json:"amount" binding:"required"`
	Currency string `json:"currency" binding:"required"`
}

func (s *Server) CreatePaymentIntent(c *gin.Context) {
	var req createIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	pledgeID, err := snowflake.ParseString(strings.TrimSpace(req.PledgeID))
	if err != nil {
		AbortWithError(c, newValidationError("pledge_id", "invalid_pledge_id", "invalid pledge id"))
		return
	}

	txn, err := s.paymentSvc.CreateIntent(c.Request.Context(), paymentdomain.CreateIntentInput{
		PledgeID: pledgeID,
		Amount:   req.Amount,
		Currency: req.Currency,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, txn)
}

func (s *Server) GetPayment(c *gin.Context) {
	txn, err := s.paymentSvc.Get(c.Request.Context(), c.Param("reference"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, txn)
}

func (s *Server) ListPaymentTransitions(c *gin.Context) {
	transitions, err := s.paymentSvc.Transitions(c.Request.Context(), c.Param("reference"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transitions": transitions})
}

func (s *Server) RefundPayment(c *gin.Context) {
	result, err := s.paymentSvc.Refund(c.Request.Context(), c.Param("reference"), time.Time{})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if result.Outcome == paymentdomain.OutcomeRejected {
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{
		"status":     result.Outcome,
		"payment_id": result.Reference,
		"old_status": result.OldStatus,
		"new_status": result.NewStatus,
		"version":    result.Version,
		"reason":     result.Reason,
	})
}
