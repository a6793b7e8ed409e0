package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	idemdomain "github.com/pledgekit/fundway/internal/idempotency/domain"
	paymentdomain "github.com/pledgekit/fundway/internal/payment/domain"
	pledgedomain "github.com/pledgekit/fundway/internal/pledge/domain"
	totalsdomain "github.com/pledgekit/fundway/internal/totals/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := err.Error()
		code = strings.ReplaceAll(code, " ", "_")
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(err),
					Code:    code,
					Message: err.Error(),
				},
			},
		}
	}

	switch {
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, idemdomain.ErrInFlight),
		errors.Is(err, paymentdomain.ErrVersionConflict):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, pledgedomain.ErrInvalidCampaign),
		errors.Is(err, pledgedomain.ErrInvalidDonor),
		errors.Is(err, pledgedomain.ErrInvalidAmount),
		errors.Is(err, pledgedomain.ErrInvalidCurrency),
		errors.Is(err, pledgedomain.ErrInvalidMetadata),
		errors.Is(err, paymentdomain.ErrInvalidEvent),
		errors.Is(err, paymentdomain.ErrInvalidAmount),
		errors.Is(err, paymentdomain.ErrInvalidCurrency),
		errors.Is(err, paymentdomain.ErrInvalidStatus),
		errors.Is(err, totalsdomain.ErrInvalidCampaign),
		errors.Is(err, idemdomain.ErrInvalidKey):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, pledgedomain.ErrNotFound),
		errors.Is(err, paymentdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorField(err error) string {
	switch {
	case errors.Is(err, pledgedomain.ErrInvalidCampaign), errors.Is(err, totalsdomain.ErrInvalidCampaign):
		return "campaign_id"
	case errors.Is(err, pledgedomain.ErrInvalidDonor):
		return "donor_email"
	case errors.Is(err, pledgedomain.ErrInvalidAmount), errors.Is(err, paymentdomain.ErrInvalidAmount):
		return "amount"
	case errors.Is(err, pledgedomain.ErrInvalidCurrency), errors.Is(err, paymentdomain.ErrInvalidCurrency):
		return "currency"
	case errors.Is(err, pledgedomain.ErrInvalidMetadata):
		return "metadata"
	case errors.Is(err, idemdomain.ErrInvalidKey):
		return "idempotency_key"
	default:
		return "request"
	}
}

// classifyErrorForLog feeds the request logger; it must stay cheap.
func classifyErrorForLog(err error) (string, string) {
	switch {
	case err == nil:
		return "", ""
	case asValidationErrors(err) != nil, isValidationError(err):
		return "validation", "invalid_request"
	case isNotFoundError(err):
		return "not_found", "not_found"
	case errors.Is(err, idemdomain.ErrInFlight):
		return "conflict", "in_flight"
	default:
		return "internal", "internal_error"
	}
}
