package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	idemdomain "github.com/pledgekit/fundway/internal/idempotency/domain"
	obsmetrics "github.com/pledgekit/fundway/internal/observability/metrics"
	paymentdomain "github.com/pledgekit/fundway/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Gate       idemdomain.Gate
	Payments   paymentdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Service turns raw gateway deliveries into state machine calls. Every
// delivery passes the idempotency gate first, so retries and concurrent
// duplicates replay the stored response instead of reprocessing.
type Service struct {
	log        *zap.Logger
	gate       idemdomain.Gate
	payments   paymentdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		log:        p.Log.Named("payment.webhook"),
		gate:       p.Gate,
		payments:   p.Payments,
		obsMetrics: p.ObsMetrics,
	}
}

type event struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Reference string    `json:"external_reference"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Response is what goes back on the wire, and what the gate stores.
type Response struct {
	StatusCode int
	Body       []byte
	Duplicate  bool
}

func (s *Service) Handle(ctx context.Context, providedKey string, body []byte) (*Response, error) {
	key := idemdomain.DeriveKey(providedKey, body)

	admission, err := s.gate.Admit(ctx, key)
	if err != nil {
		if errors.Is(err, idemdomain.ErrInFlight) {
			s.recordOutcome(ctx, "in_flight")
			return jsonResponse(http.StatusConflict, map[string]any{
				"status": "in_flight",
				"reason": "concurrent delivery in progress",
			}), nil
		}
		return nil, err
	}

	if !admission.Winner {
		s.recordOutcome(ctx, "duplicate")
		return &Response{
			StatusCode: admission.Response.StatusCode,
			Body:       admission.Response.Body,
			Duplicate:  true,
		}, nil
	}

	resp, infraErr := s.process(ctx, body)
	if infraErr != nil {
		// Drop the claim so the gateway's retry can be processed.
		if releaseErr := s.gate.Release(ctx, key); releaseErr != nil {
			s.log.Error("failed to release idempotency claim",
				zap.String("key", key),
				zap.Error(releaseErr),
			)
		}
		return nil, infraErr
	}

	if err := s.gate.Complete(ctx, key, resp.StatusCode, resp.Body); err != nil {
		s.log.Error("failed to store webhook response",
			zap.String("key", key),
			zap.Error(err),
		)
	}
	return resp, nil
}

func (s *Service) process(ctx context.Context, body []byte) (*Response, error) {
	var evt event
	if err := json.Unmarshal(body, &evt); err != nil {
		s.recordOutcome(ctx, "rejected")
		return jsonResponse(http.StatusBadRequest, map[string]any{
			"status": "rejected",
			"reason": "malformed_payload",
		}), nil
	}

	status := paymentdomain.Status(strings.ToUpper(strings.TrimSpace(evt.Status)))
	result, err := s.payments.Apply(ctx, paymentdomain.GatewayEvent{
		EventID:   evt.EventID,
		Reference: evt.Reference,
		NewStatus: status,
		Timestamp: evt.Timestamp,
	})
	if err != nil {
		switch {
		case errors.Is(err, paymentdomain.ErrNotFound):
			s.recordOutcome(ctx, "not_found")
			return jsonResponse(http.StatusNotFound, map[string]any{
				"error": "Payment not found",
			}), nil
		case errors.Is(err, paymentdomain.ErrInvalidEvent):
			s.recordOutcome(ctx, "rejected")
			return jsonResponse(http.StatusBadRequest, map[string]any{
				"status": "rejected",
				"reason": "malformed_payload",
			}), nil
		default:
			return nil, err
		}
	}

	s.recordOutcome(ctx, string(result.Outcome))
	switch result.Outcome {
	case paymentdomain.OutcomeProcessed:
		return jsonResponse(http.StatusOK, map[string]any{
			"status":     "processed",
			"payment_id": result.Reference,
			"old_status": result.OldStatus,
			"new_status": result.NewStatus,
			"version":    result.Version,
		}), nil
	case paymentdomain.OutcomeIgnored:
		return jsonResponse(http.StatusOK, map[string]any{
			"status":     "ignored",
			"reason":     result.Reason,
			"payment_id": result.Reference,
			"version":    result.Version,
		}), nil
	default:
		return jsonResponse(http.StatusBadRequest, map[string]any{
			"status":     "rejected",
			"reason":     result.Reason,
			"payment_id": result.Reference,
		}), nil
	}
}

func (s *Service) recordOutcome(ctx context.Context, outcome string) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordWebhookEvent(ctx, outcome)
	}
}

func jsonResponse(code int, payload map[string]any) *Response {
	body, _ := json.Marshal(payload)
	return &Response{StatusCode: code, Body: body}
}
