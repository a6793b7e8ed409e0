package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/pledgekit/fundway/internal/clock"
	outboxdomain "github.com/pledgekit/fundway/internal/outbox/domain"
	paymentdomain "github.com/pledgekit/fundway/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   paymentdomain.Repository
	Outbox outboxdomain.Writer
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	repo   paymentdomain.Repository
	outbox outboxdomain.Writer
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("payment.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		repo:   p.Repo,
		outbox: p.Outbox,
	}
}

func (s *Service) CreateIntent(ctx context.Context, input paymentdomain.CreateIntentInput) (*paymentdomain.Transaction, error) {
	if input.PledgeID == 0 {
		return nil, paymentdomain.ErrInvalidEvent
	}
	if input.Amount <= 0 {
		return nil, paymentdomain.ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if len(currency) != 3 {
		return nil, paymentdomain.ErrInvalidCurrency
	}

	now := s.clock.Now()
	txn := &paymentdomain.Transaction{
		ID:        s.genID.Generate(),
		Reference: paymentdomain.NewReference(),
		PledgeID:  input.PledgeID,
		Amount:    input.Amount,
		Currency:  currency,
		Status:    paymentdomain.StatusInitiated,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, txn); err != nil {
		return nil, err
	}

	s.log.Info("payment intent created",
		zap.String("reference", txn.Reference),
		zap.String("pledge_id", txn.PledgeID.String()),
		zap.Int64("amount", txn.Amount),
	)
	return txn, nil
}

func (s *Service) Get(ctx context.Context, reference string) (*paymentdomain.Transaction, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, paymentdomain.ErrNotFound
	}
	txn, err := s.repo.FindByReference(ctx, s.db, reference)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, paymentdomain.ErrNotFound
	}
	return txn, nil
}

// Apply advances the transaction for one gateway event. The row is locked
// for the duration so version arithmetic stays exact, and any integration
// event is appended on the same transaction as the status change.
func (s *Service) Apply(ctx context.Context, event paymentdomain.GatewayEvent) (*paymentdomain.ApplyResult, error) {
	event.Reference = strings.TrimSpace(event.Reference)
	if event.Reference == "" || event.Timestamp.IsZero() {
		return nil, paymentdomain.ErrInvalidEvent
	}

	var result *paymentdomain.ApplyResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		txn, err := s.repo.FindByReferenceForUpdate(ctx, tx, event.Reference)
		if err != nil {
			return err
		}
		if txn == nil {
			return paymentdomain.ErrNotFound
		}

		// Stale delivery: the row has already seen a later gateway event.
		if event.Timestamp.Before(txn.UpdatedAt) {
			result = &paymentdomain.ApplyResult{
				Outcome:   paymentdomain.OutcomeIgnored,
				Reference: txn.Reference,
				OldStatus: txn.Status,
				NewStatus: txn.Status,
				Version:   txn.Version,
				Reason:    "out_of_order",
			}
			return nil
		}

		if !paymentdomain.ValidStatus(event.NewStatus) || !paymentdomain.CanTransition(txn.Status, event.NewStatus) {
			result = &paymentdomain.ApplyResult{
				Outcome:   paymentdomain.OutcomeRejected,
				Reference: txn.Reference,
				OldStatus: txn.Status,
				NewStatus: txn.Status,
				Version:   txn.Version,
				Reason:    "invalid_transition",
			}
			return nil
		}

		updated, err := s.repo.UpdateStatus(ctx, tx, txn.ID, txn.Version, event.NewStatus, event.Timestamp)
		if err != nil {
			return err
		}
		if !updated {
			return paymentdomain.ErrVersionConflict
		}

		newVersion := txn.Version + 1
		if err := s.repo.InsertTransition(ctx, tx, &paymentdomain.StateTransition{
			ID:             s.genID.Generate(),
			TransactionID:  txn.ID,
			FromStatus:     txn.Status,
			ToStatus:       event.NewStatus,
			EventID:        event.EventID,
			EventTimestamp: event.Timestamp,
			ReceivedAt:     s.clock.Now(),
			Version:        newVersion,
		}); err != nil {
			return err
		}

		if err := s.emitOutcomeEvent(ctx, tx, txn, event, newVersion); err != nil {
			return err
		}

		result = &paymentdomain.ApplyResult{
			Outcome:   paymentdomain.OutcomeProcessed,
			Reference: txn.Reference,
			OldStatus: txn.Status,
			NewStatus: event.NewStatus,
			Version:   newVersion,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Outcome != paymentdomain.OutcomeProcessed {
		s.log.Info("gateway event not applied",
			zap.String("reference", result.Reference),
			zap.String("outcome", string(result.Outcome)),
			zap.String("reason", result.Reason),
			zap.String("requested_status", string(event.NewStatus)),
		)
	}
	return result, nil
}

func (s *Service) Refund(ctx context.Context, reference string, at time.Time) (*paymentdomain.ApplyResult, error) {
	if at.IsZero() {
		at = s.clock.Now()
	}
	return s.Apply(ctx, paymentdomain.GatewayEvent{
		EventID:   "refund_" + uuid.NewString(),
		Reference: reference,
		NewStatus: paymentdomain.StatusRefunded,
		Timestamp: at,
	})
}

func (s *Service) Transitions(ctx context.Context, reference string) ([]paymentdomain.StateTransition, error) {
	txn, err := s.Get(ctx, reference)
	if err != nil {
		return nil, err
	}
	return s.repo.ListTransitions(ctx, s.db, txn.ID)
}

// emitOutcomeEvent appends the integration event for statuses that change
// downstream state. INITIATED and AUTHORIZED are internal only.
func (s *Service) emitOutcomeEvent(ctx context.Context, tx *gorm.DB, txn *paymentdomain.Transaction, event paymentdomain.GatewayEvent, version int) error {
	var eventType string
	switch event.NewStatus {
	case paymentdomain.StatusCaptured:
		eventType = outboxdomain.EventTypePaymentCaptured
	case paymentdomain.StatusRefunded:
		eventType = outboxdomain.EventTypePaymentRefunded
	case paymentdomain.StatusFailed:
		eventType = outboxdomain.EventTypePaymentFailed
	default:
		return nil
	}

	campaignID, err := s.loadCampaignID(ctx, tx, txn.PledgeID)
	if err != nil {
		return err
	}

	payload := map[string]any{
		"reference":   txn.Reference,
		"pledge_id":   txn.PledgeID.String(),
		"campaign_id": campaignID.String(),
		"amount":      txn.Amount,
		"currency":    txn.Currency,
		"old_status":  txn.Status,
		"new_status":  event.NewStatus,
		"version":     version,
		"occurred_at": event.Timestamp.UTC().Format(time.RFC3339),
	}
	_, err = s.outbox.Append(ctx, tx, outboxdomain.AggregatePayment, txn.Reference, eventType, payload)
	return err
}

func (s *Service) loadCampaignID(ctx context.Context, tx *gorm.DB, pledgeID snowflake.ID) (snowflake.ID, error) {
	var campaignID snowflake.ID
	err := tx.WithContext(ctx).Raw(
		`SELECT campaign_id
		 FROM pledges
		 WHERE id = ?`,
		pledgeID,
	).Scan(&campaignID).Error
	if err != nil {
		return 0, err
	}
	return campaignID, nil
}
