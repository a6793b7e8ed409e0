package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pledgekit/fundway/internal/clock"
	obsmetrics "github.com/pledgekit/fundway/internal/observability/metrics"
	outboxdomain "github.com/pledgekit/fundway/internal/outbox/domain"
	pledgedomain "github.com/pledgekit/fundway/internal/pledge/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       pledgedomain.Repository
	Outbox     outboxdomain.Writer
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       pledgedomain.Repository
	outbox     outboxdomain.Writer
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) pledgedomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("pledge.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		outbox:     p.Outbox,
		obsMetrics: p.ObsMetrics,
	}
}

// Create writes the pledge and its integration event in one transaction.
// Either both commit or neither does.
func (s *Service) Create(ctx context.Context, input pledgedomain.CreateInput) (*pledgedomain.Pledge, error) {
	if input.CampaignID == 0 {
		return nil, pledgedomain.ErrInvalidCampaign
	}
	donor := strings.ToLower(strings.TrimSpace(input.DonorEmail))
	if donor == "" || !strings.Contains(donor, "@") {
		return nil, pledgedomain.ErrInvalidDonor
	}
	if input.Amount <= 0 {
		return nil, pledgedomain.ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if len(currency) != 3 {
		return nil, pledgedomain.ErrInvalidCurrency
	}
	var metadata datatypes.JSON
	if len(input.Metadata) > 0 {
		if !json.Valid(input.Metadata) {
			return nil, pledgedomain.ErrInvalidMetadata
		}
		metadata = datatypes.JSON(input.Metadata)
	}

	now := s.clock.Now()
	pledge := &pledgedomain.Pledge{
		ID:         s.genID.Generate(),
		CampaignID: input.CampaignID,
		DonorEmail: donor,
		Amount:     input.Amount,
		Currency:   currency,
		Status:     pledgedomain.StatusPending,
		Version:    1,
		Metadata:   metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, pledge); err != nil {
			return err
		}
		_, err := s.outbox.Append(ctx, tx, outboxdomain.AggregatePledge, pledge.ID.String(), outboxdomain.EventTypePledgeCreated, map[string]any{
			"pledge_id":   pledge.ID.String(),
			"campaign_id": pledge.CampaignID.String(),
			"donor_email": pledge.DonorEmail,
			"amount":      pledge.Amount,
			"currency":    pledge.Currency,
			"created_at":  pledge.CreatedAt.UTC().Format(time.RFC3339),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordPledgeCreated(ctx, pledge.CampaignID.String())
	}
	s.log.Info("pledge created",
		zap.String("pledge_id", pledge.ID.String()),
		zap.String("campaign_id", pledge.CampaignID.String()),
		zap.Int64("amount", pledge.Amount),
	)
	return pledge, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*pledgedomain.Pledge, error) {
	pledge, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if pledge == nil {
		return nil, pledgedomain.ErrNotFound
	}
	return pledge, nil
}

func (s *Service) ListByCampaign(ctx context.Context, campaignID snowflake.ID, limit int) ([]pledgedomain.Pledge, error) {
	if campaignID == 0 {
		return nil, pledgedomain.ErrInvalidCampaign
	}
	return s.repo.ListByCampaign(ctx, s.db, campaignID, limit)
}

func (s *Service) Settle(ctx context.Context, id snowflake.ID, status pledgedomain.Status, at time.Time) error {
	if at.IsZero() {
		at = s.clock.Now()
	}

	fromStatus := pledgedomain.StatusPending
	if status == pledgedomain.StatusRefunded {
		fromStatus = pledgedomain.StatusCompleted
	}

	changed, err := s.repo.UpdateStatus(ctx, s.db, id, fromStatus, status, at)
	if err != nil {
		return err
	}
	if !changed {
		s.log.Debug("pledge settlement skipped",
			zap.String("pledge_id", id.String()),
			zap.String("status", string(status)),
		)
		return nil
	}

	s.log.Info("pledge settled",
		zap.String("pledge_id", id.String()),
		zap.String("status", string(status)),
	)
	return nil
}
