package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pledgekit/fundway/internal/clock"
	"github.com/pledgekit/fundway/internal/config"
	obsmetrics "github.com/pledgekit/fundway/internal/observability/metrics"
	"github.com/pledgekit/fundway/internal/totals/domain"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const cacheKeyPrefix = "campaign_totals:"

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Config     config.Config
	Repo       domain.Repository
	Redis      *redis.Client       `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Service serves campaign totals through three tiers: a short lived redis
// entry, a precomputed snapshot row, and the base aggregate over captured
// payments. Cached reads are eventually consistent; realtime reads are not.
type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	repo       domain.Repository
	redis      *redis.Client
	obsMetrics *obsmetrics.Metrics
	cacheTTL   time.Duration
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("totals.service"),
		clock:      p.Clock,
		repo:       p.Repo,
		redis:      p.Redis,
		obsMetrics: p.ObsMetrics,
		cacheTTL:   p.Config.Totals.CacheTTL,
	}
}

func (s *Service) Read(ctx context.Context, campaignID snowflake.ID, realtime bool) (*domain.Totals, error) {
	if campaignID == 0 {
		return nil, domain.ErrInvalidCampaign
	}

	if realtime {
		totals, err := s.computeBase(ctx, campaignID)
		if err != nil {
			return nil, err
		}
		s.recordRead(ctx, domain.SourceBase)
		return totals, nil
	}

	if totals := s.readCache(ctx, campaignID); totals != nil {
		s.recordRead(ctx, domain.SourceCache)
		return totals, nil
	}

	snapshot, err := s.repo.FindSnapshot(ctx, s.db, campaignID)
	if err != nil {
		return nil, err
	}
	if snapshot != nil && !snapshot.Stale {
		totals := &domain.Totals{
			CampaignID:  snapshot.CampaignID,
			TotalAmount: snapshot.TotalAmount,
			PledgeCount: snapshot.PledgeCount,
			DonorCount:  snapshot.DonorCount,
			Source:      domain.SourceSnapshot,
			ComputedAt:  snapshot.ComputedAt,
		}
		s.writeCache(ctx, totals)
		s.recordRead(ctx, domain.SourceSnapshot)
		return totals, nil
	}

	totals, err := s.refresh(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	s.writeCache(ctx, totals)
	s.recordRead(ctx, domain.SourceBase)
	return totals, nil
}

func (s *Service) Invalidate(ctx context.Context, campaignID snowflake.ID) error {
	if campaignID == 0 {
		return domain.ErrInvalidCampaign
	}
	if s.redis != nil {
		if err := s.redis.Del(ctx, cacheKey(campaignID)).Err(); err != nil {
			s.log.Warn("totals cache eviction failed",
				zap.String("campaign_id", campaignID.String()),
				zap.Error(err),
			)
		}
	}
	return s.repo.MarkStale(ctx, s.db, campaignID, s.clock.Now())
}

func (s *Service) RefreshStale(ctx context.Context, limit int) (int, error) {
	stale, err := s.repo.ListStale(ctx, s.db, limit)
	if err != nil {
		return 0, err
	}
	refreshed := 0
	for _, snapshot := range stale {
		if _, err := s.refresh(ctx, snapshot.CampaignID); err != nil {
			s.log.Warn("snapshot refresh failed",
				zap.String("campaign_id", snapshot.CampaignID.String()),
				zap.Error(err),
			)
			continue
		}
		refreshed++
	}
	return refreshed, nil
}

// refresh recomputes the base aggregate and stores it as a fresh snapshot.
func (s *Service) refresh(ctx context.Context, campaignID snowflake.ID) (*domain.Totals, error) {
	totals, err := s.computeBase(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if err := s.repo.UpsertSnapshot(ctx, s.db, &domain.AggregateSnapshot{
		CampaignID:  campaignID,
		TotalAmount: totals.TotalAmount,
		PledgeCount: totals.PledgeCount,
		DonorCount:  totals.DonorCount,
		Stale:       false,
		ComputedAt:  totals.ComputedAt,
		UpdatedAt:   now,
	}); err != nil {
		return nil, err
	}
	return totals, nil
}

func (s *Service) computeBase(ctx context.Context, campaignID snowflake.ID) (*domain.Totals, error) {
	amount, count, donors, err := s.repo.ComputeBase(ctx, s.db, campaignID)
	if err != nil {
		return nil, err
	}
	return &domain.Totals{
		CampaignID:  campaignID,
		TotalAmount: amount,
		PledgeCount: count,
		DonorCount:  donors,
		Source:      domain.SourceBase,
		ComputedAt:  s.clock.Now(),
	}, nil
}

func (s *Service) readCache(ctx context.Context, campaignID snowflake.ID) *domain.Totals {
	if s.redis == nil {
		return nil
	}
	raw, err := s.redis.Get(ctx, cacheKey(campaignID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.log.Warn("totals cache read failed", zap.Error(err))
		}
		return nil
	}
	var totals domain.Totals
	if err := json.Unmarshal(raw, &totals); err != nil {
		return nil
	}
	totals.Source = domain.SourceCache
	return &totals
}

func (s *Service) writeCache(ctx context.Context, totals *domain.Totals) {
	if s.redis == nil || totals == nil {
		return
	}
	raw, err := json.Marshal(totals)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, cacheKey(totals.CampaignID), raw, s.cacheTTL).Err(); err != nil {
		s.log.Warn("totals cache write failed", zap.Error(err))
	}
}

func (s *Service) recordRead(ctx context.Context, source string) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordTotalsRead(ctx, source)
	}
}

func cacheKey(campaignID snowflake.ID) string {
	return cacheKeyPrefix + campaignID.String()
}
