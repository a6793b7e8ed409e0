package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pledgekit/fundway/internal/clock"
	"github.com/pledgekit/fundway/internal/config"
	"github.com/pledgekit/fundway/internal/idempotency/domain"
	obsmetrics "github.com/pledgekit/fundway/internal/observability/metrics"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const cacheKeyPrefix = "idem:"

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

// Service is the two tier idempotency gate. The redis tier answers repeat
// deliveries cheaply; the database tier is the source of truth and settles
// races between concurrent first deliveries.
type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	repo       domain.Repository
	redis      *redis.Client
	obsMetrics *obsmetrics.Metrics

	ttl      time.Duration
	cacheTTL time.Duration

	waitInterval time.Duration
	waitTimeout  time.Duration
}

func NewService(p Params) domain.Gate {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("idempotency.service"),
		clock:        p.Clock,
		repo:         p.Repo,
		redis:        p.Redis,
		obsMetrics:   p.ObsMetrics,
		ttl:          p.Config.Idempotency.TTL,
		cacheTTL:     p.Config.Idempotency.CacheTTL,
		waitInterval: 100 * time.Millisecond,
		waitTimeout:  5 * time.Second,
	}
}

func (s *Service) Admit(ctx context.Context, key string) (*domain.Admission, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, domain.ErrInvalidKey
	}

	if resp := s.readCache(ctx, key); resp != nil {
		s.recordHit(ctx, "cache")
		return &domain.Admission{Response: resp}, nil
	}

	record, err := s.repo.Find(ctx, s.db, key)
	if err != nil {
		return nil, err
	}
	if record != nil {
		if record.CompletedAt != nil {
			resp := responseFromRecord(record)
			s.writeCache(ctx, key, resp)
			s.recordHit(ctx, "database")
			return &domain.Admission{Response: resp}, nil
		}
		return s.awaitWinner(ctx, key)
	}

	now := s.clock.Now()
	claimed, err := s.repo.Claim(ctx, s.db, &domain.Record{
		Key:       key,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	})
	if err != nil {
		return nil, err
	}
	if claimed {
		s.recordHit(ctx, "miss")
		return &domain.Admission{Winner: true}, nil
	}

	// Lost the insert race. The winner is processing right now.
	return s.awaitWinner(ctx, key)
}

func (s *Service) Complete(ctx context.Context, key string, statusCode int, body []byte) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrInvalidKey
	}
	if err := s.repo.Complete(ctx, s.db, key, statusCode, body, s.clock.Now()); err != nil {
		return err
	}
	s.writeCache(ctx, key, &domain.StoredResponse{StatusCode: statusCode, Body: body})
	return nil
}

func (s *Service) Release(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrInvalidKey
	}
	return s.repo.DeleteIncomplete(ctx, s.db, key)
}

func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	deleted, err := s.repo.DeleteExpiredBefore(ctx, s.db, s.clock.Now())
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.log.Info("purged expired idempotency records", zap.Int64("deleted", deleted))
	}
	return deleted, nil
}

// awaitWinner polls the durable tier until the winning request stores its
// response. Deliveries that outlive the wait window are told to retry later.
func (s *Service) awaitWinner(ctx context.Context, key string) (*domain.Admission, error) {
	deadline := time.NewTimer(s.waitTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.waitInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, domain.ErrInFlight
		case <-ticker.C:
			record, err := s.repo.Find(ctx, s.db, key)
			if err != nil {
				return nil, err
			}
			if record != nil && record.CompletedAt != nil {
				resp := responseFromRecord(record)
				s.writeCache(ctx, key, resp)
				s.recordHit(ctx, "database")
				return &domain.Admission{Response: resp}, nil
			}
		}
	}
}

func (s *Service) readCache(ctx context.Context, key string) *domain.StoredResponse {
	if s.redis == nil {
		return nil
	}
	raw, err := s.redis.Get(ctx, cacheKeyPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.log.Warn("idempotency cache read failed", zap.Error(err))
		}
		return nil
	}
	var resp domain.StoredResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil
	}
	return &resp
}

func (s *Service) writeCache(ctx context.Context, key string, resp *domain.StoredResponse) {
	if s.redis == nil || resp == nil {
		return
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, cacheKeyPrefix+key, raw, s.cacheTTL).Err(); err != nil {
		s.log.Warn("idempotency cache write failed", zap.Error(err))
	}
}

func (s *Service) recordHit(ctx context.Context, tier string) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordIdempotencyHit(ctx, tier)
	}
}

func responseFromRecord(record *domain.Record) *domain.StoredResponse {
	return &domain.StoredResponse{
		StatusCode: record.ResponseCode,
		Body:       []byte(record.ResponseBody),
	}
}
