package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pledgekit/fundway/internal/cache"
	"github.com/pledgekit/fundway/internal/clock"
	"github.com/pledgekit/fundway/internal/config"
	idemdomain "github.com/pledgekit/fundway/internal/idempotency/domain"
	obsmetrics "github.com/pledgekit/fundway/internal/observability/metrics"
	outboxservice "github.com/pledgekit/fundway/internal/outbox/service"
	totalsdomain "github.com/pledgekit/fundway/internal/totals/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler: invalid configuration")

const maintenanceInterval = time.Hour

type Params struct {
	fx.In

	Log    *zap.Logger
	Clock  clock.Clock
	App    config.Config
	Relay  *outboxservice.Relay
	Totals totalsdomain.Service
	Gate   idemdomain.Gate
	Locker *cache.Locker `optional:"true"`
	Config Config        `optional:"true"`
}

// Scheduler drives the relay poll loop and the slow maintenance jobs. The
// relay job takes a redis leader lock first so only one instance drains the
// outbox at a time; the lock is advisory, correctness comes from row locks.
type Scheduler struct {
	log    *zap.Logger
	cfg    Config
	app    config.Config
	clock  clock.Clock
	relay  *outboxservice.Relay
	totals totalsdomain.Service
	gate   idemdomain.Gate
	locker *cache.Locker

	lastMaintenance time.Time
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.Relay == nil || p.Totals == nil || p.Gate == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:    p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:    p.Config.withDefaults(),
		app:    p.App,
		clock:  p.Clock,
		relay:  p.Relay,
		totals: p.Totals,
		gate:   p.Gate,
		locker: p.Locker,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	relayMetrics := obsmetrics.Relay()
	relayMetrics.IncJobRun(name)

	err := fn(ctx)
	relayMetrics.ObserveJobDuration(name, time.Since(start))
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.log.Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	relayMetrics.IncJobError(name)
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(context.Context) error
	}{
		{"relay_outbox", s.isJobEnabled("relay_outbox"), func(ctx context.Context) error {
			return s.runJob(ctx, "relay_outbox", 30*time.Second, s.RelayOutboxJob)
		}},
		{"refresh_totals", s.isJobEnabled("refresh_totals"), func(ctx context.Context) error {
			return s.runJob(ctx, "refresh_totals", 30*time.Second, s.RefreshTotalsJob)
		}},
	}

	for _, job := range jobs {
		if job.Enabled {
			err = errors.Join(err, job.Run(parent))
		}
	}

	if s.maintenanceDue() {
		maintenance := []struct {
			Name    string
			Enabled bool
			Run     func(context.Context) error
		}{
			{"purge_idempotency", s.isJobEnabled("purge_idempotency"), func(ctx context.Context) error {
				return s.runJob(ctx, "purge_idempotency", time.Minute, s.PurgeIdempotencyJob)
			}},
			{"cleanup_outbox", s.isJobEnabled("cleanup_outbox"), func(ctx context.Context) error {
				return s.runJob(ctx, "cleanup_outbox", time.Minute, s.CleanupOutboxJob)
			}},
		}
		for _, job := range maintenance {
			if job.Enabled {
				err = errors.Join(err, job.Run(parent))
			}
		}
		s.lastMaintenance = s.clock.Now()
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RelayOutboxJob drains pending outbox batches until the table is empty.
func (s *Scheduler) RelayOutboxJob(ctx context.Context) error {
	release, acquired, err := s.acquireLeaderLock(ctx)
	if err != nil {
		return err
	}
	if !acquired {
		s.log.Debug("relay leader lock held elsewhere")
		return nil
	}
	defer release()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		published, err := s.relay.ProcessBatch(ctx)
		if err != nil {
			return err
		}
		if published == 0 {
			return nil
		}
	}
}

func (s *Scheduler) RefreshTotalsJob(ctx context.Context) error {
	refreshed, err := s.totals.RefreshStale(ctx, s.cfg.TotalsRefreshBatch)
	if err != nil {
		return err
	}
	if refreshed > 0 {
		s.log.Info("refreshed stale totals snapshots", zap.Int("refreshed", refreshed))
	}
	return nil
}

func (s *Scheduler) PurgeIdempotencyJob(ctx context.Context) error {
	_, err := s.gate.PurgeExpired(ctx)
	return err
}

func (s *Scheduler) CleanupOutboxJob(ctx context.Context) error {
	_, err := s.relay.Cleanup(ctx, s.app.Outbox.Retention)
	return err
}

func (s *Scheduler) maintenanceDue() bool {
	return s.clock.Now().Sub(s.lastMaintenance) >= maintenanceInterval
}

func (s *Scheduler) acquireLeaderLock(ctx context.Context) (release func(), acquired bool, err error) {
	if s.locker == nil {
		return func() {}, true, nil
	}
	token, ok, err := s.locker.TryLock(ctx, s.cfg.LeaderLockKey, s.app.Outbox.LeaderLockTTL)
	if err != nil {
		// Redis being down should not stop the relay; row locks still
		// prevent double publishing from racing instances.
		s.log.Warn("leader lock unavailable, proceeding without it", zap.Error(err))
		return func() {}, true, nil
	}
	if !ok {
		return func() {}, false, nil
	}
	return func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), s.cfg.LeaderLockKey, token); err != nil {
			s.log.Warn("leader lock release failed", zap.Error(err))
		}
	}, true, nil
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}
