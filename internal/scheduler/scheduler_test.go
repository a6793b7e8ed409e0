package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/pledgekit/fundway/internal/clock"
	"github.com/pledgekit/fundway/internal/config"
	idemdomain "github.com/pledgekit/fundway/internal/idempotency/domain"
	idemrepo "github.com/pledgekit/fundway/internal/idempotency/repository"
	idemservice "github.com/pledgekit/fundway/internal/idempotency/service"
	outboxdomain "github.com/pledgekit/fundway/internal/outbox/domain"
	outboxrepo "github.com/pledgekit/fundway/internal/outbox/repository"
	outboxservice "github.com/pledgekit/fundway/internal/outbox/service"
	totalsdomain "github.com/pledgekit/fundway/internal/totals/domain"
	totalsrepo "github.com/pledgekit/fundway/internal/totals/repository"
	totalsservice "github.com/pledgekit/fundway/internal/totals/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var schedTime = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

type capturePublisher struct {
	published int
}

func (p *capturePublisher) Publish(context.Context, *outboxdomain.OutboxEvent) error {
	p.published++
	return nil
}

type schedFixture struct {
	db        *gorm.DB
	sched     *Scheduler
	gate      idemdomain.Gate
	writer    outboxdomain.Writer
	publisher *capturePublisher
	clock     *clock.FakeClock
}

func newSchedFixture(t *testing.T, cfg Config) *schedFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&outboxdomain.OutboxEvent{},
		&idemdomain.Record{},
		&totalsdomain.AggregateSnapshot{},
	))
	require.NoError(t, db.Exec(`CREATE TABLE IF NOT EXISTS pledges (id INTEGER PRIMARY KEY, campaign_id INTEGER, donor_email TEXT)`).Error)
	require.NoError(t, db.Exec(`CREATE TABLE IF NOT EXISTS payment_transactions (id INTEGER PRIMARY KEY, pledge_id INTEGER, amount INTEGER, status TEXT)`).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(schedTime)
	logger := zap.NewNop()
	appCfg := config.Config{
		Outbox: config.OutboxConfig{
			BatchSize:  10,
			MaxRetries: 3,
			Retention:  7 * 24 * time.Hour,
		},
		Idempotency: config.IdempotencyConfig{
			TTL:      24 * time.Hour,
			CacheTTL: time.Hour,
		},
		Totals: config.TotalsConfig{CacheTTL: 30 * time.Second},
	}

	outboxRepo := outboxrepo.Provide()
	publisher := &capturePublisher{}
	writer := outboxservice.NewWriter(outboxservice.WriterParams{
		Log:   logger,
		GenID: node,
		Clock: fake,
		Repo:  outboxRepo,
	})
	relay := outboxservice.NewRelay(outboxservice.RelayParams{
		DB:        db,
		Log:       logger,
		Clock:     fake,
		Config:    appCfg,
		Repo:      outboxRepo,
		Publisher: publisher,
	})
	totals := totalsservice.NewService(totalsservice.Params{
		DB:     db,
		Log:    logger,
		Clock:  fake,
		Config: appCfg,
		Repo:   totalsrepo.Provide(),
	})
	gate := idemservice.NewService(idemservice.Params{
		DB:     db,
		Log:    logger,
		Clock:  fake,
		Config: appCfg,
		Repo:   idemrepo.Provide(),
	})

	sched, err := New(Params{
		Log:    logger,
		Clock:  fake,
		App:    appCfg,
		Relay:  relay,
		Totals: totals,
		Gate:   gate,
		Config: cfg,
	})
	require.NoError(t, err)

	return &schedFixture{db: db, sched: sched, gate: gate, writer: writer, publisher: publisher, clock: fake}
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunOnceDrainsOutbox(t *testing.T) {
	f := newSchedFixture(t, Config{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := f.db.Transaction(func(tx *gorm.DB) error {
			_, err := f.writer.Append(ctx, tx, "payment", fmt.Sprintf("pi_%d", i), "payment.captured", map[string]any{"i": i})
			return err
		})
		require.NoError(t, err)
	}

	require.NoError(t, f.sched.RunOnce(ctx))
	assert.Equal(t, 3, f.publisher.published)

	var pending int64
	require.NoError(t, f.db.Model(&outboxdomain.OutboxEvent{}).Where("processed_at IS NULL").Count(&pending).Error)
	assert.Zero(t, pending)
}

func TestRunOncePurgesExpiredRecordsHourly(t *testing.T) {
	f := newSchedFixture(t, Config{})
	ctx := context.Background()

	admission, err := f.gate.Admit(ctx, "evt_1")
	require.NoError(t, err)
	require.True(t, admission.Winner)
	require.NoError(t, f.gate.Complete(ctx, "evt_1", 200, []byte(`{}`)))

	// First run performs maintenance but the record has not expired.
	require.NoError(t, f.sched.RunOnce(ctx))
	var count int64
	require.NoError(t, f.db.Model(&idemdomain.Record{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	// Expired, but the maintenance window has not elapsed since the last run.
	f.clock.Advance(30 * time.Hour)
	f.sched.lastMaintenance = f.clock.Now().Add(-30 * time.Minute)
	require.NoError(t, f.sched.RunOnce(ctx))
	require.NoError(t, f.db.Model(&idemdomain.Record{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	f.sched.lastMaintenance = f.clock.Now().Add(-2 * time.Hour)
	require.NoError(t, f.sched.RunOnce(ctx))
	require.NoError(t, f.db.Model(&idemdomain.Record{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestIsJobEnabled(t *testing.T) {
	f := newSchedFixture(t, Config{EnabledJobs: []string{"relay_outbox", "Cleanup_Outbox"}})

	assert.True(t, f.sched.isJobEnabled("relay_outbox"))
	assert.True(t, f.sched.isJobEnabled("cleanup_outbox"))
	assert.False(t, f.sched.isJobEnabled("refresh_totals"))

	all := newSchedFixture(t, Config{})
	assert.True(t, all.sched.isJobEnabled("refresh_totals"))
}

func TestDisabledJobDoesNotRun(t *testing.T) {
	f := newSchedFixture(t, Config{EnabledJobs: []string{"refresh_totals"}})
	ctx := context.Background()

	err := f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.writer.Append(ctx, tx, "payment", "pi_1", "payment.captured", map[string]any{"ok": true})
		return err
	})
	require.NoError(t, err)

	require.NoError(t, f.sched.RunOnce(ctx))
	assert.Zero(t, f.publisher.published)
}
