package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/pledgekit/fundway/internal/clock"
	outboxdomain "github.com/pledgekit/fundway/internal/outbox/domain"
	outboxrepo "github.com/pledgekit/fundway/internal/outbox/repository"
	outboxservice "github.com/pledgekit/fundway/internal/outbox/service"
	paymentdomain "github.com/pledgekit/fundway/internal/payment/domain"
	paymentrepo "github.com/pledgekit/fundway/internal/payment/repository"
	pledgedomain "github.com/pledgekit/fundway/internal/pledge/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var baseTime = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db     *gorm.DB
	svc    paymentdomain.Service
	clock  *clock.FakeClock
	node   *snowflake.Node
	pledge *pledgedomain.Pledge
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&pledgedomain.Pledge{},
		&paymentdomain.Transaction{},
		&paymentdomain.StateTransition{},
		&outboxdomain.OutboxEvent{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(baseTime)
	logger := zap.NewNop()

	writer := outboxservice.NewWriter(outboxservice.WriterParams{
		Log:   logger,
		GenID: node,
		Clock: fake,
		Repo:  outboxrepo.Provide(),
	})

	svc := NewService(Params{
		DB:     db,
		Log:    logger,
		GenID:  node,
		Clock:  fake,
		Repo:   paymentrepo.Provide(),
		Outbox: writer,
	})

	pledge := &pledgedomain.Pledge{
		ID:         node.Generate(),
		CampaignID: node.Generate(),
		DonorEmail: "donor@example.com",
		Amount:     5000,
		Currency:   "USD",
		Status:     pledgedomain.StatusPending,
		Version:    1,
		CreatedAt:  baseTime,
		UpdatedAt:  baseTime,
	}
	require.NoError(t, db.Create(pledge).Error)

	return &fixture{db: db, svc: svc, clock: fake, node: node, pledge: pledge}
}

func (f *fixture) createIntent(t *testing.T) *paymentdomain.Transaction {
	t.Helper()
	txn, err := f.svc.CreateIntent(context.Background(), paymentdomain.CreateIntentInput{
		PledgeID: f.pledge.ID,
		Amount:   f.pledge.Amount,
		Currency: f.pledge.Currency,
	})
	require.NoError(t, err)
	return txn
}

func TestCreateIntent(t *testing.T) {
	f := newFixture(t)

	txn := f.createIntent(t)
	assert.Equal(t, paymentdomain.StatusInitiated, txn.Status)
	assert.Equal(t, 1, txn.Version)
	assert.NotEmpty(t, txn.Reference)

	got, err := f.svc.Get(context.Background(), txn.Reference)
	require.NoError(t, err)
	assert.Equal(t, txn.ID, got.ID)
}

func TestCreateIntentValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateIntent(ctx, paymentdomain.CreateIntentInput{PledgeID: 0, Amount: 100, Currency: "USD"})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidEvent)

	_, err = f.svc.CreateIntent(ctx, paymentdomain.CreateIntentInput{PledgeID: f.pledge.ID, Amount: 0, Currency: "USD"})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidAmount)

	_, err = f.svc.CreateIntent(ctx, paymentdomain.CreateIntentInput{PledgeID: f.pledge.ID, Amount: 100, Currency: "DOLLARS"})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidCurrency)
}

func TestApplyAdvancesStatusAndVersion(t *testing.T) {
	f := newFixture(t)
	txn := f.createIntent(t)
	eventAt := baseTime.Add(time.Minute)

	result, err := f.svc.Apply(context.Background(), paymentdomain.GatewayEvent{
		EventID:   "evt_1",
		Reference: txn.Reference,
		NewStatus: paymentdomain.StatusAuthorized,
		Timestamp: eventAt,
	})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OutcomeProcessed, result.Outcome)
	assert.Equal(t, paymentdomain.StatusInitiated, result.OldStatus)
	assert.Equal(t, paymentdomain.StatusAuthorized, result.NewStatus)
	assert.Equal(t, 2, result.Version)

	got, err := f.svc.Get(context.Background(), txn.Reference)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusAuthorized, got.Status)
	assert.Equal(t, 2, got.Version)
	assert.True(t, got.UpdatedAt.Equal(eventAt), "updated_at must track the event timestamp")

	transitions, err := f.svc.Transitions(context.Background(), txn.Reference)
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	assert.Equal(t, paymentdomain.StatusInitiated, transitions[0].FromStatus)
	assert.Equal(t, paymentdomain.StatusAuthorized, transitions[0].ToStatus)
	assert.Equal(t, "evt_1", transitions[0].EventID)
	assert.Equal(t, 2, transitions[0].Version)
}

func TestApplyIgnoresStaleEvent(t *testing.T) {
	f := newFixture(t)
	txn := f.createIntent(t)
	ctx := context.Background()

	_, err := f.svc.Apply(ctx, paymentdomain.GatewayEvent{
		EventID:   "evt_1",
		Reference: txn.Reference,
		NewStatus: paymentdomain.StatusAuthorized,
		Timestamp: baseTime.Add(2 * time.Minute),
	})
	require.NoError(t, err)

	// A capture that happened before the authorization we already saw.
	result, err := f.svc.Apply(ctx, paymentdomain.GatewayEvent{
		EventID:   "evt_0",
		Reference: txn.Reference,
		NewStatus: paymentdomain.StatusCaptured,
		Timestamp: baseTime.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OutcomeIgnored, result.Outcome)
	assert.Equal(t, "out_of_order", result.Reason)
	assert.Equal(t, 2, result.Version)

	got, err := f.svc.Get(ctx, txn.Reference)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusAuthorized, got.Status)
	assert.Equal(t, 2, got.Version)

	transitions, err := f.svc.Transitions(ctx, txn.Reference)
	require.NoError(t, err)
	assert.Len(t, transitions, 1)
}

func TestApplyRejectsIllegalTransition(t *testing.T) {
	f := newFixture(t)
	txn := f.createIntent(t)

	result, err := f.svc.Apply(context.Background(), paymentdomain.GatewayEvent{
		EventID:   "evt_1",
		Reference: txn.Reference,
		NewStatus: paymentdomain.StatusCaptured,
		Timestamp: baseTime.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OutcomeRejected, result.Outcome)
	assert.Equal(t, "invalid_transition", result.Reason)
	assert.Equal(t, 1, result.Version)

	got, err := f.svc.Get(context.Background(), txn.Reference)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusInitiated, got.Status)
}

func TestApplyUnknownReference(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Apply(context.Background(), paymentdomain.GatewayEvent{
		EventID:   "evt_1",
		Reference: "pi_missing",
		NewStatus: paymentdomain.StatusAuthorized,
		Timestamp: baseTime,
	})
	assert.ErrorIs(t, err, paymentdomain.ErrNotFound)
}

func TestApplyEmitsCapturedEvent(t *testing.T) {
	f := newFixture(t)
	txn := f.createIntent(t)
	ctx := context.Background()

	_, err := f.svc.Apply(ctx, paymentdomain.GatewayEvent{
		EventID:   "evt_1",
		Reference: txn.Reference,
		NewStatus: paymentdomain.StatusAuthorized,
		Timestamp: baseTime.Add(time.Minute),
	})
	require.NoError(t, err)

	result, err := f.svc.Apply(ctx, paymentdomain.GatewayEvent{
		EventID:   "evt_2",
		Reference: txn.Reference,
		NewStatus: paymentdomain.StatusCaptured,
		Timestamp: baseTime.Add(2 * time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OutcomeProcessed, result.Outcome)
	assert.Equal(t, 3, result.Version)

	var events []outboxdomain.OutboxEvent
	require.NoError(t, f.db.Find(&events).Error)
	require.Len(t, events, 1, "only CAPTURED should emit an integration event")
	assert.Equal(t, outboxdomain.EventTypePaymentCaptured, events[0].EventType)
	assert.Equal(t, txn.Reference, events[0].AggregateID)
	assert.Contains(t, string(events[0].Payload), f.pledge.CampaignID.String())
}

func TestRefund(t *testing.T) {
	f := newFixture(t)
	txn := f.createIntent(t)
	ctx := context.Background()

	for i, status := range []paymentdomain.Status{paymentdomain.StatusAuthorized, paymentdomain.StatusCaptured} {
		_, err := f.svc.Apply(ctx, paymentdomain.GatewayEvent{
			EventID:   fmt.Sprintf("evt_%d", i),
			Reference: txn.Reference,
			NewStatus: status,
			Timestamp: baseTime.Add(time.Duration(i+1) * time.Minute),
		})
		require.NoError(t, err)
	}

	f.clock.Advance(time.Hour)
	result, err := f.svc.Refund(ctx, txn.Reference, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OutcomeProcessed, result.Outcome)
	assert.Equal(t, paymentdomain.StatusRefunded, result.NewStatus)
	assert.Equal(t, 4, result.Version)

	// REFUNDED is terminal.
	again, err := f.svc.Refund(ctx, txn.Reference, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OutcomeRejected, again.Outcome)
}
