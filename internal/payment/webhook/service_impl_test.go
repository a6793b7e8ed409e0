package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
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
	paymentdomain "github.com/pledgekit/fundway/internal/payment/domain"
	paymentrepo "github.com/pledgekit/fundway/internal/payment/repository"
	paymentservice "github.com/pledgekit/fundway/internal/payment/service"
	pledgedomain "github.com/pledgekit/fundway/internal/pledge/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var hookTime = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

type hookFixture struct {
	db    *gorm.DB
	hook  *Service
	txn   *paymentdomain.Transaction
	clock *clock.FakeClock
}

func newHookFixture(t *testing.T) *hookFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&pledgedomain.Pledge{},
		&paymentdomain.Transaction{},
		&paymentdomain.StateTransition{},
		&outboxdomain.OutboxEvent{},
		&idemdomain.Record{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(hookTime)
	logger := zap.NewNop()
	cfg := config.Config{
		Idempotency: config.IdempotencyConfig{
			TTL:      24 * time.Hour,
			CacheTTL: time.Hour,
		},
	}

	writer := outboxservice.NewWriter(outboxservice.WriterParams{
		Log:   logger,
		GenID: node,
		Clock: fake,
		Repo:  outboxrepo.Provide(),
	})
	payments := paymentservice.NewService(paymentservice.Params{
		DB:     db,
		Log:    logger,
		GenID:  node,
		Clock:  fake,
		Repo:   paymentrepo.Provide(),
		Outbox: writer,
	})
	gate := idemservice.NewService(idemservice.Params{
		DB:     db,
		Log:    logger,
		Clock:  fake,
		Config: cfg,
		Repo:   idemrepo.Provide(),
	})
	hook := NewService(Params{
		Log:      logger,
		Gate:     gate,
		Payments: payments,
	})

	pledge := &pledgedomain.Pledge{
		ID:         node.Generate(),
		CampaignID: node.Generate(),
		DonorEmail: "donor@example.com",
		Amount:     5000,
		Currency:   "USD",
		Status:     pledgedomain.StatusPending,
		Version:    1,
		CreatedAt:  hookTime,
		UpdatedAt:  hookTime,
	}
	require.NoError(t, db.Create(pledge).Error)

	txn, err := payments.CreateIntent(context.Background(), paymentdomain.CreateIntentInput{
		PledgeID: pledge.ID,
		Amount:   pledge.Amount,
		Currency: pledge.Currency,
	})
	require.NoError(t, err)

	return &hookFixture{db: db, hook: hook, txn: txn, clock: fake}
}

func gatewayBody(t *testing.T, eventID, reference, status string, at time.Time) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"event_id":           eventID,
		"event_type":         "payment." + status,
		"external_reference": reference,
		"status":             status,
		"timestamp":          at.Format(time.RFC3339),
	})
	require.NoError(t, err)
	return body
}

func decodeBody(t *testing.T, resp *Response) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(resp.Body, &payload))
	return payload
}

func TestHandleProcessesEvent(t *testing.T) {
	f := newHookFixture(t)
	body := gatewayBody(t, "evt_1", f.txn.Reference, "authorized", hookTime.Add(time.Minute))

	resp, err := f.hook.Handle(context.Background(), "evt_1", body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, resp.Duplicate)

	payload := decodeBody(t, resp)
	assert.Equal(t, "processed", payload["status"])
	assert.Equal(t, f.txn.Reference, payload["payment_id"])
	assert.Equal(t, "INITIATED", payload["old_status"])
	assert.Equal(t, "AUTHORIZED", payload["new_status"])
	assert.EqualValues(t, 2, payload["version"])
}

func TestHandleReplaysDuplicateDelivery(t *testing.T) {
	f := newHookFixture(t)
	ctx := context.Background()
	body := gatewayBody(t, "evt_1", f.txn.Reference, "authorized", hookTime.Add(time.Minute))

	first, err := f.hook.Handle(ctx, "evt_1", body)
	require.NoError(t, err)

	second, err := f.hook.Handle(ctx, "evt_1", body)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.StatusCode, second.StatusCode)
	assert.Equal(t, first.Body, second.Body, "duplicates replay the stored response verbatim")

	// The state machine only moved once.
	var transitions int64
	require.NoError(t, f.db.Model(&paymentdomain.StateTransition{}).Count(&transitions).Error)
	assert.EqualValues(t, 1, transitions)
}

func TestHandleIgnoresOutOfOrderEvent(t *testing.T) {
	f := newHookFixture(t)
	ctx := context.Background()

	_, err := f.hook.Handle(ctx, "evt_1", gatewayBody(t, "evt_1", f.txn.Reference, "authorized", hookTime.Add(2*time.Minute)))
	require.NoError(t, err)

	resp, err := f.hook.Handle(ctx, "evt_0", gatewayBody(t, "evt_0", f.txn.Reference, "captured", hookTime.Add(time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	payload := decodeBody(t, resp)
	assert.Equal(t, "ignored", payload["status"])
	assert.Equal(t, "out_of_order", payload["reason"])
}

func TestHandleRejectsIllegalTransition(t *testing.T) {
	f := newHookFixture(t)

	resp, err := f.hook.Handle(context.Background(), "evt_1",
		gatewayBody(t, "evt_1", f.txn.Reference, "captured", hookTime.Add(time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	payload := decodeBody(t, resp)
	assert.Equal(t, "rejected", payload["status"])
	assert.Equal(t, "invalid_transition", payload["reason"])
}

func TestHandleUnknownPayment(t *testing.T) {
	f := newHookFixture(t)

	resp, err := f.hook.Handle(context.Background(), "evt_1",
		gatewayBody(t, "evt_1", "pi_missing", "authorized", hookTime.Add(time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	payload := decodeBody(t, resp)
	assert.Equal(t, "Payment not found", payload["error"])
}

func TestHandleMalformedBody(t *testing.T) {
	f := newHookFixture(t)

	resp, err := f.hook.Handle(context.Background(), "evt_1", []byte("{not json"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	payload := decodeBody(t, resp)
	assert.Equal(t, "rejected", payload["status"])
	assert.Equal(t, "malformed_payload", payload["reason"])
}

func TestHandleDerivesKeyFromBody(t *testing.T) {
	f := newHookFixture(t)
	ctx := context.Background()
	body := gatewayBody(t, "evt_1", f.txn.Reference, "authorized", hookTime.Add(time.Minute))

	first, err := f.hook.Handle(ctx, "", body)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	// Same bytes, no header: the digest key catches the retry.
	second, err := f.hook.Handle(ctx, "", body)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
}
