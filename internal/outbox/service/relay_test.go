package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/pledgekit/fundway/internal/clock"
	"github.com/pledgekit/fundway/internal/config"
	outboxdomain "github.com/pledgekit/fundway/internal/outbox/domain"
	outboxrepo "github.com/pledgekit/fundway/internal/outbox/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var relayTime = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

type fakePublisher struct {
	err       error
	published []string
}

func (f *fakePublisher) Publish(_ context.Context, event *outboxdomain.OutboxEvent) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, event.EventType)
	return nil
}

type relayFixture struct {
	db        *gorm.DB
	writer    outboxdomain.Writer
	relay     *Relay
	publisher *fakePublisher
	clock     *clock.FakeClock
	node      *snowflake.Node
}

func newRelayFixture(t *testing.T) *relayFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&outboxdomain.OutboxEvent{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(relayTime)
	logger := zap.NewNop()
	repo := outboxrepo.Provide()
	publisher := &fakePublisher{}

	writer := NewWriter(WriterParams{
		Log:   logger,
		GenID: node,
		Clock: fake,
		Repo:  repo,
	})
	relay := NewRelay(RelayParams{
		DB:    db,
		Log:   logger,
		Clock: fake,
		Config: config.Config{
			Outbox: config.OutboxConfig{
				BatchSize:  10,
				MaxRetries: 2,
			},
		},
		Repo:      repo,
		Publisher: publisher,
	})

	return &relayFixture{db: db, writer: writer, relay: relay, publisher: publisher, clock: fake, node: node}
}

func (f *relayFixture) append(t *testing.T, eventType string) *outboxdomain.OutboxEvent {
	t.Helper()
	var event *outboxdomain.OutboxEvent
	err := f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		event, err = f.writer.Append(context.Background(), tx, "payment", "pi_1", eventType, map[string]any{"ok": true})
		return err
	})
	require.NoError(t, err)
	return event
}

func TestAppendRollsBackWithTransaction(t *testing.T) {
	f := newRelayFixture(t)
	boom := errors.New("boom")

	err := f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.writer.Append(context.Background(), tx, "payment", "pi_1", "payment.captured", map[string]any{"ok": true})
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, f.db.Model(&outboxdomain.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count, "rolled back transaction must leave no event row")
}

func TestAppendValidatesEvent(t *testing.T) {
	f := newRelayFixture(t)

	_, err := f.writer.Append(context.Background(), f.db, "", "pi_1", "payment.captured", nil)
	assert.ErrorIs(t, err, outboxdomain.ErrInvalidEvent)

	_, err = f.writer.Append(context.Background(), f.db, "payment", "pi_1", "payment.captured", func() {})
	assert.ErrorIs(t, err, outboxdomain.ErrInvalidPayload)
}

func TestProcessBatchPublishes(t *testing.T) {
	f := newRelayFixture(t)
	f.append(t, "pledge.created")
	f.append(t, "payment.captured")

	published, err := f.relay.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, published)
	assert.Equal(t, []string{"pledge.created", "payment.captured"}, f.publisher.published)

	var pending int64
	require.NoError(t, f.db.Model(&outboxdomain.OutboxEvent{}).Where("processed_at IS NULL").Count(&pending).Error)
	assert.Zero(t, pending)

	// A second pass finds nothing to do.
	published, err = f.relay.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, published)
}

func TestProcessBatchRetriesThenParks(t *testing.T) {
	f := newRelayFixture(t)
	event := f.append(t, "payment.captured")
	f.publisher.err = errors.New("stream unavailable")

	published, err := f.relay.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, published)

	var row outboxdomain.OutboxEvent
	require.NoError(t, f.db.First(&row, "id = ?", event.ID).Error)
	assert.Equal(t, 1, row.RetryCount)
	assert.Nil(t, row.ParkedAt)
	assert.Equal(t, "stream unavailable", row.LastError)

	// retry_count+1 reaches MaxRetries, so the second failure parks the row.
	published, err = f.relay.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, published)

	require.NoError(t, f.db.First(&row, "id = ?", event.ID).Error)
	assert.NotNil(t, row.ParkedAt)

	// Parked rows are no longer fetched.
	f.publisher.err = nil
	published, err = f.relay.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, published)
	assert.Empty(t, f.publisher.published)
}

func TestProcessBatchParksMalformedPayload(t *testing.T) {
	f := newRelayFixture(t)
	broken := &outboxdomain.OutboxEvent{
		ID:            f.node.Generate(),
		AggregateType: "payment",
		AggregateID:   "pi_1",
		EventType:     "payment.captured",
		Payload:       datatypes.JSON([]byte("{not json")),
		CreatedAt:     relayTime,
	}
	require.NoError(t, f.db.Create(broken).Error)

	published, err := f.relay.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, published)
	assert.Empty(t, f.publisher.published)

	var row outboxdomain.OutboxEvent
	require.NoError(t, f.db.First(&row, "id = ?", broken.ID).Error)
	assert.NotNil(t, row.ParkedAt)
	assert.Equal(t, "malformed payload", row.LastError)
}

func TestCleanup(t *testing.T) {
	f := newRelayFixture(t)
	f.append(t, "payment.captured")

	_, err := f.relay.ProcessBatch(context.Background())
	require.NoError(t, err)

	// Still inside the retention window.
	deleted, err := f.relay.Cleanup(context.Background(), 7*24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	f.clock.Advance(8 * 24 * time.Hour)
	deleted, err = f.relay.Cleanup(context.Background(), 7*24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
}
