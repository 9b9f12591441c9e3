package callback

import (
	"context"
	"log"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"

	"webhook-gateway/internal/config"
	"webhook-gateway/internal/db"
	"webhook-gateway/internal/testhelpers"
)

type fakeWriter struct {
	mu       sync.Mutex
	err      error
	messages []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

var producerConfig = config.CallbackProducer{
	PollingIntervalMs:  10,
	FetchSize:          10,
	RescheduleDelayMs:  1000,
	MaxPublishAttempts: 3,
}

func TestProducer_ApplyPublishResult(t *testing.T) {
	p := NewProducer(nil, &fakeWriter{}, producerConfig, slog.Default())
	now := time.Now()

	t.Run("Published", func(t *testing.T) {
		prevErr := "previous"
		entity := &db.OutboxEntity{ScheduledAt: &now, Error: &prevErr}

		p.applyPublishResult(entity, nil, now)

		assert.Equal(t, 1, entity.PublishAttempts)
		assert.Nil(t, entity.ScheduledAt)
		assert.Nil(t, entity.Error)
		require.NotNil(t, entity.PublishedAt)
		assert.Equal(t, now, *entity.PublishedAt)
	})

	t.Run("Rescheduled", func(t *testing.T) {
		entity := &db.OutboxEntity{ScheduledAt: &now, PublishAttempts: 1}

		p.applyPublishResult(entity, errors.New("broker down"), now)

		assert.Equal(t, 2, entity.PublishAttempts)
		require.NotNil(t, entity.ScheduledAt)
		assert.Equal(t, now.Add(2*time.Second), *entity.ScheduledAt)
		assert.Equal(t, "broker down", *entity.Error)
		assert.Nil(t, entity.PublishedAt)
	})

	t.Run("MaxAttemptsReached", func(t *testing.T) {
		entity := &db.OutboxEntity{ScheduledAt: &now, PublishAttempts: 2}

		p.applyPublishResult(entity, errors.New("broker down"), now)

		assert.Equal(t, 3, entity.PublishAttempts)
		assert.Nil(t, entity.ScheduledAt)
		assert.Nil(t, entity.PublishedAt)
		assert.Equal(t, "broker down", *entity.Error)
	})
}

func TestProducer_ToKafkaMessages(t *testing.T) {
	p := NewProducer(nil, &fakeWriter{}, producerConfig, slog.Default())
	id := uuid.New()

	messages := p.toKafkaMessages(context.Background(), []*db.OutboxEntity{
		{ID: id, Key: "8742591", Payload: `{"status":"CONFIRMED"}`},
	})

	require.Len(t, messages, 1)
	assert.Equal(t, []byte("8742591"), messages[0].Key)
	assert.Equal(t, []byte(`{"status":"CONFIRMED"}`), messages[0].Value)
	assert.Contains(t, messages[0].Headers, kafka.Header{Key: "event", Value: []byte("payment.recorded")})
	assert.Contains(t, messages[0].Headers, kafka.Header{Key: "id", Value: []byte(id.String())})
}

type ProducerTestSuite struct {
	suite.Suite
	pgContainer  *testhelpers.PostgresContainer
	pool         *pgxpool.Pool
	integrations *db.IntegrationRepository
	outbox       *db.OutboxRepository
	ledger       *db.Ledger
	ctx          context.Context
}

func (s *ProducerTestSuite) SetupSuite() {
	testcontainers.SkipIfProviderIsNotHealthy(s.T())
	time.Local = time.UTC

	s.ctx = context.Background()
	pgContainer, err := testhelpers.CreatePostgresContainer(s.ctx)
	if err != nil {
		log.Fatal(err)
	}
	s.pgContainer = pgContainer

	if err := db.RunMigrations(pgContainer.ConnectionString); err != nil {
		log.Fatal(err)
	}

	pool, err := db.GetPool(pgContainer.ConnectionString)
	if err != nil {
		log.Fatal(err)
	}

	s.pool = pool
	s.integrations = db.NewIntegrationRepository(pool)
	s.outbox = db.NewOutboxRepository(pool)
	s.ledger = db.NewLedger(pool, s.integrations, db.NewPaymentRepository(pool), s.outbox, true)
}

func (s *ProducerTestSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}

	if s.pgContainer != nil {
		if err := s.pgContainer.Terminate(s.ctx); err != nil {
			log.Fatalf("error terminating postgres container: %s", err)
		}
	}
}

func (s *ProducerTestSuite) SetupTest() {
	_, err := s.pool.Exec(s.ctx, `TRUNCATE payment_event_outbox, webhook_forward_logs, webhook_payments, user_integrations`)
	if err != nil {
		log.Fatalf("error truncating tables: %s", err)
	}
}

func (s *ProducerTestSuite) recordPayment() uuid.UUID {
	t := s.T()

	token := "tok-" + uuid.NewString()
	_, err := s.integrations.Create(s.ctx, &db.IntegrationEntity{
		OwnerID:      uuid.New(),
		ProviderSlug: "tbank",
		WebhookToken: token,
	})
	require.NoError(t, err)

	integration, err := s.integrations.Resolve(s.ctx, token)
	require.NoError(t, err)

	id, err := s.ledger.Commit(s.ctx, integration, &db.PaymentEntity{
		IntegrationID: integration.ID,
		OwnerID:       integration.OwnerID,
		PaymentID:     "P1",
		AmountMinor:   10000,
		Status:        "CONFIRMED",
		RawData:       []byte(`{}`),
	})
	require.NoError(t, err)
	require.NotNil(t, id)
	return *id
}

func (s *ProducerTestSuite) TestProcess_PublishesAndMarksMessages() {
	t := s.T()

	paymentID := s.recordPayment()
	writer := &fakeWriter{}
	producer := NewProducer(s.outbox, writer, producerConfig, slog.Default())

	producer.process(s.ctx)

	require.Len(t, writer.messages, 1)
	assert.Equal(t, []byte("P1"), writer.messages[0].Key)
	assert.Contains(t, string(writer.messages[0].Value), `"amount": "100.00"`)

	entity, err := s.outbox.GetByPaymentID(s.ctx, paymentID)
	require.NoError(t, err)
	assert.NotNil(t, entity.PublishedAt)
	assert.Nil(t, entity.ScheduledAt)
	assert.Equal(t, 1, entity.PublishAttempts)

	producer.process(s.ctx)
	assert.Len(t, writer.messages, 1)
}

func (s *ProducerTestSuite) TestProcess_ReschedulesOnPublishFailure() {
	t := s.T()

	paymentID := s.recordPayment()
	writer := &fakeWriter{err: errors.New("kafka unavailable")}
	producer := NewProducer(s.outbox, writer, producerConfig, slog.Default())

	producer.process(s.ctx)

	entity, err := s.outbox.GetByPaymentID(s.ctx, paymentID)
	require.NoError(t, err)
	assert.Nil(t, entity.PublishedAt)
	require.NotNil(t, entity.ScheduledAt)
	assert.True(t, entity.ScheduledAt.After(time.Now()))
	assert.Equal(t, 1, entity.PublishAttempts)
	assert.Equal(t, "kafka unavailable", *entity.Error)
}

func TestProducerTestSuite(t *testing.T) {
	suite.Run(t, new(ProducerTestSuite))
}
