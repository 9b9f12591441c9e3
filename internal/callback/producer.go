package callback

import (
	"context"
	"log/slog"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"webhook-gateway/internal/config"
	"webhook-gateway/internal/db"
	"webhook-gateway/internal/logcontext"
	"webhook-gateway/internal/message"
)

var (
	// producer batch metrics
	producerErrorFetchingCounter = metrics.GetOrCreateCounter(`payment_event_producer_total{result="fetching_failed"}`)
	producerErrorKafkaCounter    = metrics.GetOrCreateCounter(`payment_event_producer_total{result="publish_failed"}`)
	producerErrorUpdateCounter   = metrics.GetOrCreateCounter(`payment_event_producer_total{result="db_update_failed"}`)
	producerSuccessCounter       = metrics.GetOrCreateCounter(`payment_event_producer_total{result="success"}`)

	producerProcessDurationHistogram = metrics.GetOrCreateHistogram(`payment_event_producer_duration_milliseconds`)

	// producer per message metrics
	producerMessagesPublishedCounter   = metrics.GetOrCreateCounter(`payment_event_producer_messages_total{result="published"}`)
	producerMessagesMaxAttemptsCounter = metrics.GetOrCreateCounter(`payment_event_producer_messages_total{result="max_attempts_reached"}`)
	producerMessagesRescheduledCounter = metrics.GetOrCreateCounter(`payment_event_producer_messages_total{result="rescheduled"}`)
)

// MessageWriter is the part of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Producer relays payment events from the outbox table to Kafka.
type Producer struct {
	repo               *db.OutboxRepository
	writer             MessageWriter
	pollingInterval    time.Duration
	fetchSize          int
	retryDelay         time.Duration
	maxPublishAttempts int
	logger             *slog.Logger
}

func NewProducer(repo *db.OutboxRepository, writer MessageWriter, cfg config.CallbackProducer, logger *slog.Logger) *Producer {
	return &Producer{
		repo:               repo,
		writer:             writer,
		pollingInterval:    time.Duration(cfg.PollingIntervalMs) * time.Millisecond,
		fetchSize:          cfg.FetchSize,
		retryDelay:         time.Duration(cfg.RescheduleDelayMs) * time.Millisecond,
		maxPublishAttempts: cfg.MaxPublishAttempts,
		logger:             logger,
	}
}

func (p *Producer) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(p.pollingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.process(ctx)
			case <-ctx.Done():
				p.logger.InfoContext(ctx, "Context done, stopping producer")
				return
			}
		}
	}()
}

func (p *Producer) process(ctx context.Context) {
	startTime := time.Now()

	// set runId as a correlation id for all logs in scope
	ctx = logcontext.AppendCtx(ctx, slog.String("runId", uuid.New().String()))

	tx, err := p.repo.BeginTx(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "Error starting transaction", "error", err)
		producerErrorFetchingCounter.Inc()
		return
	}

	defer tx.Rollback(ctx)

	entities, err := p.repo.GetUnpublished(ctx, tx, p.fetchSize)
	if err != nil {
		p.logger.ErrorContext(ctx, "Error fetching unpublished payment events", "error", err)
		producerErrorFetchingCounter.Inc()
		return
	}

	if len(entities) == 0 {
		producerSuccessCounter.Inc()
		return
	}

	p.logger.InfoContext(ctx, "Writing payment events to Kafka", "count", len(entities))

	err = p.writer.WriteMessages(ctx, p.toKafkaMessages(ctx, entities)...)
	if err != nil {
		p.logger.ErrorContext(ctx, "Error writing messages to Kafka", "error", err)
		producerErrorKafkaCounter.Inc()
	}

	for _, entity := range entities {
		messageCtx := logcontext.AppendCtx(ctx, slog.String("id", entity.ID.String()))

		p.applyPublishResult(entity, err, time.Now())

		if updateErr := p.repo.Update(messageCtx, tx, entity); updateErr != nil {
			p.logger.ErrorContext(messageCtx, "Error updating outbox message", "error", updateErr)
			producerErrorUpdateCounter.Inc()
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		p.logger.ErrorContext(ctx, "Error committing transaction", "error", err)
		producerErrorUpdateCounter.Inc()
	} else {
		producerSuccessCounter.Inc()
	}

	producerProcessDurationHistogram.Update(float64(time.Since(startTime).Milliseconds()))
}

// applyPublishResult moves entity to published, rescheduled or given up, depending on publishErr.
func (p *Producer) applyPublishResult(entity *db.OutboxEntity, publishErr error, now time.Time) {
	entity.PublishAttempts++

	if publishErr == nil {
		entity.ScheduledAt = nil
		entity.PublishedAt = &now
		entity.Error = nil

		producerMessagesPublishedCounter.Inc()
		return
	}

	errMsg := publishErr.Error()
	entity.Error = &errMsg

	if entity.PublishAttempts >= p.maxPublishAttempts {
		p.logger.Warn("Max publish attempts reached for payment event", "id", entity.ID)
		entity.ScheduledAt = nil

		producerMessagesMaxAttemptsCounter.Inc()
		return
	}

	scheduledAt := now.Add(time.Duration(entity.PublishAttempts) * p.retryDelay)
	entity.ScheduledAt = &scheduledAt

	producerMessagesRescheduledCounter.Inc()
}

func (p *Producer) toKafkaMessages(ctx context.Context, entities []*db.OutboxEntity) []kafka.Message {
	kafkaMessages := make([]kafka.Message, 0, len(entities))

	for _, entity := range entities {
		p.logger.DebugContext(ctx, "Preparing Kafka message for payment event", "id", entity.ID)

		kafkaMessages = append(kafkaMessages, kafka.Message{
			Key:   []byte(entity.Key), // provider payment id keeps status transitions of a payment ordered
			Value: []byte(entity.Payload),
			Headers: []kafka.Header{
				{Key: "event", Value: []byte(message.PaymentRecordedEvent)},
				{Key: "id", Value: []byte(entity.ID.String())},
			},
		})
	}
	return kafkaMessages
}
