package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

type OutboxRepository struct {
	pool *pgxpool.Pool
}

func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

func (r *OutboxRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *OutboxRepository) Create(ctx context.Context, tx pgx.Tx, entity *OutboxEntity) error {
	if entity.ID == uuid.Nil {
		entity.ID = uuid.New()
	}

	query := `INSERT INTO payment_event_outbox (id, payment_id, message_key, payload, scheduled_at)
	          VALUES ($1, $2, $3, $4, $5)
	          RETURNING created_at, updated_at`
	err := tx.QueryRow(ctx, query, entity.ID, entity.PaymentID, entity.Key, entity.Payload, entity.ScheduledAt).
		Scan(&entity.CreatedAt, &entity.UpdatedAt)
	return errors.Wrap(err, "insert outbox message")
}

// GetUnpublished locks up to limit due messages. Rows locked by another producer are skipped.
func (r *OutboxRepository) GetUnpublished(ctx context.Context, tx pgx.Tx, limit int) ([]*OutboxEntity, error) {
	query := `SELECT id, payment_id, message_key, payload, created_at, updated_at, scheduled_at, published_at,
	                 publish_attempts, error
	          FROM payment_event_outbox
	          WHERE scheduled_at <= now()
	          ORDER BY scheduled_at
	          LIMIT $1
	          FOR UPDATE SKIP LOCKED`
	rows, err := tx.Query(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select unpublished outbox messages")
	}
	defer rows.Close()

	var entities []*OutboxEntity
	for rows.Next() {
		entity, err := scanOutbox(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return entities, errors.Wrap(rows.Err(), "iterate outbox messages")
}

func (r *OutboxRepository) Update(ctx context.Context, tx pgx.Tx, entity *OutboxEntity) error {
	query := `UPDATE payment_event_outbox
	          SET scheduled_at = $2, published_at = $3, publish_attempts = $4, error = $5, updated_at = now()
	          WHERE id = $1`
	_, err := tx.Exec(ctx, query, entity.ID, entity.ScheduledAt, entity.PublishedAt, entity.PublishAttempts, entity.Error)
	return errors.Wrap(err, "update outbox message")
}

func (r *OutboxRepository) GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*OutboxEntity, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, payment_id, message_key, payload, created_at, updated_at, scheduled_at,
	                                    published_at, publish_attempts, error
	                             FROM payment_event_outbox WHERE payment_id = $1`, paymentID)
	return scanOutbox(row)
}

func scanOutbox(row pgx.Row) (*OutboxEntity, error) {
	var entity OutboxEntity
	err := row.Scan(&entity.ID, &entity.PaymentID, &entity.Key, &entity.Payload, &entity.CreatedAt, &entity.UpdatedAt,
		&entity.ScheduledAt, &entity.PublishedAt, &entity.PublishAttempts, &entity.Error)
	if err != nil {
		return nil, errors.Wrap(err, "scan outbox message")
	}
	return &entity, nil
}
