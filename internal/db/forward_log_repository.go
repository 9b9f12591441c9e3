package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

type ForwardLogRepository struct {
	pool *pgxpool.Pool
}

func NewForwardLogRepository(pool *pgxpool.Pool) *ForwardLogRepository {
	return &ForwardLogRepository{pool: pool}
}

// Create appends a forward attempt in its own transaction.
func (r *ForwardLogRepository) Create(ctx context.Context, entity *ForwardLogEntity) error {
	if entity.ID == uuid.Nil {
		entity.ID = uuid.New()
	}

	query := `INSERT INTO webhook_forward_logs (id, webhook_payment_id, forward_url, status_code, error_message, response_time_ms)
	          VALUES ($1, $2, $3, $4, $5, $6)
	          RETURNING created_at`
	err := r.pool.QueryRow(ctx, query, entity.ID, entity.WebhookPaymentID, entity.ForwardURL, entity.StatusCode,
		entity.ErrorMessage, entity.ResponseTimeMs).Scan(&entity.CreatedAt)
	return errors.Wrap(err, "insert forward log")
}

// ListByURL returns the attempts made to url, newest first.
func (r *ForwardLogRepository) ListByURL(ctx context.Context, url string, limit int) ([]*ForwardLogEntity, error) {
	query := `SELECT id, webhook_payment_id, forward_url, status_code, error_message, response_time_ms, created_at
	          FROM webhook_forward_logs
	          WHERE forward_url = $1
	          ORDER BY created_at DESC
	          LIMIT $2`
	rows, err := r.pool.Query(ctx, query, url, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select forward logs")
	}
	defer rows.Close()

	var logs []*ForwardLogEntity
	for rows.Next() {
		var entity ForwardLogEntity
		if err := rows.Scan(&entity.ID, &entity.WebhookPaymentID, &entity.ForwardURL, &entity.StatusCode,
			&entity.ErrorMessage, &entity.ResponseTimeMs, &entity.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan forward log")
		}
		logs = append(logs, &entity)
	}
	return logs, errors.Wrap(rows.Err(), "iterate forward logs")
}
