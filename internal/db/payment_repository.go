package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"webhook-gateway/internal/money"
)

type PaymentRepository struct {
	pool *pgxpool.Pool
}

func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// Insert writes entity unless a row for the same (integration, payment, status) exists.
// It returns the new row id, or nil when the event was already recorded.
func (r *PaymentRepository) Insert(ctx context.Context, tx pgx.Tx, entity *PaymentEntity) (*uuid.UUID, error) {
	if entity.ID == uuid.Nil {
		entity.ID = uuid.New()
	}

	query := `INSERT INTO webhook_payments (id, integration_id, owner_id, payment_id, terminal_key, amount, order_id,
	                                       status, payment_status, error_code, customer_email, customer_phone, pan,
	                                       card_type, exp_date, raw_data)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	          ON CONFLICT (integration_id, payment_id, status) DO NOTHING
	          RETURNING created_at`
	err := tx.QueryRow(ctx, query, entity.ID, entity.IntegrationID, entity.OwnerID, entity.PaymentID, entity.TerminalKey,
		money.Numeric(entity.AmountMinor), entity.OrderID, entity.Status, entity.PaymentStatus, entity.ErrorCode,
		entity.CustomerEmail, entity.CustomerPhone, entity.Pan, entity.CardType, entity.ExpDate, entity.RawData,
	).Scan(&entity.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "insert webhook payment")
	}
	return &entity.ID, nil
}

const paymentColumns = `id, integration_id, owner_id, payment_id, terminal_key, (amount * 100)::bigint, order_id, status,
	payment_status, error_code, customer_email, customer_phone, pan, card_type, exp_date, raw_data, created_at`

func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*PaymentEntity, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM webhook_payments WHERE id = $1`, id)
	return scanPayment(row)
}

func (r *PaymentRepository) ListByIntegration(ctx context.Context, integrationID uuid.UUID) ([]*PaymentEntity, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM webhook_payments
	                                WHERE integration_id = $1 ORDER BY created_at`, integrationID)
	if err != nil {
		return nil, errors.Wrap(err, "select webhook payments")
	}
	defer rows.Close()

	var payments []*PaymentEntity
	for rows.Next() {
		entity, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, entity)
	}
	return payments, errors.Wrap(rows.Err(), "iterate webhook payments")
}

func scanPayment(row pgx.Row) (*PaymentEntity, error) {
	var entity PaymentEntity
	err := row.Scan(&entity.ID, &entity.IntegrationID, &entity.OwnerID, &entity.PaymentID, &entity.TerminalKey,
		&entity.AmountMinor, &entity.OrderID, &entity.Status, &entity.PaymentStatus, &entity.ErrorCode,
		&entity.CustomerEmail, &entity.CustomerPhone, &entity.Pan, &entity.CardType, &entity.ExpDate, &entity.RawData,
		&entity.CreatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "scan webhook payment")
	}
	return &entity, nil
}
