package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

var ErrIntegrationNotFound = errors.New("integration not found")

type IntegrationRepository struct {
	pool *pgxpool.Pool
}

func NewIntegrationRepository(pool *pgxpool.Pool) *IntegrationRepository {
	return &IntegrationRepository{pool: pool}
}

// Resolve finds the active integration owning token.
func (r *IntegrationRepository) Resolve(ctx context.Context, token string) (*IntegrationContext, error) {
	if token == "" {
		return nil, ErrIntegrationNotFound
	}

	query := `SELECT ui.id, ui.owner_id, p.slug, ui.config, ui.webhook_settings, COALESCE(ui.forward_url, '')
	          FROM user_integrations ui
	          JOIN integration_providers p ON p.id = ui.provider_id
	          WHERE ui.webhook_token = $1 AND ui.status = $2`

	var (
		integration IntegrationContext
		settings    map[string]any
	)
	err := r.pool.QueryRow(ctx, query, token, IntegrationStatusActive).Scan(&integration.ID, &integration.OwnerID,
		&integration.ProviderSlug, &integration.Config, &settings, &integration.ForwardURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrIntegrationNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select integration by token")
	}

	integration.WebhookSettings = boolSettings(settings)
	return &integration, nil
}

// Touch records an accepted callback on the integration counters.
func (r *IntegrationRepository) Touch(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	query := `UPDATE user_integrations
	          SET last_webhook_at = now(), webhook_count = webhook_count + 1, updated_at = now()
	          WHERE id = $1`
	tag, err := tx.Exec(ctx, query, id)
	if err != nil {
		return errors.Wrap(err, "update integration counters")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(ErrIntegrationNotFound, "update integration counters %s", id)
	}
	return nil
}

// Create inserts an integration for an existing provider slug.
func (r *IntegrationRepository) Create(ctx context.Context, entity *IntegrationEntity) (*IntegrationEntity, error) {
	if entity.ID == uuid.Nil {
		entity.ID = uuid.New()
	}
	if entity.Status == "" {
		entity.Status = IntegrationStatusActive
	}
	if entity.Config == nil {
		entity.Config = map[string]any{}
	}
	if entity.WebhookSettings == nil {
		entity.WebhookSettings = map[string]any{}
	}

	query := `INSERT INTO user_integrations (id, owner_id, provider_id, integration_name, webhook_token, config,
	                                         webhook_settings, forward_url, status)
	          SELECT $1::uuid, $2::uuid, p.id, $4::text, $5::text, $6::jsonb, $7::jsonb, $8::text, $9::text
	          FROM integration_providers p
	          WHERE p.slug = $3
	          RETURNING created_at, updated_at`
	err := r.pool.QueryRow(ctx, query, entity.ID, entity.OwnerID, entity.ProviderSlug, entity.Name, entity.WebhookToken,
		entity.Config, entity.WebhookSettings, entity.ForwardURL, entity.Status).Scan(&entity.CreatedAt, &entity.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Errorf("provider %q not found", entity.ProviderSlug)
	}
	if err != nil {
		return nil, errors.Wrap(err, "insert integration")
	}
	return entity, nil
}

func (r *IntegrationRepository) GetByID(ctx context.Context, id uuid.UUID) (*IntegrationEntity, error) {
	query := `SELECT ui.id, ui.owner_id, p.slug, ui.integration_name, ui.webhook_token, ui.config, ui.webhook_settings,
	                 ui.forward_url, ui.status, ui.webhook_count, ui.last_webhook_at, ui.created_at, ui.updated_at
	          FROM user_integrations ui
	          JOIN integration_providers p ON p.id = ui.provider_id
	          WHERE ui.id = $1`

	var entity IntegrationEntity
	err := r.pool.QueryRow(ctx, query, id).Scan(&entity.ID, &entity.OwnerID, &entity.ProviderSlug, &entity.Name,
		&entity.WebhookToken, &entity.Config, &entity.WebhookSettings, &entity.ForwardURL, &entity.Status,
		&entity.WebhookCount, &entity.LastWebhookAt, &entity.CreatedAt, &entity.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrIntegrationNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select integration by id")
	}
	return &entity, nil
}

// SetStatus activates or deactivates an integration. Deactivated integrations stop resolving.
func (r *IntegrationRepository) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE user_integrations SET status = $2, updated_at = $3 WHERE id = $1`,
		id, status, time.Now())
	if err != nil {
		return errors.Wrap(err, "update integration status")
	}
	if tag.RowsAffected() == 0 {
		return ErrIntegrationNotFound
	}
	return nil
}

// CreateProvider registers a provider slug, doing nothing if it already exists.
func (r *IntegrationRepository) CreateProvider(ctx context.Context, slug, name string) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO integration_providers (id, slug, name) VALUES ($1, $2, $3)
	                            ON CONFLICT (slug) DO NOTHING`, uuid.New(), slug, name)
	return errors.Wrap(err, "insert provider")
}

// boolSettings keeps boolean toggles only; anything else counts as unset.
func boolSettings(settings map[string]any) map[string]bool {
	result := make(map[string]bool, len(settings))
	for key, value := range settings {
		if b, ok := value.(bool); ok {
			result[key] = b
		}
	}
	return result
}
