package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"ontohub/internal/platform/models"
)

const webhookColumns = `id, name, target_url, event_type, ontology_filter, secret_token, created_at`

type WebhookRepository struct {
	db *sql.DB
}

func NewWebhookRepository(db *sql.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

func normalizeSpec(spec models.WebhookSpec) models.WebhookSpec {
	spec.Name = strings.TrimSpace(spec.Name)
	spec.TargetURL = strings.TrimSpace(spec.TargetURL)
	spec.EventType = strings.TrimSpace(spec.EventType)
	if spec.EventType == "" {
		spec.EventType = models.EventOntologyActivated
	}
	if spec.OntologyFilter != nil {
		filter := strings.TrimSpace(*spec.OntologyFilter)
		spec.OntologyFilter = &filter
	}
	return spec
}

// Create registers a webhook. Registering an existing (target_url, event_type)
// pair returns the stored webhook unchanged.
func (r *WebhookRepository) Create(ctx context.Context, spec models.WebhookSpec) (*models.Webhook, error) {
	spec = normalizeSpec(spec)
	if spec.Name == "" {
		spec.Name = models.DefaultWebhookName
	}

	existing, err := r.getByPair(ctx, spec.TargetURL, spec.EventType)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	webhook := &models.Webhook{
		ID:             "wh_" + uuid.New().String(),
		Name:           spec.Name,
		TargetURL:      spec.TargetURL,
		EventType:      spec.EventType,
		OntologyFilter: spec.OntologyFilter,
		SecretToken:    spec.SecretToken,
		CreatedAt:      time.Now().UTC(),
	}

	query := `
		INSERT INTO webhooks (id, name, target_url, event_type, ontology_filter, secret_token, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query, webhook.ID, webhook.Name, webhook.TargetURL, webhook.EventType,
		webhook.OntologyFilter, webhook.SecretToken, webhook.CreatedAt.UnixNano())
	if err != nil {
		if isUniqueViolation(err) {
			// Lost a race with a concurrent registration of the same pair.
			return r.getByPair(ctx, spec.TargetURL, spec.EventType)
		}
		return nil, fmt.Errorf("insert webhook: %w", err)
	}
	return webhook, nil
}

func (r *WebhookRepository) getByPair(ctx context.Context, targetURL, eventType string) (*models.Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks WHERE target_url = ? AND event_type = ?`
	return scanWebhook(r.db.QueryRowContext(ctx, query, targetURL, eventType))
}

func (r *WebhookRepository) GetByID(ctx context.Context, id string) (*models.Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks WHERE id = ?`
	return scanWebhook(r.db.QueryRowContext(ctx, query, id))
}

func (r *WebhookRepository) List(ctx context.Context, limit, offset int) ([]*models.Webhook, int, error) {
	limit, offset = pageBounds(limit, offset, 100)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM webhooks`).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + webhookColumns + ` FROM webhooks ORDER BY created_at DESC LIMIT ? OFFSET ?`
	webhooks, err := r.queryWebhooks(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return webhooks, total, nil
}

// Update replaces the webhook's url, event type, filter and secret. An empty
// name keeps the current one.
func (r *WebhookRepository) Update(ctx context.Context, id string, spec models.WebhookSpec) (*models.Webhook, error) {
	webhook, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	spec = normalizeSpec(spec)
	if spec.Name != "" {
		webhook.Name = spec.Name
	}
	webhook.TargetURL = spec.TargetURL
	webhook.EventType = spec.EventType
	webhook.OntologyFilter = spec.OntologyFilter
	webhook.SecretToken = spec.SecretToken

	query := `
		UPDATE webhooks
		SET name = ?, target_url = ?, event_type = ?, ontology_filter = ?, secret_token = ?
		WHERE id = ?
	`
	_, err = r.db.ExecContext(ctx, query, webhook.Name, webhook.TargetURL, webhook.EventType,
		webhook.OntologyFilter, webhook.SecretToken, webhook.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("update webhook: %w", err)
	}
	return webhook, nil
}

func (r *WebhookRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM webhooks WHERE id = ?`, id)
	return err
}

// GetByEvent returns the webhooks subscribed to eventType that are either
// global (no filter) or filtered to exactly code.
func (r *WebhookRepository) GetByEvent(ctx context.Context, eventType, code string) ([]*models.Webhook, error) {
	query := `
		SELECT ` + webhookColumns + ` FROM webhooks
		WHERE event_type = ?
		  AND (ontology_filter IS NULL OR ontology_filter = '' OR ontology_filter = ?)
		ORDER BY created_at ASC
	`
	return r.queryWebhooks(ctx, query, eventType, code)
}

func (r *WebhookRepository) queryWebhooks(ctx context.Context, query string, args ...interface{}) ([]*models.Webhook, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var webhooks []*models.Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		webhooks = append(webhooks, w)
	}
	return webhooks, rows.Err()
}

func scanWebhook(s scanner) (*models.Webhook, error) {
	var w models.Webhook
	var filter, secret sql.NullString
	var createdAt int64

	err := s.Scan(&w.ID, &w.Name, &w.TargetURL, &w.EventType, &filter, &secret, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if filter.Valid {
		w.OntologyFilter = &filter.String
	}
	if secret.Valid {
		w.SecretToken = &secret.String
	}
	w.CreatedAt = time.Unix(0, createdAt).UTC()
	return &w, nil
}
