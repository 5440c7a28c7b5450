package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"ontohub/internal/platform/models"
)

const deliveryColumns = `d.id, d.webhook_id, COALESCE(w.name, ''), d.event_type, COALESCE(d.ontology_code, ''),
	COALESCE(d.package_id, ''), COALESCE(d.payload, ''), d.status, d.response_status, d.error_message, d.created_at`

// Deliveries may outlive their webhook, so reads LEFT JOIN for the display name.
const deliveryFrom = ` FROM webhook_deliveries d LEFT JOIN webhooks w ON w.id = d.webhook_id`

// DeliveryRepository is the append-only delivery ledger.
type DeliveryRepository struct {
	db *sql.DB
}

func NewDeliveryRepository(db *sql.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

// Create appends a delivery row. ID and CreatedAt are filled in when empty.
func (r *DeliveryRepository) Create(ctx context.Context, d *models.Delivery) error {
	if d.ID == "" {
		d.ID = "dlv_" + uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO webhook_deliveries (
			id, webhook_id, event_type, ontology_code, package_id, payload,
			status, response_status, error_message, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		d.ID,
		d.WebhookID,
		d.EventType,
		nullString(d.OntologyCode),
		nullString(d.PackageID),
		d.Payload,
		string(d.Status),
		d.ResponseStatus,
		d.ErrorMessage,
		d.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

// ListByWebhook returns the newest deliveries of one webhook and the total
// count matching the filter.
func (r *DeliveryRepository) ListByWebhook(ctx context.Context, webhookID string, filter models.DeliveryFilter) ([]*models.Delivery, int, error) {
	where := ` WHERE d.webhook_id = ?`
	args := []interface{}{webhookID}
	if filter.OntologyCode != "" {
		where += ` AND d.ontology_code = ?`
		args = append(args, filter.OntologyCode)
	}
	if filter.Status != "" {
		where += ` AND d.status = ?`
		args = append(args, string(filter.Status))
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM webhook_deliveries d`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := pageBounds(filter.Limit, filter.Offset, 20)
	query := `SELECT ` + deliveryColumns + deliveryFrom + where + ` ORDER BY d.created_at DESC, d.rowid DESC LIMIT ? OFFSET ?`
	deliveries, err := r.queryDeliveries(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	return deliveries, total, nil
}

func (r *DeliveryRepository) ListByOntology(ctx context.Context, code string, limit, offset int) ([]*models.Delivery, error) {
	limit, offset = pageBounds(limit, offset, 50)
	query := `SELECT ` + deliveryColumns + deliveryFrom + `
		WHERE d.ontology_code = ?
		ORDER BY d.created_at DESC, d.rowid DESC
		LIMIT ? OFFSET ?`
	return r.queryDeliveries(ctx, query, code, limit, offset)
}

// LatestSuccess returns the most recent SUCCESS delivery of webhookID for the
// ontology code, or ErrNotFound.
func (r *DeliveryRepository) LatestSuccess(ctx context.Context, webhookID, code string) (*models.Delivery, error) {
	query := `SELECT ` + deliveryColumns + deliveryFrom + `
		WHERE d.webhook_id = ? AND d.status = ? AND d.ontology_code = ?
		ORDER BY d.created_at DESC, d.rowid DESC
		LIMIT 1`
	return scanDelivery(r.db.QueryRowContext(ctx, query, webhookID, string(models.DeliverySuccess), code))
}

// LatestByPackage returns, per webhook id, the newest activation delivery
// that carried packageID.
func (r *DeliveryRepository) LatestByPackage(ctx context.Context, packageID string) (map[string]*models.Delivery, error) {
	query := `SELECT ` + deliveryColumns + deliveryFrom + `
		WHERE d.package_id = ? AND d.event_type = ?
		ORDER BY d.created_at ASC, d.rowid ASC`
	deliveries, err := r.queryDeliveries(ctx, query, packageID, models.EventOntologyActivated)
	if err != nil {
		return nil, err
	}

	latest := make(map[string]*models.Delivery, len(deliveries))
	for _, d := range deliveries {
		latest[d.WebhookID] = d
	}
	return latest, nil
}

// DeleteByOntologyCode removes every ledger row of a series. It is the only
// way rows leave the ledger.
func (r *DeliveryRepository) DeleteByOntologyCode(ctx context.Context, code string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM webhook_deliveries WHERE ontology_code = ?`, code)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *DeliveryRepository) queryDeliveries(ctx context.Context, query string, args ...interface{}) ([]*models.Delivery, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deliveries []*models.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

func scanDelivery(s scanner) (*models.Delivery, error) {
	var d models.Delivery
	var status string
	var responseStatus sql.NullInt64
	var errorMessage sql.NullString
	var createdAt int64

	err := s.Scan(&d.ID, &d.WebhookID, &d.WebhookName, &d.EventType, &d.OntologyCode, &d.PackageID,
		&d.Payload, &status, &responseStatus, &errorMessage, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	d.Status = models.DeliveryStatus(status)
	if responseStatus.Valid {
		code := int(responseStatus.Int64)
		d.ResponseStatus = &code
	}
	if errorMessage.Valid {
		d.ErrorMessage = &errorMessage.String
	}
	d.CreatedAt = time.Unix(0, createdAt).UTC()
	return &d, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func pageBounds(limit, offset, defaultLimit int) (int, int) {
	if limit <= 0 || limit > 500 {
		limit = defaultLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
