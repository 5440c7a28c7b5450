package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"ontohub/internal/platform/models"
	"ontohub/internal/platform/repositories"
)

// DeliveryReader is the read side of the delivery ledger.
type DeliveryReader interface {
	LatestSuccess(ctx context.Context, webhookID, code string) (*models.Delivery, error)
	LatestByPackage(ctx context.Context, packageID string) (map[string]*models.Delivery, error)
}

// packageRef is the part of a stored payload that identifies a package.
type packageRef struct {
	PackageID string `json:"package_id"`
	ID        string `json:"id"`
	Version   *int   `json:"version"`
}

// packageID prefers "id" when a payload carries both keys.
func (r packageRef) packageID() string {
	if r.ID != "" {
		return r.ID
	}
	return r.PackageID
}

func decodePackageRef(payload []byte) (packageRef, error) {
	var ref packageRef
	err := json.Unmarshal(payload, &ref)
	return ref, err
}

func packageIDOf(payload []byte) string {
	ref, err := decodePackageRef(payload)
	if err != nil {
		return ""
	}
	return ref.packageID()
}

// Analyzer answers questions derived from the delivery ledger.
type Analyzer struct {
	registry Registry
	ledger   DeliveryReader
}

func NewAnalyzer(registry Registry, ledger DeliveryReader) *Analyzer {
	return &Analyzer{registry: registry, ledger: ledger}
}

// InUsePackageIDs returns the package ids referenced by the latest successful
// activation delivery of every webhook subscribed to code, sorted.
func (a *Analyzer) InUsePackageIDs(ctx context.Context, code string) ([]string, error) {
	matched, err := a.registry.GetByEvent(ctx, models.EventOntologyActivated, code)
	if err != nil {
		return nil, fmt.Errorf("resolve webhooks: %w", err)
	}

	seen := make(map[string]struct{})
	for _, w := range matched {
		latest, err := a.ledger.LatestSuccess(ctx, w.ID, code)
		if errors.Is(err, repositories.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("latest delivery for %s: %w", w.ID, err)
		}

		ref, err := decodePackageRef([]byte(latest.Payload))
		if err != nil {
			log.Warn().Err(err).Str("delivery_id", latest.ID).Msg("Skipping undecodable delivery payload")
			continue
		}
		if id := ref.packageID(); id != "" {
			seen[id] = struct{}{}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// SubscriptionState is the latest confirmed version one webhook holds for a series.
type SubscriptionState struct {
	WebhookID            string     `json:"webhook_id"`
	WebhookName          string     `json:"webhook_name"`
	TargetURL            string     `json:"target_url"`
	LatestSuccessVersion *int       `json:"latest_success_version"`
	LatestPackageID      string     `json:"latest_package_id,omitempty"`
	DeliveredAt          *time.Time `json:"delivered_at"`
	IsGlobal             bool       `json:"is_global"`
}

func (a *Analyzer) SubscriptionStatus(ctx context.Context, code string) ([]SubscriptionState, error) {
	matched, err := a.registry.GetByEvent(ctx, models.EventOntologyActivated, code)
	if err != nil {
		return nil, fmt.Errorf("resolve webhooks: %w", err)
	}

	states := make([]SubscriptionState, 0, len(matched))
	for _, w := range matched {
		state := SubscriptionState{
			WebhookID:   w.ID,
			WebhookName: w.Name,
			TargetURL:   w.TargetURL,
			IsGlobal:    w.IsGlobal(),
		}

		latest, err := a.ledger.LatestSuccess(ctx, w.ID, code)
		switch {
		case errors.Is(err, repositories.ErrNotFound):
		case err != nil:
			return nil, fmt.Errorf("latest delivery for %s: %w", w.ID, err)
		default:
			delivered := latest.CreatedAt
			state.DeliveredAt = &delivered
			if ref, err := decodePackageRef([]byte(latest.Payload)); err == nil {
				state.LatestSuccessVersion = ref.Version
				state.LatestPackageID = ref.packageID()
			}
		}
		states = append(states, state)
	}
	return states, nil
}

// PackageDeliveryState is the delivery outcome of one package for one webhook.
type PackageDeliveryState struct {
	WebhookID      string                `json:"webhook_id"`
	WebhookName    string                `json:"webhook_name"`
	TargetURL      string                `json:"target_url"`
	Status         models.DeliveryStatus `json:"status"`
	ResponseStatus *int                  `json:"response_status"`
	ErrorMessage   *string               `json:"error_message"`
	DeliveredAt    *time.Time            `json:"delivered_at"`
}

// PackageDeliveryStatus reports, for every webhook subscribed to the package's
// series, the latest delivery of that package or PENDING when none exists.
func (a *Analyzer) PackageDeliveryStatus(ctx context.Context, pkg *models.Package) ([]PackageDeliveryState, error) {
	matched, err := a.registry.GetByEvent(ctx, models.EventOntologyActivated, pkg.Code)
	if err != nil {
		return nil, fmt.Errorf("resolve webhooks: %w", err)
	}
	latest, err := a.ledger.LatestByPackage(ctx, pkg.ID)
	if err != nil {
		return nil, fmt.Errorf("deliveries for package: %w", err)
	}

	states := make([]PackageDeliveryState, 0, len(matched))
	for _, w := range matched {
		state := PackageDeliveryState{
			WebhookID:   w.ID,
			WebhookName: w.Name,
			TargetURL:   w.TargetURL,
			Status:      models.DeliveryPending,
		}
		if d, ok := latest[w.ID]; ok {
			delivered := d.CreatedAt
			state.Status = d.Status
			state.ResponseStatus = d.ResponseStatus
			state.ErrorMessage = d.ErrorMessage
			state.DeliveredAt = &delivered
		}
		states = append(states, state)
	}
	return states, nil
}
