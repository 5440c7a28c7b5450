package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"ontohub/internal/platform/models"
	"ontohub/internal/platform/repositories"
	"ontohub/internal/workers"
)

// Registry resolves webhook subscriptions.
type Registry interface {
	GetByID(ctx context.Context, id string) (*models.Webhook, error)
	GetByEvent(ctx context.Context, eventType, code string) ([]*models.Webhook, error)
}

// Submitter accepts background jobs without blocking.
type Submitter interface {
	Submit(job workers.Job) error
}

// Deliverer is the part of Engine the broadcaster drives.
type Deliverer interface {
	Deliver(ctx context.Context, req Request) Result
	Reject(ctx context.Context, req Request, cause error) Result
}

// Broadcaster fans events out to matching webhooks through a worker pool.
type Broadcaster struct {
	registry Registry
	engine   Deliverer
	pool     Submitter
	now      func() time.Time
}

func NewBroadcaster(registry Registry, engine Deliverer, pool Submitter) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		engine:   engine,
		pool:     pool,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Broadcast schedules one delivery per webhook matching eventType and code
// and returns the number of matches without waiting for delivery.
func (b *Broadcaster) Broadcast(ctx context.Context, eventType string, payload []byte, code, attachment string) int {
	matched, err := b.registry.GetByEvent(ctx, eventType, code)
	if err != nil {
		log.Error().Err(err).Str("event", eventType).Str("code", code).Msg("Failed to resolve webhooks for broadcast")
		return 0
	}

	packageID := packageIDOf(payload)
	for _, w := range matched {
		b.submit(ctx, newRequest(w, eventType, code, packageID, payload, attachment))
	}

	log.Info().Str("event", eventType).Str("code", code).Int("webhooks", len(matched)).Msg("Broadcast scheduled")
	return len(matched)
}

// BroadcastActivation announces pkg as the active version of its series,
// attaching the archive at attachment when it exists.
func (b *Broadcaster) BroadcastActivation(ctx context.Context, pkg *models.Package, attachment string) (int, error) {
	payload, err := json.Marshal(models.NewActivationPayload(pkg, b.now()))
	if err != nil {
		return 0, fmt.Errorf("encode activation payload: %w", err)
	}
	return b.Broadcast(ctx, models.EventOntologyActivated, payload, pkg.Code, attachment), nil
}

// PushOne delivers pkg to a single webhook regardless of its filter. In
// synchronous mode the terminal result is returned; otherwise the delivery is
// queued and queued is true. A rejected submission yields its Failed result.
func (b *Broadcaster) PushOne(ctx context.Context, webhookID string, pkg *models.Package, attachment string, synchronous bool) (Result, bool, error) {
	w, err := b.lookup(ctx, webhookID)
	if err != nil {
		return nil, false, err
	}

	payload, err := json.Marshal(models.NewActivationPayload(pkg, b.now()))
	if err != nil {
		return nil, false, fmt.Errorf("encode activation payload: %w", err)
	}
	req := newRequest(w, models.EventOntologyActivated, pkg.Code, pkg.ID, payload, attachment)

	if synchronous {
		return b.engine.Deliver(ctx, req), false, nil
	}
	if result := b.submit(ctx, req); result != nil {
		return result, false, nil
	}
	return nil, true, nil
}

// Ping sends a connectivity test to one webhook and waits for the result.
func (b *Broadcaster) Ping(ctx context.Context, webhookID string) (Result, error) {
	w, err := b.lookup(ctx, webhookID)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(models.NewPingPayload(w, b.now()))
	if err != nil {
		return nil, fmt.Errorf("encode ping payload: %w", err)
	}
	return b.engine.Deliver(ctx, newRequest(w, models.EventPing, models.PingOntologyCode, "", payload, "")), nil
}

func (b *Broadcaster) lookup(ctx context.Context, webhookID string) (*models.Webhook, error) {
	w, err := b.registry.GetByID(ctx, webhookID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrWebhookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load webhook: %w", err)
	}
	return w, nil
}

// submit queues req and returns nil, or the recorded rejection.
func (b *Broadcaster) submit(ctx context.Context, req Request) Result {
	err := b.pool.Submit(func(jobCtx context.Context) {
		b.engine.Deliver(jobCtx, req)
	})
	if err != nil {
		return b.engine.Reject(ctx, req, err)
	}
	return nil
}

func newRequest(w *models.Webhook, eventType, code, packageID string, payload []byte, attachment string) Request {
	return Request{
		WebhookID:      w.ID,
		TargetURL:      w.TargetURL,
		EventType:      eventType,
		OntologyCode:   code,
		PackageID:      packageID,
		Payload:        payload,
		Secret:         w.Secret(),
		AttachmentPath: attachment,
	}
}
