package models

import "time"

type Package struct {
	ID         string    `json:"id"`
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	Version    int       `json:"version"`
	IsActive   bool      `json:"is_active"`
	SourcePath string    `json:"source_path,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ActivationPayload is the body sent to subscribers when a version is
// activated. Field order is the serialization order and therefore part of
// the signed bytes.
type ActivationPayload struct {
	Event     string `json:"event"`
	PackageID string `json:"package_id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	Version   int    `json:"version"`
	IsActive  bool   `json:"is_active"`
	Timestamp string `json:"timestamp"`
}

type PingPayload struct {
	Event     string `json:"event"`
	WebhookID string `json:"webhook_id"`
	Name      string `json:"name"`
	Timestamp string `json:"timestamp"`
}

func NewActivationPayload(pkg *Package, now time.Time) ActivationPayload {
	return ActivationPayload{
		Event:     EventOntologyActivated,
		PackageID: pkg.ID,
		Code:      pkg.Code,
		Name:      pkg.Name,
		Version:   pkg.Version,
		IsActive:  pkg.IsActive,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
}

func NewPingPayload(w *Webhook, now time.Time) PingPayload {
	return PingPayload{
		Event:     EventPing,
		WebhookID: w.ID,
		Name:      w.Name,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
}
