package models

import "time"

const (
	EventOntologyActivated = "ontology.activated"
	EventPing              = "ping"

	// PingOntologyCode is the synthetic ontology code pings are audited under.
	PingOntologyCode = "SYSTEM_PING"

	DefaultWebhookName = "Webhook"
)

type Webhook struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	TargetURL      string    `json:"target_url"`
	EventType      string    `json:"event_type"`
	OntologyFilter *string   `json:"ontology_filter"`
	SecretToken    *string   `json:"secret_token,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// WebhookSpec is the caller-supplied part of a webhook used by create and update.
type WebhookSpec struct {
	Name           string  `json:"name" validate:"max=255"`
	TargetURL      string  `json:"target_url" validate:"required,max=2048"`
	EventType      string  `json:"event_type" validate:"max=128"`
	OntologyFilter *string `json:"ontology_filter" validate:"omitempty,max=255"`
	SecretToken    *string `json:"secret_token" validate:"omitempty,max=512"`
}

// IsGlobal reports whether the webhook receives events for every ontology.
func (w *Webhook) IsGlobal() bool {
	return w.OntologyFilter == nil || *w.OntologyFilter == ""
}

// Matches reports whether an event of eventType for the ontology identified
// by code is routed to w. Filters compare by exact equality.
func (w *Webhook) Matches(eventType, code string) bool {
	if w.EventType != eventType {
		return false
	}
	return w.IsGlobal() || *w.OntologyFilter == code
}

// Secret returns the signing secret, or "" when none is configured.
func (w *Webhook) Secret() string {
	if w.SecretToken == nil {
		return ""
	}
	return *w.SecretToken
}
