package models

import "time"

type DeliveryStatus string

const (
	DeliverySuccess DeliveryStatus = "SUCCESS"
	DeliveryFailure DeliveryStatus = "FAILURE"
	// DeliveryPending is never stored; it is reported for webhooks with no row yet.
	DeliveryPending DeliveryStatus = "PENDING"
)

// Delivery is one immutable ledger row: the terminal outcome of notifying a
// single webhook about a single event.
type Delivery struct {
	ID             string         `json:"id"`
	WebhookID      string         `json:"webhook_id"`
	WebhookName    string         `json:"webhook_name,omitempty"`
	EventType      string         `json:"event_type"`
	OntologyCode   string         `json:"ontology_code"`
	PackageID      string         `json:"package_id,omitempty"`
	Payload        string         `json:"payload"`
	Status         DeliveryStatus `json:"status"`
	ResponseStatus *int           `json:"response_status"`
	ErrorMessage   *string        `json:"error_message"`
	CreatedAt      time.Time      `json:"created_at"`
}

type DeliveryFilter struct {
	OntologyCode string
	Status       DeliveryStatus
	Limit        int
	Offset       int
}
