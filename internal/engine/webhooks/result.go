package webhooks

import (
	"errors"

	"ontohub/internal/platform/models"
)

var ErrWebhookNotFound = errors.New("webhook not found")

type ErrorKind string

const (
	KindInvalidURL       ErrorKind = "INVALID_URL"
	KindTransport        ErrorKind = "TRANSPORT_ERROR"
	KindNon2xx           ErrorKind = "NON_2XX_RESPONSE"
	KindDispatchRejected ErrorKind = "DISPATCH_REJECTED"
)

// Result is the terminal outcome of one delivery sequence. It is either
// Delivered or Failed.
type Result interface {
	DeliveryID() string
	isResult()
}

type Delivered struct {
	ID             string
	ResponseStatus int
	Attempts       int
}

type Failed struct {
	ID   string
	Kind ErrorKind
	// ResponseStatus is nil when no response was received.
	ResponseStatus *int
	Message        string
	Attempts       int
}

func (d Delivered) DeliveryID() string { return d.ID }
func (f Failed) DeliveryID() string    { return f.ID }

func (Delivered) isResult() {}
func (Failed) isResult()    {}

// Summary is the JSON view of a Result returned by the API.
type Summary struct {
	DeliveryID     string                `json:"delivery_id"`
	Status         models.DeliveryStatus `json:"status"`
	ResponseStatus *int                  `json:"response_status"`
	ErrorMessage   *string               `json:"error_message"`
	ErrorKind      ErrorKind             `json:"error_kind,omitempty"`
	Attempts       int                   `json:"attempts"`
}

func Summarize(r Result) Summary {
	switch r := r.(type) {
	case Delivered:
		status := r.ResponseStatus
		return Summary{
			DeliveryID:     r.ID,
			Status:         models.DeliverySuccess,
			ResponseStatus: &status,
			Attempts:       r.Attempts,
		}
	case Failed:
		msg := r.Message
		return Summary{
			DeliveryID:     r.ID,
			Status:         models.DeliveryFailure,
			ResponseStatus: r.ResponseStatus,
			ErrorMessage:   &msg,
			ErrorKind:      r.Kind,
			Attempts:       r.Attempts,
		}
	}
	return Summary{}
}
