// Package events emits dispatch domain events to a broker for downstream
// consumers such as the push and SMS notifier.
package events

import (
	"context"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medlink/internal/domain/servicerequest"
	"github.com/google/uuid"
)

type Type string

const (
	TypeRequestCreated   Type = "service_request.created"
	TypeRequestAssigned  Type = "service_request.assigned"
	TypeRequestAdvanced  Type = "service_request.status_changed"
	TypeRequestCancelled Type = "service_request.cancelled"
	TypeReviewSubmitted  Type = "review.submitted"
)

type Event struct {
	ID         uuid.UUID             `json:"id"`
	Type       Type                  `json:"type"`
	RequestID  uuid.UUID             `json:"request_id"`
	PatientID  uuid.UUID             `json:"patient_id"`
	DoctorID   *uuid.UUID            `json:"doctor_id,omitempty"`
	Status     servicerequest.Status `json:"status"`
	Version    int64                 `json:"version"`
	Rating     int                   `json:"rating,omitempty"`
	OccurredAt time.Time             `json:"occurred_at"`
}

// FromRequest builds an event describing r's current state.
func FromRequest(t Type, r *servicerequest.ServiceRequest) Event {
	return Event{
		ID:         uuid.New(),
		Type:       t,
		RequestID:  r.ID,
		PatientID:  r.PatientID,
		DoctorID:   r.DoctorID,
		Status:     r.Status,
		Version:    r.Version,
		OccurredAt: time.Now().UTC(),
	}
}

type Sink interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// NopSink discards events. Used when EVENTS_ENABLED is false.
type NopSink struct{}

func (NopSink) Publish(context.Context, Event) error { return nil }
func (NopSink) Close() error                         { return nil }
