// Package fanout pushes service request changes to the observers that need
// them: per-request topics for the patient and the assigned doctor, and
// per-geohash-cell topics for doctors watching pending requests nearby.
package fanout

import (
	"time"

	"github.com/dmehra2102/prod-golang-projects/medlink/internal/domain/servicerequest"
	"github.com/dmehra2102/prod-golang-projects/medlink/internal/geo"
	"github.com/google/uuid"
)

type EventType string

const (
	EventPendingAdd     EventType = "pending.add"
	EventPendingUpdate  EventType = "pending.update"
	EventPendingRemove  EventType = "pending.remove"
	EventRequestStatus  EventType = "request.status"
	EventDoctorLocation EventType = "doctor.location"
)

// Event is what a subscriber receives. Deliveries are at-least-once; the same
// Version may arrive more than once but never after a higher one.
type Event struct {
	Type           EventType                      `json:"type"`
	RequestID      uuid.UUID                      `json:"request_id"`
	Version        int64                          `json:"version,omitempty"`
	Status         servicerequest.Status          `json:"status,omitempty"`
	Request        *servicerequest.ServiceRequest `json:"request,omitempty"`
	DoctorLocation *geo.Point                     `json:"doctor_location,omitempty"`
	Timestamp      time.Time                      `json:"timestamp"`
}

// Change is what publishers hand to the hub. Exactly one of Request or
// DoctorLocation is set.
type Change struct {
	RequestID      uuid.UUID
	Request        *servicerequest.ServiceRequest
	DoctorLocation *geo.Point
	At             time.Time
}

func RequestTopic(id uuid.UUID) string {
	return "request/" + id.String()
}

func CellTopic(cell string) string {
	return "cell/" + cell
}

// CellOf returns the fan-out cell of a request.
func CellOf(r *servicerequest.ServiceRequest) string {
	if len(r.Geohash) >= int(geo.CellPrecision) {
		return r.Geohash[:geo.CellPrecision]
	}
	return geo.Encode(geo.Point{Latitude: r.Location.Latitude, Longitude: r.Location.Longitude}, geo.CellPrecision)
}

// CloseReason explains why a subscription's channel was closed.
type CloseReason string

const (
	ReasonNone        CloseReason = ""
	ReasonClosed      CloseReason = "closed"
	ReasonTerminal    CloseReason = "terminal"
	ReasonOverflow    CloseReason = "overflow"
	ReasonUnavailable CloseReason = "doctor_unavailable"
)
