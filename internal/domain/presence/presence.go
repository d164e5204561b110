package presence

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusOnline    Status = "online"
	StatusOffline   Status = "offline"
	StatusInService Status = "in-service"
)

// IsReportable reports whether a doctor client may set s directly.
// In-service is only entered through request acceptance.
func (s Status) IsReportable() bool {
	return s == StatusOnline || s == StatusOffline
}

func (s Status) IsValid() bool {
	return s.IsReportable() || s == StatusInService
}

type Presence struct {
	DoctorID  uuid.UUID `gorm:"column:doctor_id;type:uuid;primaryKey" json:"doctor_id"`
	Status    Status    `gorm:"column:status;type:varchar(20);not null;index" json:"status"`
	Latitude  float64   `gorm:"column:latitude;not null" json:"latitude"`
	Longitude float64   `gorm:"column:longitude;not null" json:"longitude"`

	// Set while the doctor is in service.
	ActiveRequestID *uuid.UUID `gorm:"column:active_request_id;type:uuid" json:"active_request_id,omitempty"`

	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updated_at"`

	// Version increases by one on every write. The geospatial index applies
	// presence in version order.
	Version int64 `gorm:"column:version;not null;default:0" json:"version"`
}

func (Presence) TableName() string {
	return "dispatch.doctor_presence"
}

func (p *Presence) IsAvailable() bool {
	return p.Status == StatusOnline
}

func (p *Presence) Clone() *Presence {
	c := *p
	if p.ActiveRequestID != nil {
		id := *p.ActiveRequestID
		c.ActiveRequestID = &id
	}
	return &c
}

type UpdatePresenceCommand struct {
	DoctorID  uuid.UUID
	Status    Status
	Latitude  float64
	Longitude float64
}

func ValidCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
