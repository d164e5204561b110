package servicerequest

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// IsValid reports whether u is a known urgency. Urgency is display only and
// never affects matching or ordering.
func (u Urgency) IsValid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh:
		return true
	}
	return false
}

// State transitions possibilities:
//
//	pending → assigned → in-progress → completed
//	pending → cancelled
//
// "accepted" and "in-service" both name the assigned, doctor-en-route state
// and are normalised to StatusAssigned by ParseStatus.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// ParseStatus accepts the canonical names plus the legacy aliases.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "pending":
		return StatusPending, nil
	case "assigned", "accepted", "in-service":
		return StatusAssigned, nil
	case "in-progress", "in_progress":
		return StatusInProgress, nil
	case "completed":
		return StatusCompleted, nil
	case "cancelled":
		return StatusCancelled, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Rank orders statuses along the lifecycle. Observers never see a rank decrease.
func (s Status) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusAssigned:
		return 1
	case StatusInProgress:
		return 2
	case StatusCompleted, StatusCancelled:
		return 3
	}
	return -1
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// HasDoctor reports whether a request in status s must carry a doctor.
func (s Status) HasDoctor() bool {
	switch s {
	case StatusAssigned, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

var allowedTransitions = map[Status][]Status{
	StatusPending:    {StatusAssigned, StatusCancelled},
	StatusAssigned:   {StatusInProgress},
	StatusInProgress: {StatusCompleted},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

type Location struct {
	Latitude  float64 `gorm:"column:latitude;not null" json:"latitude"`
	Longitude float64 `gorm:"column:longitude;not null" json:"longitude"`
	Address   string  `gorm:"column:address;type:text" json:"address"`
}

type ServiceRequest struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"column:created_at;not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updated_at"`

	PatientID   uuid.UUID `gorm:"column:patient_id;type:uuid;not null;index" json:"patient_id"`
	PatientName string    `gorm:"column:patient_name;type:varchar(200)" json:"patient_name,omitempty"`

	Symptoms string   `gorm:"column:symptoms;type:text;not null" json:"symptoms"`
	Urgency  Urgency  `gorm:"column:urgency;type:varchar(10);not null" json:"urgency"`
	Location Location `gorm:"embedded" json:"location"`
	Geohash  string   `gorm:"column:geohash;type:varchar(12);not null;index" json:"geohash"`

	Status   Status     `gorm:"column:status;type:varchar(20);not null;default:'pending';index" json:"status"`
	DoctorID *uuid.UUID `gorm:"column:doctor_id;type:uuid;index" json:"doctor_id,omitempty"`

	AcceptedAt  *time.Time `gorm:"column:accepted_at" json:"accepted_at,omitempty"`
	StartedAt   *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CancelledAt *time.Time `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`

	// Version increases by one on every applied transition.
	Version int64 `gorm:"column:version;not null;default:1" json:"version"`
}

func (ServiceRequest) TableName() string {
	return "dispatch.service_requests"
}

func (r *ServiceRequest) CanTransitionTo(newStatus Status) bool {
	for _, s := range allowedTransitions[r.Status] {
		if s == newStatus {
			return true
		}
	}
	return false
}

// IsAssignedTo reports whether doctorID is the doctor attached to the request.
func (r *ServiceRequest) IsAssignedTo(doctorID uuid.UUID) bool {
	return r.DoctorID != nil && *r.DoctorID == doctorID
}

func (r *ServiceRequest) Assign(doctorID uuid.UUID, at time.Time) error {
	if !r.CanTransitionTo(StatusAssigned) {
		return ErrInvalidTransition
	}
	if r.DoctorID != nil {
		return ErrInvalidTransition
	}
	r.Status = StatusAssigned
	r.DoctorID = &doctorID
	r.AcceptedAt = &at
	return nil
}

func (r *ServiceRequest) Start(at time.Time) error {
	if !r.CanTransitionTo(StatusInProgress) {
		return ErrInvalidTransition
	}
	r.Status = StatusInProgress
	r.StartedAt = &at
	return nil
}

func (r *ServiceRequest) Complete(at time.Time) error {
	if !r.CanTransitionTo(StatusCompleted) {
		return ErrInvalidTransition
	}
	r.Status = StatusCompleted
	r.CompletedAt = &at
	return nil
}

func (r *ServiceRequest) Cancel(at time.Time) error {
	if !r.CanTransitionTo(StatusCancelled) {
		return ErrInvalidTransition
	}
	r.Status = StatusCancelled
	r.CancelledAt = &at
	return nil
}

// Advance moves the request to target, setting the matching timestamp.
func (r *ServiceRequest) Advance(target Status, at time.Time) error {
	switch target {
	case StatusInProgress:
		return r.Start(at)
	case StatusCompleted:
		return r.Complete(at)
	}
	return ErrInvalidTransition
}

// Validate checks the doctor invariant: DoctorID is set iff the status requires one.
func (r *ServiceRequest) Validate() error {
	if r.Status.HasDoctor() != (r.DoctorID != nil) {
		return fmt.Errorf("%w: doctor assignment does not match status %s", ErrInvalidTransition, r.Status)
	}
	return nil
}

// CheckMutation rejects edits that touch identity, ownership, location or an
// already-attached doctor, then checks the doctor invariant on next.
func CheckMutation(prev, next *ServiceRequest) error {
	if next.ID != prev.ID || next.PatientID != prev.PatientID || next.Location != prev.Location ||
		!next.CreatedAt.Equal(prev.CreatedAt) {
		return fmt.Errorf("%w: immutable field changed", ErrInvalidTransition)
	}
	if prev.DoctorID != nil && (next.DoctorID == nil || *next.DoctorID != *prev.DoctorID) {
		return fmt.Errorf("%w: doctor cannot be reassigned", ErrInvalidTransition)
	}
	return next.Validate()
}

// Clone returns a deep copy safe to hand to another goroutine.
func (r *ServiceRequest) Clone() *ServiceRequest {
	c := *r
	c.DoctorID = cloneUUID(r.DoctorID)
	c.AcceptedAt = cloneTime(r.AcceptedAt)
	c.StartedAt = cloneTime(r.StartedAt)
	c.CompletedAt = cloneTime(r.CompletedAt)
	c.CancelledAt = cloneTime(r.CancelledAt)
	return &c
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

type CreateRequestCommand struct {
	PatientID   uuid.UUID
	PatientName string
	Symptoms    string
	Urgency     Urgency
	Location    *Location
}

type AdvanceCommand struct {
	RequestID uuid.UUID
	DoctorID  uuid.UUID
	Target    Status
}

type ListQuery struct {
	Status    *Status
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID

	// GeohashPrefixes restricts results to requests whose geohash starts with
	// one of the prefixes. All prefixes must have the same length.
	GeohashPrefixes []string

	// After resumes a listing strictly past the given position.
	After *Cursor

	PageSize int
}

// Cursor is a position in the newest-first ordering of List.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

func CursorOf(r *ServiceRequest) *Cursor {
	return &Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
}

// Precedes reports whether r comes after c in newest-first order.
func (c *Cursor) Precedes(r *ServiceRequest) bool {
	if !r.CreatedAt.Equal(c.CreatedAt) {
		return r.CreatedAt.Before(c.CreatedAt)
	}
	return r.ID.String() < c.ID.String()
}
