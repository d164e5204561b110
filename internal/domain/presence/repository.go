package presence

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Get returns ErrPresenceNotFound if the doctor never reported presence.
	Get(ctx context.Context, doctorID uuid.UUID) (*Presence, error)

	// Upsert writes the doctor's reported status and position. A doctor in
	// service keeps StatusInService and ActiveRequestID; only the position
	// changes. Returns the stored record.
	Upsert(ctx context.Context, p *Presence) (*Presence, error)

	// CompareAndSetStatus changes Status from expected to next and sets
	// ActiveRequestID. Returns ErrPresenceConflict if the current status differs.
	CompareAndSetStatus(ctx context.Context, doctorID uuid.UUID, expected, next Status, activeRequestID *uuid.UUID) (*Presence, error)

	// List returns every presence record; used to warm the geospatial index.
	List(ctx context.Context) ([]*Presence, error)
}
