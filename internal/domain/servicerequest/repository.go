package servicerequest

import (
	"context"

	"github.com/google/uuid"
)

// Mutation edits a copy of the record inside ApplyTransition. Returning an
// error aborts the write.
type Mutation func(r *ServiceRequest) error

type Repository interface {
	// Create assigns ID, CreatedAt and Version and persists the request as
	// pending. A caller-supplied CreatedAt is overwritten.
	Create(ctx context.Context, r *ServiceRequest) error

	// GetByID returns ErrRequestNotFound if the request does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*ServiceRequest, error)

	// List returns requests newest first, bounded by q.PageSize and starting
	// past q.After when set.
	List(ctx context.Context, q *ListQuery) ([]*ServiceRequest, error)

	// ApplyTransition is an atomic compare-and-set on Status. The mutation is
	// applied only if the current status equals expected, otherwise ErrConflict
	// is returned and nothing is written.
	ApplyTransition(ctx context.Context, id uuid.UUID, expected Status, mutate Mutation) (*ServiceRequest, error)
}
