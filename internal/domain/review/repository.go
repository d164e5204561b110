package review

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create returns ErrDuplicateReview if the request already has a review.
	Create(ctx context.Context, r *Review) error

	// GetByRequestID returns ErrReviewNotFound if no review exists.
	GetByRequestID(ctx context.Context, requestID uuid.UUID) (*Review, error)
}
