package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medlink/internal/domain/review"
	"github.com/google/uuid"
)

type ReviewRepository struct {
	mu        sync.RWMutex
	byRequest map[uuid.UUID]*review.Review
}

func NewReviewRepository() *ReviewRepository {
	return &ReviewRepository{byRequest: make(map[uuid.UUID]*review.Review)}
}

func (r *ReviewRepository) Create(_ context.Context, rv *review.Review) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byRequest[rv.RequestID]; exists {
		return review.ErrDuplicateReview
	}
	if rv.ID == uuid.Nil {
		rv.ID = uuid.New()
	}
	if rv.CreatedAt.IsZero() {
		rv.CreatedAt = time.Now().UTC()
	}
	stored := *rv
	r.byRequest[rv.RequestID] = &stored
	return nil
}

func (r *ReviewRepository) GetByRequestID(_ context.Context, requestID uuid.UUID) (*review.Review, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rv, ok := r.byRequest[requestID]
	if !ok {
		return nil, review.ErrReviewNotFound
	}
	out := *rv
	return &out, nil
}
