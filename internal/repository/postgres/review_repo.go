package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medlink/internal/domain/review"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ReviewRepository struct {
	db *gorm.DB
}

func NewReviewRepository(db *gorm.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// Create relies on the unique index on request_id; the connection must be
// opened with TranslateError so duplicates surface as gorm.ErrDuplicatedKey.
func (r *ReviewRepository) Create(ctx context.Context, rv *review.Review) error {
	if rv.ID == uuid.Nil {
		rv.ID = uuid.New()
	}
	if rv.CreatedAt.IsZero() {
		rv.CreatedAt = time.Now().UTC()
	}
	err := r.db.WithContext(ctx).Create(rv).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return review.ErrDuplicateReview
	}
	return classify("creating review", err)
}

func (r *ReviewRepository) GetByRequestID(ctx context.Context, requestID uuid.UUID) (*review.Review, error) {
	var rv review.Review
	err := r.db.WithContext(ctx).First(&rv, "request_id = ?", requestID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, review.ErrReviewNotFound
	}
	if err != nil {
		return nil, classify("getting review", err)
	}
	return &rv, nil
}
