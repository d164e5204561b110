package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medlink/internal/domain/servicerequest"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxPageSize = 100

type RequestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

func (r *RequestRepository) Create(ctx context.Context, req *servicerequest.ServiceRequest) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	// timestamptz keeps microseconds; a cursor built from the value returned
	// here must match the stored one.
	now := time.Now().UTC().Truncate(time.Microsecond)
	req.CreatedAt = now
	req.UpdatedAt = now
	req.Status = servicerequest.StatusPending
	req.DoctorID = nil
	req.Version = 1

	return classify("creating service request", r.db.WithContext(ctx).Create(req).Error)
}

func (r *RequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*servicerequest.ServiceRequest, error) {
	var req servicerequest.ServiceRequest
	err := r.db.WithContext(ctx).First(&req, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, servicerequest.ErrRequestNotFound
	}
	if err != nil {
		return nil, classify("getting service request", err)
	}
	return &req, nil
}

func (r *RequestRepository) List(ctx context.Context, q *servicerequest.ListQuery) ([]*servicerequest.ServiceRequest, error) {
	pageSize := q.PageSize
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	db := r.db.WithContext(ctx).Model(&servicerequest.ServiceRequest{})
	if q.Status != nil {
		db = db.Where("status = ?", *q.Status)
	}
	if q.PatientID != nil {
		db = db.Where("patient_id = ?", *q.PatientID)
	}
	if q.DoctorID != nil {
		db = db.Where("doctor_id = ?", *q.DoctorID)
	}
	if len(q.GeohashPrefixes) > 0 {
		db = db.Where("LEFT(geohash, ?) IN ?", len(q.GeohashPrefixes[0]), q.GeohashPrefixes)
	}
	if q.After != nil {
		db = db.Where("(created_at, id) < (?, ?)", q.After.CreatedAt, q.After.ID)
	}

	var out []*servicerequest.ServiceRequest
	if err := db.Order("created_at DESC").Order("id DESC").Limit(pageSize).Find(&out).Error; err != nil {
		return nil, classify("listing service requests", err)
	}
	return out, nil
}

// ApplyTransition locks the row, checks the expected status and issues an
// UPDATE guarded by the same status, so a racing writer can never slip in
// between the check and the write.
func (r *RequestRepository) ApplyTransition(
	ctx context.Context,
	id uuid.UUID,
	expected servicerequest.Status,
	mutate servicerequest.Mutation,
) (*servicerequest.ServiceRequest, error) {
	var out *servicerequest.ServiceRequest

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current servicerequest.ServiceRequest
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&current, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return servicerequest.ErrRequestNotFound
		}
		if err != nil {
			return classify("locking service request", err)
		}
		if current.Status != expected {
			return servicerequest.ErrConflict
		}

		next := current.Clone()
		if err := mutate(next); err != nil {
			return err
		}
		if err := servicerequest.CheckMutation(&current, next); err != nil {
			return err
		}
		next.Version = current.Version + 1
		next.UpdatedAt = time.Now().UTC()

		res := tx.Model(&servicerequest.ServiceRequest{}).
			Where("id = ? AND status = ?", id, expected).
			Updates(map[string]any{
				"status":       next.Status,
				"doctor_id":    next.DoctorID,
				"accepted_at":  next.AcceptedAt,
				"started_at":   next.StartedAt,
				"completed_at": next.CompletedAt,
				"cancelled_at": next.CancelledAt,
				"version":      next.Version,
				"updated_at":   next.UpdatedAt,
			})
		if res.Error != nil {
			return classify("updating service request", res.Error)
		}
		if res.RowsAffected == 0 {
			return servicerequest.ErrConflict
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
