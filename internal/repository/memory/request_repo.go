// Package memory holds in-process repository implementations used for
// single-node deployments and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medlink/internal/domain/servicerequest"
	"github.com/google/uuid"
)

const maxPageSize = 100

type RequestRepository struct {
	mu          sync.RWMutex
	records     map[uuid.UUID]*servicerequest.ServiceRequest
	lastCreated time.Time
	now         func() time.Time
}

func NewRequestRepository() *RequestRepository {
	return &RequestRepository{
		records: make(map[uuid.UUID]*servicerequest.ServiceRequest),
		now:     time.Now,
	}
}

// Create stamps CreatedAt itself. Stamps strictly increase so insertion
// order and newest-first order agree.
func (r *RequestRepository) Create(_ context.Context, req *servicerequest.ServiceRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	if _, exists := r.records[req.ID]; exists {
		return fmt.Errorf("service request %s already exists", req.ID)
	}
	now := r.now().UTC()
	if !now.After(r.lastCreated) {
		now = r.lastCreated.Add(time.Nanosecond)
	}
	r.lastCreated = now

	req.CreatedAt = now
	req.UpdatedAt = now
	req.Status = servicerequest.StatusPending
	req.DoctorID = nil
	req.Version = 1

	r.records[req.ID] = req.Clone()
	return nil
}

func (r *RequestRepository) GetByID(_ context.Context, id uuid.UUID) (*servicerequest.ServiceRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, servicerequest.ErrRequestNotFound
	}
	return rec.Clone(), nil
}

func (r *RequestRepository) List(_ context.Context, q *servicerequest.ListQuery) ([]*servicerequest.ServiceRequest, error) {
	pageSize := q.PageSize
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	r.mu.RLock()
	matched := make([]*servicerequest.ServiceRequest, 0)
	for _, rec := range r.records {
		if matches(rec, q) {
			matched = append(matched, rec.Clone())
		}
	}
	r.mu.RUnlock()

	// created_at DESC, id DESC, as the SQL repository orders.
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID.String() > b.ID.String()
	})
	if len(matched) > pageSize {
		matched = matched[:pageSize]
	}
	return matched, nil
}

func (r *RequestRepository) ApplyTransition(
	_ context.Context,
	id uuid.UUID,
	expected servicerequest.Status,
	mutate servicerequest.Mutation,
) (*servicerequest.ServiceRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, servicerequest.ErrRequestNotFound
	}
	if rec.Status != expected {
		return nil, servicerequest.ErrConflict
	}

	next := rec.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	if err := servicerequest.CheckMutation(rec, next); err != nil {
		return nil, err
	}
	next.Version = rec.Version + 1
	next.UpdatedAt = r.now().UTC()

	r.records[id] = next
	return next.Clone(), nil
}

func matches(req *servicerequest.ServiceRequest, q *servicerequest.ListQuery) bool {
	if q.Status != nil && req.Status != *q.Status {
		return false
	}
	if q.PatientID != nil && req.PatientID != *q.PatientID {
		return false
	}
	if q.DoctorID != nil && !req.IsAssignedTo(*q.DoctorID) {
		return false
	}
	if q.After != nil && !q.After.Precedes(req) {
		return false
	}
	if len(q.GeohashPrefixes) > 0 {
		for _, prefix := range q.GeohashPrefixes {
			if strings.HasPrefix(req.Geohash, prefix) {
				return true
			}
		}
		return false
	}
	return true
}
