package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medlink/internal/domain/presence"
	"github.com/google/uuid"
)

const presenceShards = 32

type presenceShard struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*presence.Presence
}

// PresenceRepository partitions records by doctor so writers for different
// doctors never contend on the same lock.
type PresenceRepository struct {
	shards [presenceShards]*presenceShard
}

func NewPresenceRepository() *PresenceRepository {
	r := &PresenceRepository{}
	for i := range r.shards {
		r.shards[i] = &presenceShard{records: make(map[uuid.UUID]*presence.Presence)}
	}
	return r
}

func (r *PresenceRepository) shard(id uuid.UUID) *presenceShard {
	return r.shards[int(id[len(id)-1])%presenceShards]
}

func (r *PresenceRepository) Get(_ context.Context, doctorID uuid.UUID) (*presence.Presence, error) {
	s := r.shard(doctorID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.records[doctorID]
	if !ok {
		return nil, presence.ErrPresenceNotFound
	}
	return p.Clone(), nil
}

func (r *PresenceRepository) Upsert(_ context.Context, p *presence.Presence) (*presence.Presence, error) {
	s := r.shard(p.DoctorID)
	s.mu.Lock()
	defer s.mu.Unlock()

	next := p.Clone()
	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = time.Now().UTC()
	}
	next.Version = 1
	cur, ok := s.records[p.DoctorID]
	if ok {
		next.Version = cur.Version + 1
	}
	if ok && cur.Status == presence.StatusInService {
		next.Status = cur.Status
		next.ActiveRequestID = cur.ActiveRequestID
	} else {
		next.ActiveRequestID = nil
	}
	s.records[p.DoctorID] = next
	return next.Clone(), nil
}

func (r *PresenceRepository) CompareAndSetStatus(
	_ context.Context,
	doctorID uuid.UUID,
	expected, next presence.Status,
	activeRequestID *uuid.UUID,
) (*presence.Presence, error) {
	s := r.shard(doctorID)
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.records[doctorID]
	if !ok {
		return nil, presence.ErrPresenceNotFound
	}
	if p.Status != expected {
		return nil, presence.ErrPresenceConflict
	}
	updated := p.Clone()
	updated.Status = next
	updated.UpdatedAt = time.Now().UTC()
	updated.Version = p.Version + 1
	updated.ActiveRequestID = nil
	if activeRequestID != nil {
		id := *activeRequestID
		updated.ActiveRequestID = &id
	}
	s.records[doctorID] = updated
	return updated.Clone(), nil
}

func (r *PresenceRepository) List(_ context.Context) ([]*presence.Presence, error) {
	out := make([]*presence.Presence, 0)
	for _, s := range r.shards {
		s.mu.RLock()
		for _, p := range s.records {
			out = append(out, p.Clone())
		}
		s.mu.RUnlock()
	}
	return out, nil
}
