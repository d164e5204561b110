package fanout

import (
	"sync"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medlink/internal/domain/servicerequest"
	"github.com/dmehra2102/prod-golang-projects/medlink/internal/geo"
	"github.com/google/uuid"
)

// Feed is a doctor's live view of pending requests within a radius. It emits
// pending.add when a request enters the view, pending.update when a visible
// request changes while still pending, and pending.remove when a visible
// request leaves pending or the radius.
type Feed struct {
	stream

	DoctorID uuid.UUID
	radiusKm float64
	center   geo.Point
	visible  map[uuid.UUID]geo.Point

	hub     *Hub
	onClose func(*Feed)
	release sync.Once
}

func (f *Feed) deliver(c Change) {
	if c.Request == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applyLocked(c.Request, c.At)
}

// Seed applies a snapshot. Records older than what the feed already saw are
// discarded, so a snapshot read before a live change cannot resurrect it.
func (f *Feed) Seed(reqs []*servicerequest.ServiceRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now().UTC()
	for _, r := range reqs {
		f.applyLocked(r, now)
	}
}

func (f *Feed) applyLocked(r *servicerequest.ServiceRequest, at time.Time) {
	if f.closed || !f.admitLocked(r.ID, r.Version) {
		return
	}
	loc := geo.Point{Latitude: r.Location.Latitude, Longitude: r.Location.Longitude}
	inView := r.Status == servicerequest.StatusPending && geo.Within(f.center, loc, f.radiusKm)
	_, shown := f.visible[r.ID]

	switch {
	case inView && !shown:
		f.visible[r.ID] = loc
		f.emitLocked(pendingEvent(EventPendingAdd, r, at))
	case inView && shown:
		f.emitLocked(pendingEvent(EventPendingUpdate, r, at))
	case !inView && shown:
		delete(f.visible, r.ID)
		f.emitLocked(pendingEvent(EventPendingRemove, r, at))
	}
}

// Move re-centers the feed. Visible requests now out of range are removed;
// the caller seeds newly in-range requests from a fresh snapshot.
func (f *Feed) Move(center geo.Point) {
	f.hub.Retarget(f, cellTopics(center, f.radiusKm))

	f.mu.Lock()
	defer f.mu.Unlock()

	f.center = center
	now := time.Now().UTC()
	for id, loc := range f.visible {
		if !geo.Within(center, loc, f.radiusKm) {
			delete(f.visible, id)
			f.emitLocked(Event{
				Type:      EventPendingRemove,
				RequestID: id,
				Version:   f.versions[id],
				Status:    servicerequest.StatusPending,
				Timestamp: now,
			})
		}
	}
}

func (f *Feed) Center() geo.Point {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.center
}

func (f *Feed) RadiusKm() float64 {
	return f.radiusKm
}

// Visible returns the IDs currently shown to the doctor.
func (f *Feed) Visible() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]uuid.UUID, 0, len(f.visible))
	for id := range f.visible {
		out = append(out, id)
	}
	return out
}

func (f *Feed) Close() {
	f.closeWith(ReasonClosed)
}

func (f *Feed) closeWith(reason CloseReason) {
	f.hub.Unregister(f)

	f.mu.Lock()
	f.closeLocked(reason)
	f.mu.Unlock()

	f.release.Do(func() {
		if f.onClose != nil {
			f.onClose(f)
		}
	})
}

func pendingEvent(t EventType, r *servicerequest.ServiceRequest, at time.Time) Event {
	e := Event{
		Type:      t,
		RequestID: r.ID,
		Version:   r.Version,
		Status:    r.Status,
		Timestamp: at,
	}
	if t != EventPendingRemove {
		e.Request = r.Clone()
	}
	return e
}

func cellTopics(center geo.Point, radiusKm float64) []string {
	cells := geo.Cover(center, radiusKm, geo.CellPrecision)
	topics := make([]string, len(cells))
	for i, c := range cells {
		topics[i] = CellTopic(c)
	}
	return topics
}
