package fanout

import (
	"sync"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medlink/internal/domain/servicerequest"
	"github.com/google/uuid"
)

// RequestStream follows one request for its patient or assigned doctor. It
// closes itself after delivering a terminal status.
type RequestStream struct {
	stream

	RequestID uuid.UUID

	hub     *Hub
	onClose func(*RequestStream)
	release sync.Once
}

func (s *RequestStream) deliver(c Change) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case c.Request != nil:
		s.applyLocked(c.Request, c.At)
	case c.DoctorLocation != nil:
		if s.closed {
			return
		}
		loc := *c.DoctorLocation
		s.emitLocked(Event{
			Type:           EventDoctorLocation,
			RequestID:      s.RequestID,
			DoctorLocation: &loc,
			Timestamp:      c.At,
		})
	}
}

// Seed delivers the current state on subscribe.
func (s *RequestStream) Seed(r *servicerequest.ServiceRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLocked(r, time.Now().UTC())
}

func (s *RequestStream) applyLocked(r *servicerequest.ServiceRequest, at time.Time) {
	if s.closed || r.ID != s.RequestID || !s.admitLocked(r.ID, r.Version) {
		return
	}
	ok := s.emitLocked(Event{
		Type:      EventRequestStatus,
		RequestID: r.ID,
		Version:   r.Version,
		Status:    r.Status,
		Request:   r.Clone(),
		Timestamp: at,
	})
	if ok && r.Status.IsTerminal() {
		s.closeLocked(ReasonTerminal)
	}
}

func (s *RequestStream) Close() {
	s.hub.Unregister(s)

	s.mu.Lock()
	s.closeLocked(ReasonClosed)
	s.mu.Unlock()

	s.release.Do(func() {
		if s.onClose != nil {
			s.onClose(s)
		}
	})
}
