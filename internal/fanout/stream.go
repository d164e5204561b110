package fanout

import (
	"sync"

	"github.com/google/uuid"
)

// stream is the buffered, version-filtered channel shared by feeds and
// request streams. All fields are guarded by mu.
type stream struct {
	mu       sync.Mutex
	ch       chan Event
	closed   bool
	reason   CloseReason
	versions map[uuid.UUID]int64

	onOverflow func()
}

func (s *stream) init(buffer int) {
	if buffer <= 0 {
		buffer = 1
	}
	s.ch = make(chan Event, buffer)
	s.versions = make(map[uuid.UUID]int64)
}

// admitLocked reports whether version is not older than what this stream has
// already seen for the request, and records it.
func (s *stream) admitLocked(id uuid.UUID, version int64) bool {
	if last, ok := s.versions[id]; ok && version < last {
		return false
	}
	s.versions[id] = version
	return true
}

// emitLocked sends without blocking. A full buffer closes the stream: the
// observer re-subscribes and gets a fresh snapshot instead of a silent gap.
func (s *stream) emitLocked(e Event) bool {
	if s.closed {
		return false
	}
	select {
	case s.ch <- e:
		return true
	default:
		s.closeLocked(ReasonOverflow)
		if s.onOverflow != nil {
			s.onOverflow()
		}
		return false
	}
}

func (s *stream) closeLocked(reason CloseReason) {
	if s.closed {
		return
	}
	s.closed = true
	s.reason = reason
	close(s.ch)
}

func (s *stream) Events() <-chan Event {
	return s.ch
}

// Reason is ReasonNone until the channel is closed.
func (s *stream) Reason() CloseReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}
