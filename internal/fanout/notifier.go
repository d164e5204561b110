package fanout

import (
	"sync"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medlink/internal/domain/servicerequest"
	"github.com/dmehra2102/prod-golang-projects/medlink/internal/geo"
	"github.com/dmehra2102/prod-golang-projects/medlink/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	kindFeed    = "feed"
	kindRequest = "request"
)

// Notifier is the entry point used by services: it publishes changes to the
// right topics and opens subscriptions.
type Notifier struct {
	hub        *Hub
	bufferSize int
	metrics    *metrics.Collector
	log        *zap.Logger

	mu    sync.Mutex
	feeds map[uuid.UUID]map[*Feed]struct{}
}

func NewNotifier(hub *Hub, bufferSize int, m *metrics.Collector, log *zap.Logger) *Notifier {
	return &Notifier{
		hub:        hub,
		bufferSize: bufferSize,
		metrics:    m,
		log:        log,
		feeds:      make(map[uuid.UUID]map[*Feed]struct{}),
	}
}

// RequestChanged fans a stored request state out to its own topic and to its
// cell, so nearby feeds can add, update or remove it.
func (n *Notifier) RequestChanged(r *servicerequest.ServiceRequest) {
	c := Change{RequestID: r.ID, Request: r.Clone(), At: time.Now().UTC()}
	n.hub.Publish(c, RequestTopic(r.ID), CellTopic(CellOf(r)))
}

// DoctorMoved pushes the assigned doctor's position to the request's observers.
func (n *Notifier) DoctorMoved(requestID uuid.UUID, p geo.Point) {
	n.hub.Publish(Change{RequestID: requestID, DoctorLocation: &p, At: time.Now().UTC()}, RequestTopic(requestID))
}

// OpenFeed registers a pending feed. The caller seeds it with a snapshot
// after this returns, so no live change between the two is missed.
func (n *Notifier) OpenFeed(doctorID uuid.UUID, center geo.Point, radiusKm float64) *Feed {
	f := &Feed{
		DoctorID: doctorID,
		radiusKm: radiusKm,
		center:   center,
		visible:  make(map[uuid.UUID]geo.Point),
		hub:      n.hub,
		onClose:  n.releaseFeed,
	}
	f.init(n.bufferSize)
	f.onOverflow = func() {
		n.metrics.SubscriberOverflow.WithLabelValues(kindFeed).Inc()
		n.log.Warn("pending feed overflowed, closing", zap.String("doctor_id", doctorID.String()))
	}

	n.mu.Lock()
	if n.feeds[doctorID] == nil {
		n.feeds[doctorID] = make(map[*Feed]struct{})
	}
	n.feeds[doctorID][f] = struct{}{}
	n.mu.Unlock()

	n.hub.Subscribe(f, cellTopics(center, radiusKm)...)
	n.metrics.ActiveSubscriptions.WithLabelValues(kindFeed).Inc()
	return f
}

// OpenRequestStream registers a stream on one request. The caller seeds it
// with the current record after this returns.
func (n *Notifier) OpenRequestStream(requestID uuid.UUID) *RequestStream {
	s := &RequestStream{
		RequestID: requestID,
		hub:       n.hub,
		onClose: func(*RequestStream) {
			n.metrics.ActiveSubscriptions.WithLabelValues(kindRequest).Dec()
		},
	}
	s.init(n.bufferSize)
	s.onOverflow = func() {
		n.metrics.SubscriberOverflow.WithLabelValues(kindRequest).Inc()
		n.log.Warn("request stream overflowed, closing", zap.String("request_id", requestID.String()))
	}

	n.hub.Subscribe(s, RequestTopic(requestID))
	n.metrics.ActiveSubscriptions.WithLabelValues(kindRequest).Inc()
	return s
}

// CloseDoctorFeeds ends every pending feed of a doctor who went offline or
// into service.
func (n *Notifier) CloseDoctorFeeds(doctorID uuid.UUID) int {
	n.mu.Lock()
	feeds := make([]*Feed, 0, len(n.feeds[doctorID]))
	for f := range n.feeds[doctorID] {
		feeds = append(feeds, f)
	}
	n.mu.Unlock()

	for _, f := range feeds {
		f.closeWith(ReasonUnavailable)
	}
	return len(feeds)
}

// FeedCount returns the number of open feeds for a doctor.
func (n *Notifier) FeedCount(doctorID uuid.UUID) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.feeds[doctorID])
}

func (n *Notifier) Hub() *Hub {
	return n.hub
}

func (n *Notifier) releaseFeed(f *Feed) {
	n.mu.Lock()
	if set, ok := n.feeds[f.DoctorID]; ok {
		delete(set, f)
		if len(set) == 0 {
			delete(n.feeds, f.DoctorID)
		}
	}
	n.mu.Unlock()
	n.metrics.ActiveSubscriptions.WithLabelValues(kindFeed).Dec()
}
