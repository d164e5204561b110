package events

import (
	"context"
	"errors"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medlink/pkg/metrics"
	"go.uber.org/zap"
)

// Publisher hands events to a Sink from a single background worker so that
// request handling never waits on the broker. Events are best effort: a full
// buffer or a failed write drops the event and counts it.
type Publisher struct {
	sink    Sink
	metrics *metrics.Collector
	log     *zap.Logger
	events  chan Event
	done    chan struct{}
}

func NewPublisher(sink Sink, bufferSize int, m *metrics.Collector, log *zap.Logger) *Publisher {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	p := &Publisher{
		sink:    sink,
		metrics: m,
		log:     log,
		events:  make(chan Event, bufferSize),
		done:    make(chan struct{}),
	}
	go p.worker()
	return p
}

// Emit enqueues e without blocking.
func (p *Publisher) Emit(e Event) {
	select {
	case p.events <- e:
	default:
		p.metrics.DomainEventsTotal.WithLabelValues("dropped").Inc()
		p.log.Warn("event buffer full, dropping event",
			zap.String("type", string(e.Type)),
			zap.String("request_id", e.RequestID.String()),
		)
	}
}

// Shutdown drains queued events and closes the sink.
func (p *Publisher) Shutdown() {
	close(p.events)
	select {
	case <-p.done:
	case <-time.After(10 * time.Second):
		p.log.Warn("event publisher shutdown timed out; some events may be lost")
	}
	if err := p.sink.Close(); err != nil {
		p.log.Error("closing event sink", zap.Error(err))
	}
}

func (p *Publisher) worker() {
	defer close(p.done)
	for e := range p.events {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := p.sink.Publish(ctx, e)
		cancel()

		switch {
		case err == nil:
			p.metrics.DomainEventsTotal.WithLabelValues("ok").Inc()
		case errors.Is(err, ErrBreakerOpen):
			p.metrics.DomainEventsTotal.WithLabelValues("breaker_open").Inc()
		default:
			p.metrics.DomainEventsTotal.WithLabelValues("error").Inc()
			p.log.Error("failed to publish event", zap.String("type", string(e.Type)), zap.Error(err))
		}
	}
}
