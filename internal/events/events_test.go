package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medlink/config"
	"github.com/dmehra2102/prod-golang-projects/medlink/internal/domain/servicerequest"
	"github.com/dmehra2102/prod-golang-projects/medlink/pkg/metrics"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func testEventsConfig() config.EventsConfig {
	return config.EventsConfig{
		Enabled:         true,
		Topic:           "test",
		WriteTimeout:    time.Second,
		BreakerTimeout:  time.Minute,
		BreakerFailures: 2,
	}
}

func sampleEvent() Event {
	doctor := uuid.New()
	r := &servicerequest.ServiceRequest{
		ID:        uuid.New(),
		PatientID: uuid.New(),
		Status:    servicerequest.StatusAssigned,
		DoctorID:  &doctor,
		Version:   2,
	}
	return FromRequest(TypeRequestAssigned, r)
}

func TestKafkaSink_PublishKeysByRequest(t *testing.T) {
	w := &fakeWriter{}
	sink := newKafkaSink(w, testEventsConfig(), zap.NewNop())
	e := sampleEvent()

	if err := sink.Publish(context.Background(), e); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != e.RequestID.String() {
		t.Fatalf("key = %q, want request id", msg.Key)
	}
	var decoded Event
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("decoding value: %v", err)
	}
	if decoded.Type != TypeRequestAssigned || decoded.Version != 2 || decoded.DoctorID == nil {
		t.Fatalf("unexpected payload: %+v", decoded)
	}
}

func TestKafkaSink_BreakerOpensAfterFailures(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	sink := newKafkaSink(w, testEventsConfig(), zap.NewNop())

	for i := 0; i < 2; i++ {
		if err := sink.Publish(context.Background(), sampleEvent()); err == nil || errors.Is(err, ErrBreakerOpen) {
			t.Fatalf("attempt %d: expected write error, got %v", i, err)
		}
	}
	if err := sink.Publish(context.Background(), sampleEvent()); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("expected ErrBreakerOpen, got %v", err)
	}
}

type recordingSink struct {
	mu     sync.Mutex
	got    []Event
	err    error
	closed bool
}

func (s *recordingSink) Publish(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, e)
	return s.err
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func TestPublisher_DrainsOnShutdown(t *testing.T) {
	sink := &recordingSink{}
	m := metrics.NewCollector("test", prometheus.NewRegistry())
	p := NewPublisher(sink, 16, m, zap.NewNop())

	for i := 0; i < 5; i++ {
		p.Emit(sampleEvent())
	}
	p.Shutdown()

	if len(sink.got) != 5 || !sink.closed {
		t.Fatalf("expected 5 events and a closed sink, got %d closed=%v", len(sink.got), sink.closed)
	}
	if got := testutil.ToFloat64(m.DomainEventsTotal.WithLabelValues("ok")); got != 5 {
		t.Fatalf("ok counter = %v, want 5", got)
	}
}

func TestPublisher_CountsFailures(t *testing.T) {
	sink := &recordingSink{err: ErrBreakerOpen}
	m := metrics.NewCollector("test", prometheus.NewRegistry())
	p := NewPublisher(sink, 4, m, zap.NewNop())

	p.Emit(sampleEvent())
	p.Shutdown()

	if got := testutil.ToFloat64(m.DomainEventsTotal.WithLabelValues("breaker_open")); got != 1 {
		t.Fatalf("breaker_open counter = %v, want 1", got)
	}
}
