package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmehra2102/prod-golang-projects/medlink/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medlink/internal/domain/presence"
	"github.com/dmehra2102/prod-golang-projects/medlink/internal/fanout"
	"github.com/dmehra2102/prod-golang-projects/medlink/internal/geo"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// StreamService opens live subscriptions. Every subscription registers with
// the hub before its snapshot is read, so a change committed in between is
// delivered live and any stale snapshot row is dropped by version.
type StreamService struct {
	requests *RequestService
	presence presence.Repository
	notifier *fanout.Notifier
	log      *zap.Logger
}

func NewStreamService(requests *RequestService, presenceRepo presence.Repository, notifier *fanout.Notifier, log *zap.Logger) *StreamService {
	return &StreamService{requests: requests, presence: presenceRepo, notifier: notifier, log: log}
}

// OpenFeed starts a doctor's pending feed. Only online doctors get one.
func (s *StreamService) OpenFeed(ctx context.Context, center geo.Point, radiusKm float64, caller Caller) (_ *fanout.Feed, err error) {
	ctx, span := startSpan(ctx, "StreamService.OpenFeed", attribute.String("doctor.id", caller.UserID.String()))
	defer func() { endSpan(span, err) }()

	if !caller.Is(domain.RoleDoctor) {
		return nil, ErrForbidden
	}
	radiusKm, err = s.requests.Radius(center, radiusKm)
	if err != nil {
		return nil, err
	}

	f := s.notifier.OpenFeed(caller.UserID, center, radiusKm)

	// Checked after registering: a concurrent offline or accept either shows
	// up here or closes the feed we just opened.
	p, err := retryRead(ctx, s.requests.cfg.ReadRetries, func() (*presence.Presence, error) {
		return s.presence.Get(ctx, caller.UserID)
	})
	if err != nil || !p.IsAvailable() {
		f.Close()
		if err != nil && !errors.Is(err, presence.ErrPresenceNotFound) {
			return nil, fmt.Errorf("checking presence: %w", err)
		}
		return nil, presence.ErrDoctorUnavailable
	}

	if err := s.seedFeed(ctx, f); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// MoveFeed re-centers a feed and seeds requests that came into range.
func (s *StreamService) MoveFeed(ctx context.Context, f *fanout.Feed, center geo.Point) error {
	if !presence.ValidCoordinates(center.Latitude, center.Longitude) {
		return &ValidationError{Fields: []string{"latitude/longitude are out of range"}}
	}
	f.Move(center)
	return s.seedFeed(ctx, f)
}

func (s *StreamService) seedFeed(ctx context.Context, f *fanout.Feed) error {
	snapshot, err := s.requests.pendingNear(ctx, f.Center(), f.RadiusKm())
	if err != nil {
		return fmt.Errorf("loading feed snapshot: %w", err)
	}
	f.Seed(snapshot)
	return nil
}

// OpenRequestStream follows one request for its patient or assigned doctor.
func (s *StreamService) OpenRequestStream(ctx context.Context, requestID uuid.UUID, caller Caller) (_ *fanout.RequestStream, err error) {
	ctx, span := startSpan(ctx, "StreamService.OpenRequestStream", attribute.String("request.id", requestID.String()))
	defer func() { endSpan(span, err) }()

	r, err := s.requests.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !isParticipant(r, caller) {
		return nil, ErrForbidden
	}

	st := s.notifier.OpenRequestStream(requestID)
	current, err := s.requests.load(ctx, requestID)
	if err != nil {
		st.Close()
		return nil, err
	}
	st.Seed(current)
	return st, nil
}
