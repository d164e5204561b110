package service

import (
	"context"
	"fmt"

	"github.com/dmehra2102/prod-golang-projects/medlink/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medlink/internal/domain/presence"
	"github.com/dmehra2102/prod-golang-projects/medlink/internal/fanout"
	"github.com/dmehra2102/prod-golang-projects/medlink/internal/geo"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// PresenceService keeps doctor presence, the geospatial index and open
// pending feeds consistent with each other.
type PresenceService struct {
	repo     presence.Repository
	index    *geo.Index
	notifier *fanout.Notifier
	requests *RequestService
	log      *zap.Logger
}

func NewPresenceService(
	repo presence.Repository,
	index *geo.Index,
	notifier *fanout.Notifier,
	requests *RequestService,
	log *zap.Logger,
) *PresenceService {
	return &PresenceService{repo: repo, index: index, notifier: notifier, requests: requests, log: log}
}

// Update records a doctor's reported status and position. While in service
// the status stays in-service and the position is pushed to the request's
// observers.
func (s *PresenceService) Update(ctx context.Context, cmd *presence.UpdatePresenceCommand, caller Caller) (_ *presence.Presence, err error) {
	ctx, span := startSpan(ctx, "PresenceService.Update", attribute.String("doctor.id", cmd.DoctorID.String()))
	defer func() { endSpan(span, err) }()

	if !caller.Is(domain.RoleDoctor) || caller.UserID != cmd.DoctorID {
		return nil, ErrForbidden
	}
	verr := &ValidationError{}
	if !cmd.Status.IsReportable() {
		verr.add("status must be one of online, offline")
	}
	if !presence.ValidCoordinates(cmd.Latitude, cmd.Longitude) {
		verr.add("latitude/longitude are out of range")
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	stored, err := s.repo.Upsert(ctx, &presence.Presence{
		DoctorID:  cmd.DoctorID,
		Status:    cmd.Status,
		Latitude:  cmd.Latitude,
		Longitude: cmd.Longitude,
	})
	if err != nil {
		return nil, fmt.Errorf("updating presence: %w", err)
	}

	// no-op if a newer reservation or release already reached the index
	s.index.Apply(stored)
	point := geo.Point{Latitude: stored.Latitude, Longitude: stored.Longitude}

	switch stored.Status {
	case presence.StatusOffline:
		if n := s.notifier.CloseDoctorFeeds(stored.DoctorID); n > 0 {
			s.log.Debug("closed pending feeds of offline doctor",
				zap.String("doctor_id", stored.DoctorID.String()),
				zap.Int("feeds", n),
			)
		}
	case presence.StatusInService:
		if stored.ActiveRequestID != nil {
			s.notifier.DoctorMoved(*stored.ActiveRequestID, point)
		}
	}
	return stored, nil
}

// Nearby lists online doctors around a point, nearest first.
func (s *PresenceService) Nearby(ctx context.Context, center geo.Point, radiusKm float64, caller Caller) (_ []geo.Match, err error) {
	_, span := startSpan(ctx, "PresenceService.Nearby")
	defer func() { endSpan(span, err) }()

	if !caller.Is(domain.RolePatient) && !caller.Is(domain.RoleAdmin) {
		return nil, ErrForbidden
	}
	radiusKm, err = s.requests.Radius(center, radiusKm)
	if err != nil {
		return nil, err
	}
	return s.index.Query(center, radiusKm), nil
}

// WarmIndex loads every stored presence into the geospatial index.
func (s *PresenceService) WarmIndex(ctx context.Context) error {
	all, err := retryRead(ctx, s.requests.cfg.ReadRetries, func() ([]*presence.Presence, error) {
		return s.repo.List(ctx)
	})
	if err != nil {
		return fmt.Errorf("loading presence: %w", err)
	}
	for _, p := range all {
		s.index.Apply(p)
	}
	s.log.Info("geospatial index warmed", zap.Int("doctors", len(all)))
	return nil
}
