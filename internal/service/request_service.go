package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmehra2102/prod-golang-projects/medlink/config"
	"github.com/dmehra2102/prod-golang-projects/medlink/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medlink/internal/domain/presence"
	sr "github.com/dmehra2102/prod-golang-projects/medlink/internal/domain/servicerequest"
	"github.com/dmehra2102/prod-golang-projects/medlink/internal/events"
	"github.com/dmehra2102/prod-golang-projects/medlink/internal/fanout"
	"github.com/dmehra2102/prod-golang-projects/medlink/internal/geo"
	"github.com/dmehra2102/prod-golang-projects/medlink/pkg/metrics"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	maxSymptomsLength = 2000
	resourceRequest   = "service_request"
	// rows fetched per page while scanning for pending requests in a radius
	pendingScanLimit = 100
)

type RequestService struct {
	repo     sr.Repository
	index    *geo.Index
	notifier *fanout.Notifier
	auditSvc *AuditService
	events   EventEmitter
	metrics  *metrics.Collector
	cfg      config.DispatchConfig
	log      *zap.Logger
}

func NewRequestService(
	repo sr.Repository,
	index *geo.Index,
	notifier *fanout.Notifier,
	auditSvc *AuditService,
	emitter EventEmitter,
	m *metrics.Collector,
	cfg config.DispatchConfig,
	log *zap.Logger,
) *RequestService {
	return &RequestService{
		repo:     repo,
		index:    index,
		notifier: notifier,
		auditSvc: auditSvc,
		events:   emitter,
		metrics:  m,
		cfg:      cfg,
		log:      log,
	}
}

func (s *RequestService) Create(ctx context.Context, cmd *sr.CreateRequestCommand, caller Caller) (_ *sr.ServiceRequest, err error) {
	ctx, span := startSpan(ctx, "RequestService.Create")
	defer func() { endSpan(span, err) }()

	if !caller.Is(domain.RolePatient) {
		return nil, ErrForbidden
	}

	// -------- Input Validation -----------
	verr := &ValidationError{}
	symptoms := strings.TrimSpace(cmd.Symptoms)
	switch {
	case symptoms == "":
		verr.add("symptoms is required")
	case utf8.RuneCountInString(symptoms) > maxSymptomsLength:
		verr.add(fmt.Sprintf("symptoms must be at most %d characters", maxSymptomsLength))
	}
	if cmd.Location == nil {
		verr.add("location is required")
	} else if !presence.ValidCoordinates(cmd.Location.Latitude, cmd.Location.Longitude) {
		verr.add("location coordinates are out of range")
	}
	urgency := cmd.Urgency
	if urgency == "" {
		urgency = sr.UrgencyMedium
	}
	if !urgency.IsValid() {
		verr.add("urgency must be one of low, medium, high")
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(cmd.PatientName)
	if name == "" {
		name = caller.Name
	}
	point := geo.Point{Latitude: cmd.Location.Latitude, Longitude: cmd.Location.Longitude}
	r := &sr.ServiceRequest{
		PatientID:   caller.UserID,
		PatientName: name,
		Symptoms:    symptoms,
		Urgency:     urgency,
		Location:    *cmd.Location,
		Geohash:     geo.Encode(point, geo.RequestPrecision),
	}

	if err := s.repo.Create(ctx, r); err != nil {
		s.log.Error("failed to create service request", zap.Error(err))
		return nil, fmt.Errorf("creating service request: %w", err)
	}
	span.SetAttributes(attribute.String("request.id", r.ID.String()))

	nearby := s.index.Query(point, s.cfg.DefaultRadiusKm)
	s.metrics.ServiceRequestsCreated.Inc()
	s.metrics.NearbyDoctors.Observe(float64(len(nearby)))
	if len(nearby) == 0 {
		s.log.Info("service request created with no doctors in range",
			zap.String("request_id", r.ID.String()),
			zap.String("geohash", r.Geohash),
		)
	}

	s.notifier.RequestChanged(r)
	s.auditSvc.LogAsync(ctx, auditFor(caller, domain.ActionCreate, resourceRequest, r.ID.String(), ""))
	s.events.Emit(events.FromRequest(events.TypeRequestCreated, r))

	return r, nil
}

func (s *RequestService) Get(ctx context.Context, id uuid.UUID, caller Caller) (_ *sr.ServiceRequest, err error) {
	ctx, span := startSpan(ctx, "RequestService.Get", attribute.String("request.id", id.String()))
	defer func() { endSpan(span, err) }()

	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(r, caller) {
		return nil, ErrForbidden
	}
	return r, nil
}

// ListPending returns the most recent pending requests within radiusKm of
// center, newest first.
func (s *RequestService) ListPending(ctx context.Context, center geo.Point, radiusKm float64, caller Caller) (_ []*sr.ServiceRequest, err error) {
	ctx, span := startSpan(ctx, "RequestService.ListPending")
	defer func() { endSpan(span, err) }()

	if !caller.Is(domain.RoleDoctor) && !caller.Is(domain.RoleAdmin) {
		return nil, ErrForbidden
	}
	radiusKm, err = s.Radius(center, radiusKm)
	if err != nil {
		return nil, err
	}
	return s.pendingNear(ctx, center, radiusKm)
}

func (s *RequestService) Cancel(ctx context.Context, id uuid.UUID, caller Caller) (_ *sr.ServiceRequest, err error) {
	ctx, span := startSpan(ctx, "RequestService.Cancel", attribute.String("request.id", id.String()))
	defer func() { endSpan(span, err) }()

	if !caller.Is(domain.RolePatient) {
		return nil, ErrForbidden
	}
	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.PatientID != caller.UserID {
		return nil, ErrForbidden
	}
	if r.Status == sr.StatusCancelled {
		return r, nil
	}
	if !r.CanTransitionTo(sr.StatusCancelled) {
		return nil, sr.ErrInvalidTransition
	}

	updated, err := s.repo.ApplyTransition(ctx, id, sr.StatusPending, func(r *sr.ServiceRequest) error {
		return r.Cancel(time.Now().UTC())
	})
	if errors.Is(err, sr.ErrConflict) {
		current, rerr := s.load(ctx, id)
		if rerr != nil {
			return nil, rerr
		}
		if current.Status == sr.StatusCancelled {
			return current, nil
		}
		return nil, sr.ErrInvalidTransition
	}
	if err != nil {
		return nil, fmt.Errorf("cancelling service request: %w", err)
	}

	s.metrics.TransitionsTotal.WithLabelValues(string(sr.StatusCancelled)).Inc()
	s.notifier.RequestChanged(updated)
	s.auditSvc.LogAsync(ctx, auditFor(caller, domain.ActionCancel, resourceRequest, id.String(), `{"status":"cancelled"}`))
	s.events.Emit(events.FromRequest(events.TypeRequestCancelled, updated))

	return updated, nil
}

// Radius applies the configured default and maximum to a requested radius
// and validates center.
func (s *RequestService) Radius(center geo.Point, radiusKm float64) (float64, error) {
	verr := &ValidationError{}
	if !presence.ValidCoordinates(center.Latitude, center.Longitude) {
		verr.add("lat/lon are out of range")
	}
	if radiusKm <= 0 {
		radiusKm = s.cfg.DefaultRadiusKm
	}
	if radiusKm > s.cfg.MaxRadiusKm {
		verr.add(fmt.Sprintf("radius_km must not exceed %g", s.cfg.MaxRadiusKm))
	}
	return radiusKm, verr.orNil()
}

// pendingNear pages through pending requests in the cells covering the circle
// until a full page lies inside the radius or the cells are exhausted.
func (s *RequestService) pendingNear(ctx context.Context, center geo.Point, radiusKm float64) ([]*sr.ServiceRequest, error) {
	pending := sr.StatusPending
	q := &sr.ListQuery{
		Status:          &pending,
		GeohashPrefixes: geo.Cover(center, radiusKm, geo.PrecisionForRadius(center, radiusKm)),
		PageSize:        pendingScanLimit,
	}

	out := make([]*sr.ServiceRequest, 0, s.cfg.PendingPageSize)
	for {
		candidates, err := retryRead(ctx, s.cfg.ReadRetries, func() ([]*sr.ServiceRequest, error) {
			return s.repo.List(ctx, q)
		})
		if err != nil {
			return nil, fmt.Errorf("listing pending requests: %w", err)
		}
		for _, r := range candidates {
			loc := geo.Point{Latitude: r.Location.Latitude, Longitude: r.Location.Longitude}
			if !geo.Within(center, loc, radiusKm) {
				continue
			}
			out = append(out, r)
			if len(out) == s.cfg.PendingPageSize {
				return out, nil
			}
		}
		if len(candidates) < pendingScanLimit {
			return out, nil
		}
		q.After = sr.CursorOf(candidates[len(candidates)-1])
	}
}

func (s *RequestService) load(ctx context.Context, id uuid.UUID) (*sr.ServiceRequest, error) {
	return retryRead(ctx, s.cfg.ReadRetries, func() (*sr.ServiceRequest, error) {
		return s.repo.GetByID(ctx, id)
	})
}

// canView: the owning patient, the assigned doctor, any doctor while the
// request is pending, and admins.
func canView(r *sr.ServiceRequest, c Caller) bool {
	switch c.Role {
	case domain.RoleAdmin:
		return true
	case domain.RolePatient:
		return r.PatientID == c.UserID
	case domain.RoleDoctor:
		return r.Status == sr.StatusPending || r.IsAssignedTo(c.UserID)
	}
	return false
}

// isParticipant: the owning patient or the assigned doctor (and admins).
func isParticipant(r *sr.ServiceRequest, c Caller) bool {
	switch c.Role {
	case domain.RoleAdmin:
		return true
	case domain.RolePatient:
		return r.PatientID == c.UserID
	case domain.RoleDoctor:
		return r.IsAssignedTo(c.UserID)
	}
	return false
}
