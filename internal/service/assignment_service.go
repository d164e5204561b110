package service

import (
	"context"
	"errors"
	"fmt"
	"time"

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

type Outcome string

const (
	OutcomeAssigned     Outcome = "assigned"
	OutcomeAlreadyTaken Outcome = "already_taken"
)

// AssignmentService decides which doctor gets a pending request. The
// request's compare-and-set is the only arbiter; there is no queueing and a
// lost attempt is final.
type AssignmentService struct {
	requests *RequestService
	repo     sr.Repository
	presence presence.Repository
	index    *geo.Index
	notifier *fanout.Notifier
	auditSvc *AuditService
	events   EventEmitter
	metrics  *metrics.Collector
	log      *zap.Logger
}

func NewAssignmentService(
	requests *RequestService,
	presenceRepo presence.Repository,
	index *geo.Index,
	notifier *fanout.Notifier,
	auditSvc *AuditService,
	emitter EventEmitter,
	m *metrics.Collector,
	log *zap.Logger,
) *AssignmentService {
	return &AssignmentService{
		requests: requests,
		repo:     requests.repo,
		presence: presenceRepo,
		index:    index,
		notifier: notifier,
		auditSvc: auditSvc,
		events:   emitter,
		metrics:  m,
		log:      log,
	}
}

// AttemptAccept tries to assign requestID to the calling doctor. It returns
// OutcomeAlreadyTaken when another doctor won or the request left pending,
// and presence.ErrDoctorUnavailable when the doctor is not online.
func (s *AssignmentService) AttemptAccept(ctx context.Context, requestID uuid.UUID, caller Caller) (_ Outcome, _ *sr.ServiceRequest, err error) {
	ctx, span := startSpan(ctx, "AssignmentService.AttemptAccept",
		attribute.String("request.id", requestID.String()),
		attribute.String("doctor.id", caller.UserID.String()),
	)
	defer func() { endSpan(span, err) }()

	if !caller.Is(domain.RoleDoctor) {
		return "", nil, ErrForbidden
	}
	outcome, r, err := s.attempt(ctx, requestID, caller)
	switch {
	case errors.Is(err, presence.ErrDoctorUnavailable):
		s.metrics.AcceptAttemptsTotal.WithLabelValues("unavailable").Inc()
	case err != nil:
		s.metrics.AcceptAttemptsTotal.WithLabelValues("error").Inc()
	default:
		s.metrics.AcceptAttemptsTotal.WithLabelValues(string(outcome)).Inc()
		span.SetAttributes(attribute.String("accept.outcome", string(outcome)))
	}
	return outcome, r, err
}

func (s *AssignmentService) attempt(ctx context.Context, requestID uuid.UUID, caller Caller) (Outcome, *sr.ServiceRequest, error) {
	doctorID := caller.UserID
	r, err := s.requests.load(ctx, requestID)
	if err != nil {
		return "", nil, err
	}
	if r.IsAssignedTo(doctorID) {
		return OutcomeAssigned, r, nil
	}
	if r.Status != sr.StatusPending {
		return OutcomeAlreadyTaken, nil, nil
	}

	// Reserve the doctor first so one doctor can never win two requests.
	reserved, err := s.presence.CompareAndSetStatus(ctx, doctorID, presence.StatusOnline, presence.StatusInService, &requestID)
	if err != nil {
		if errors.Is(err, presence.ErrPresenceNotFound) || errors.Is(err, presence.ErrPresenceConflict) {
			return "", nil, presence.ErrDoctorUnavailable
		}
		return "", nil, fmt.Errorf("reserving doctor: %w", err)
	}
	s.index.Apply(reserved)

	updated, err := s.repo.ApplyTransition(ctx, requestID, sr.StatusPending, func(r *sr.ServiceRequest) error {
		return r.Assign(doctorID, time.Now().UTC())
	})
	if err != nil {
		s.release(ctx, doctorID)
		if !errors.Is(err, sr.ErrConflict) {
			return "", nil, fmt.Errorf("assigning service request: %w", err)
		}
		current, rerr := s.requests.load(ctx, requestID)
		if rerr != nil {
			return "", nil, rerr
		}
		if current.IsAssignedTo(doctorID) {
			return OutcomeAssigned, current, nil
		}
		return OutcomeAlreadyTaken, nil, nil
	}

	s.notifier.CloseDoctorFeeds(doctorID)
	s.notifier.RequestChanged(updated)

	s.auditSvc.LogAsync(ctx, auditFor(caller, domain.ActionAccept, resourceRequest, requestID.String(), `{"status":"assigned"}`))
	s.events.Emit(events.FromRequest(events.TypeRequestAssigned, updated))
	s.log.Info("service request assigned",
		zap.String("request_id", requestID.String()),
		zap.String("doctor_id", doctorID.String()),
	)

	return OutcomeAssigned, updated, nil
}

// release undoes a reservation after a lost compare-and-set.
func (s *AssignmentService) release(ctx context.Context, doctorID uuid.UUID) {
	p, err := s.presence.CompareAndSetStatus(ctx, doctorID, presence.StatusInService, presence.StatusOnline, nil)
	if err != nil {
		s.log.Error("failed to release doctor reservation",
			zap.String("doctor_id", doctorID.String()),
			zap.Error(err),
		)
		return
	}
	s.index.Apply(p)
}
