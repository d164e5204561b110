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

// LifecycleService moves assigned requests forward on behalf of their doctor.
type LifecycleService struct {
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

func NewLifecycleService(
	requests *RequestService,
	presenceRepo presence.Repository,
	index *geo.Index,
	notifier *fanout.Notifier,
	auditSvc *AuditService,
	emitter EventEmitter,
	m *metrics.Collector,
	log *zap.Logger,
) *LifecycleService {
	return &LifecycleService{
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

// Advance applies assigned → in-progress or in-progress → completed. Asking
// for the status the request already has is a no-op success.
func (s *LifecycleService) Advance(ctx context.Context, cmd *sr.AdvanceCommand, caller Caller) (_ *sr.ServiceRequest, err error) {
	ctx, span := startSpan(ctx, "LifecycleService.Advance",
		attribute.String("request.id", cmd.RequestID.String()),
		attribute.String("request.target", string(cmd.Target)),
	)
	defer func() { endSpan(span, err) }()

	if !caller.Is(domain.RoleDoctor) || caller.UserID != cmd.DoctorID {
		return nil, ErrForbidden
	}
	// Doctors only move a visit forward. Assignment and cancellation have
	// their own operations.
	if cmd.Target != sr.StatusInProgress && cmd.Target != sr.StatusCompleted {
		return nil, sr.ErrInvalidTransition
	}

	r, err := s.requests.load(ctx, cmd.RequestID)
	if err != nil {
		return nil, err
	}
	if !r.IsAssignedTo(cmd.DoctorID) {
		if r.DoctorID == nil {
			return nil, sr.ErrInvalidTransition
		}
		return nil, ErrForbidden
	}
	if r.Status == cmd.Target {
		return r, nil
	}
	if !r.CanTransitionTo(cmd.Target) {
		return nil, sr.ErrInvalidTransition
	}

	updated, err := s.repo.ApplyTransition(ctx, cmd.RequestID, r.Status, func(r *sr.ServiceRequest) error {
		return r.Advance(cmd.Target, time.Now().UTC())
	})
	if errors.Is(err, sr.ErrConflict) {
		current, rerr := s.requests.load(ctx, cmd.RequestID)
		if rerr != nil {
			return nil, rerr
		}
		if current.Status == cmd.Target {
			return current, nil
		}
		return nil, fmt.Errorf("advancing to %s: %w", cmd.Target, sr.ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("advancing to %s: %w", cmd.Target, err)
	}

	if updated.Status == sr.StatusCompleted {
		s.freeDoctor(ctx, cmd.DoctorID)
	}

	s.metrics.TransitionsTotal.WithLabelValues(string(updated.Status)).Inc()
	s.notifier.RequestChanged(updated)
	s.auditSvc.LogAsync(ctx, auditFor(caller, domain.ActionUpdate, resourceRequest, updated.ID.String(),
		fmt.Sprintf(`{"status":%q}`, updated.Status)))
	s.events.Emit(events.FromRequest(events.TypeRequestAdvanced, updated))

	return updated, nil
}

// freeDoctor returns a doctor to online after completing a visit.
func (s *LifecycleService) freeDoctor(ctx context.Context, doctorID uuid.UUID) {
	p, err := s.presence.CompareAndSetStatus(ctx, doctorID, presence.StatusInService, presence.StatusOnline, nil)
	if err != nil {
		s.log.Warn("doctor not returned to online after completion",
			zap.String("doctor_id", doctorID.String()),
			zap.Error(err),
		)
		return
	}
	s.index.Apply(p)
}
