package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmehra2102/prod-golang-projects/medlink/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medlink/internal/domain/review"
	sr "github.com/dmehra2102/prod-golang-projects/medlink/internal/domain/servicerequest"
	"github.com/dmehra2102/prod-golang-projects/medlink/internal/events"
	"github.com/dmehra2102/prod-golang-projects/medlink/pkg/metrics"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type ReviewService struct {
	requests *RequestService
	repo     review.Repository
	auditSvc *AuditService
	events   EventEmitter
	metrics  *metrics.Collector
	log      *zap.Logger
}

func NewReviewService(
	requests *RequestService,
	repo review.Repository,
	auditSvc *AuditService,
	emitter EventEmitter,
	m *metrics.Collector,
	log *zap.Logger,
) *ReviewService {
	return &ReviewService{requests: requests, repo: repo, auditSvc: auditSvc, events: emitter, metrics: m, log: log}
}

// Submit attaches the single review of a completed request.
func (s *ReviewService) Submit(ctx context.Context, cmd *review.SubmitReviewCommand, caller Caller) (_ *review.Review, err error) {
	ctx, span := startSpan(ctx, "ReviewService.Submit", attribute.String("request.id", cmd.RequestID.String()))
	defer func() { endSpan(span, err) }()

	if !caller.Is(domain.RolePatient) || caller.UserID != cmd.PatientID {
		return nil, ErrForbidden
	}

	verr := &ValidationError{}
	if !review.ValidRating(cmd.Rating) {
		verr.add("rating must be between 1 and 5")
	}
	if !review.ValidComment(cmd.Comment) {
		verr.add(fmt.Sprintf("comment must be at most %d characters", review.MaxCommentLength))
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	r, err := s.requests.load(ctx, cmd.RequestID)
	if err != nil {
		return nil, err
	}
	if r.PatientID != cmd.PatientID {
		return nil, ErrForbidden
	}
	if r.Status != sr.StatusCompleted || r.DoctorID == nil {
		return nil, review.ErrInvalidState
	}

	rv := &review.Review{
		RequestID: r.ID,
		PatientID: r.PatientID,
		DoctorID:  *r.DoctorID,
		Rating:    cmd.Rating,
		Comment:   strings.TrimSpace(cmd.Comment),
	}
	if err := s.repo.Create(ctx, rv); err != nil {
		return nil, fmt.Errorf("creating review: %w", err)
	}

	s.metrics.ReviewsTotal.Inc()
	s.auditSvc.LogAsync(ctx, auditFor(caller, domain.ActionReview, "review", rv.ID.String(),
		`{"rating":`+strconv.Itoa(rv.Rating)+`}`))
	e := events.FromRequest(events.TypeReviewSubmitted, r)
	e.Rating = rv.Rating
	s.events.Emit(e)

	return rv, nil
}

// Get returns the review of a request to its patient or doctor.
func (s *ReviewService) Get(ctx context.Context, requestID uuid.UUID, caller Caller) (_ *review.Review, err error) {
	ctx, span := startSpan(ctx, "ReviewService.Get", attribute.String("request.id", requestID.String()))
	defer func() { endSpan(span, err) }()

	r, err := s.requests.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !isParticipant(r, caller) {
		return nil, ErrForbidden
	}
	return retryRead(ctx, s.requests.cfg.ReadRetries, func() (*review.Review, error) {
		return s.repo.GetByRequestID(ctx, requestID)
	})
}
