package v1

import (
	"net/http"

	"github.com/dmehra2102/prod-golang-projects/medlink/internal/domain/review"
	sr "github.com/dmehra2102/prod-golang-projects/medlink/internal/domain/servicerequest"
	"github.com/dmehra2102/prod-golang-projects/medlink/internal/geo"
	"github.com/dmehra2102/prod-golang-projects/medlink/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type RequestHandler struct {
	requests   *service.RequestService
	assignment *service.AssignmentService
	lifecycle  *service.LifecycleService
	reviews    *service.ReviewService
	log        *zap.Logger
}

func NewRequestHandler(
	requests *service.RequestService,
	assignment *service.AssignmentService,
	lifecycle *service.LifecycleService,
	reviews *service.ReviewService,
	log *zap.Logger,
) *RequestHandler {
	return &RequestHandler{requests: requests, assignment: assignment, lifecycle: lifecycle, reviews: reviews, log: log}
}

type createRequestBody struct {
	Symptoms    string       `json:"symptoms"`
	Urgency     sr.Urgency   `json:"urgency"`
	PatientName string       `json:"patient_name"`
	Location    *sr.Location `json:"location"`
}

type createRequestResponse struct {
	RequestID uuid.UUID `json:"request_id"`
	Status    sr.Status `json:"status"`
	Geohash   string    `json:"geohash"`
}

func (h *RequestHandler) Create(c *gin.Context) {
	var body createRequestBody
	if !bindJSON(c, &body) {
		return
	}
	r, err := h.requests.Create(c.Request.Context(), &sr.CreateRequestCommand{
		PatientName: body.PatientName,
		Symptoms:    body.Symptoms,
		Urgency:     body.Urgency,
		Location:    body.Location,
	}, callerFrom(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondCreated(c, createRequestResponse{RequestID: r.ID, Status: r.Status, Geohash: r.Geohash})
}

func (h *RequestHandler) Get(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	r, err := h.requests.Get(c.Request.Context(), id, callerFrom(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, r)
}

func (h *RequestHandler) ListPending(c *gin.Context) {
	center, radius, ok := parseArea(c)
	if !ok {
		return
	}
	list, err := h.requests.ListPending(c.Request.Context(), center, radius, callerFrom(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, list)
}

type acceptResponse struct {
	Outcome service.Outcome    `json:"outcome"`
	Request *sr.ServiceRequest `json:"request,omitempty"`
}

func (h *RequestHandler) Accept(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	outcome, r, err := h.assignment.AttemptAccept(c.Request.Context(), id, callerFrom(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if outcome == service.OutcomeAlreadyTaken {
		c.JSON(http.StatusConflict, ErrorResponse{Error: sr.ErrAlreadyTaken.Error(), Code: string(outcome)})
		return
	}
	respondOK(c, acceptResponse{Outcome: outcome, Request: r})
}

type advanceBody struct {
	Status string `json:"status" binding:"required"`
}

func (h *RequestHandler) Advance(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	var body advanceBody
	if !bindJSON(c, &body) {
		return
	}
	target, err := sr.ParseStatus(body.Status)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	caller := callerFrom(c)
	r, err := h.lifecycle.Advance(c.Request.Context(), &sr.AdvanceCommand{
		RequestID: id,
		DoctorID:  caller.UserID,
		Target:    target,
	}, caller)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, r)
}

func (h *RequestHandler) Cancel(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	r, err := h.requests.Cancel(c.Request.Context(), id, callerFrom(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, r)
}

type reviewBody struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func (h *RequestHandler) SubmitReview(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	var body reviewBody
	if !bindJSON(c, &body) {
		return
	}
	caller := callerFrom(c)
	rv, err := h.reviews.Submit(c.Request.Context(), &review.SubmitReviewCommand{
		RequestID: id,
		PatientID: caller.UserID,
		Rating:    body.Rating,
		Comment:   body.Comment,
	}, caller)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondCreated(c, rv)
}

func (h *RequestHandler) GetReview(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	rv, err := h.reviews.Get(c.Request.Context(), id, callerFrom(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, rv)
}

// parseArea reads lat, lon (required) and radius_km (optional).
func parseArea(c *gin.Context) (geo.Point, float64, bool) {
	lat, ok := parseQueryFloat(c, "lat", true)
	if !ok {
		return geo.Point{}, 0, false
	}
	lon, ok := parseQueryFloat(c, "lon", true)
	if !ok {
		return geo.Point{}, 0, false
	}
	radius, ok := parseQueryFloat(c, "radius_km", false)
	if !ok {
		return geo.Point{}, 0, false
	}
	return geo.Point{Latitude: lat, Longitude: lon}, radius, true
}
