package v1

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/dmehra2102/prod-golang-projects/medlink/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medlink/internal/domain/presence"
	"github.com/dmehra2102/prod-golang-projects/medlink/internal/domain/review"
	sr "github.com/dmehra2102/prod-golang-projects/medlink/internal/domain/servicerequest"
	"github.com/dmehra2102/prod-golang-projects/medlink/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type APIResponse[T any] struct {
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
}

type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

type ValidationErrorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields"`
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, APIResponse[any]{Data: data})
}

func respondCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, APIResponse[any]{Data: data})
}

func respondError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: message, Code: code})
}

func respondServiceError(c *gin.Context, err error) {
	var validErr *service.ValidationError
	if errors.As(err, &validErr) {
		c.JSON(http.StatusBadRequest, ValidationErrorResponse{
			Error:  "validation failed",
			Fields: validErr.Fields,
		})
		return
	}

	switch {
	case errors.Is(err, sr.ErrRequestNotFound),
		errors.Is(err, review.ErrReviewNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "NOT_FOUND"})

	case errors.Is(err, presence.ErrDoctorUnavailable):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "DOCTOR_UNAVAILABLE"})

	case errors.Is(err, sr.ErrAlreadyTaken):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "ALREADY_TAKEN"})

	case errors.Is(err, sr.ErrInvalidTransition):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "INVALID_TRANSITION"})

	case errors.Is(err, sr.ErrConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "CONFLICT"})

	case errors.Is(err, review.ErrInvalidState):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "INVALID_STATE"})

	case errors.Is(err, review.ErrDuplicateReview):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "DUPLICATE_REVIEW"})

	case errors.Is(err, sr.ErrInvalidStatus),
		errors.Is(err, sr.ErrInvalidUrgency),
		errors.Is(err, presence.ErrInvalidStatus),
		errors.Is(err, presence.ErrInvalidLocation):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})

	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "access denied", Code: "FORBIDDEN"})

	case errors.Is(err, domain.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "service temporarily unavailable", Code: "UNAVAILABLE"})

	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

func bindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request: " + err.Error()})
		return false
	}

	return true
}

func parseUUID(c *gin.Context, param string) (uuid.UUID, bool) {
	raw := c.Param(param)
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid " + param + ": must be a valid UUID"})
		return uuid.Nil, false
	}
	return id, true
}

// parseQueryFloat reads a float query parameter. A missing optional key
// yields zero; a missing required key or a malformed value writes a 400.
func parseQueryFloat(c *gin.Context, key string, required bool) (float64, bool) {
	raw := c.Query(key)
	if raw == "" {
		if required {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: key + " is required"})
			return 0, false
		}
		return 0, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid " + key + ": must be a number"})
		return 0, false
	}
	return v, true
}
