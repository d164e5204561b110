package v1

import (
	"net/http"

	"github.com/dmehra2102/prod-golang-projects/medlink/internal/domain/presence"
	"github.com/dmehra2102/prod-golang-projects/medlink/internal/service"
	"github.com/gin-gonic/gin"
)

type DoctorHandler struct {
	presence *service.PresenceService
}

func NewDoctorHandler(presenceSvc *service.PresenceService) *DoctorHandler {
	return &DoctorHandler{presence: presenceSvc}
}

type presenceBody struct {
	Status    presence.Status `json:"status" binding:"required"`
	Latitude  *float64        `json:"latitude" binding:"required"`
	Longitude *float64        `json:"longitude" binding:"required"`
}

func (h *DoctorHandler) UpdatePresence(c *gin.Context) {
	var body presenceBody
	if !bindJSON(c, &body) {
		return
	}
	caller := callerFrom(c)
	_, err := h.presence.Update(c.Request.Context(), &presence.UpdatePresenceCommand{
		DoctorID:  caller.UserID,
		Status:    body.Status,
		Latitude:  *body.Latitude,
		Longitude: *body.Longitude,
	}, caller)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *DoctorHandler) Nearby(c *gin.Context) {
	center, radius, ok := parseArea(c)
	if !ok {
		return
	}
	matches, err := h.presence.Nearby(c.Request.Context(), center, radius, callerFrom(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, matches)
}
