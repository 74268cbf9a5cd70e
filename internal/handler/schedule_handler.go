package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-billing-api/internal/billing"
	"github.com/noah-isme/course-billing-api/internal/dto"
	"github.com/noah-isme/course-billing-api/internal/models"
	appErrors "github.com/noah-isme/course-billing-api/pkg/errors"
	"github.com/noah-isme/course-billing-api/pkg/response"
)

type scheduleService interface {
	Update(ctx context.Context, enrollmentID string, req billing.ScheduleUpdateRequest, actor models.Actor) (*models.ActionResult, error)
}

// ScheduleHandler manages the billing schedule of an enrollment.
type ScheduleHandler struct {
	service scheduleService
}

// NewScheduleHandler constructs handler.
func NewScheduleHandler(svc scheduleService) *ScheduleHandler {
	return &ScheduleHandler{service: svc}
}

// Update godoc
// @Summary Change next payment date, anchor, trial end, cancel date or fee
// @Tags Schedule
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body dto.UpdateScheduleRequest true "Schedule change"
// @Success 200 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /enrollments/{id}/schedule [put]
func (h *ScheduleHandler) Update(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "schedule service not configured"))
		return
	}
	var req dto.UpdateScheduleRequest
	if err := bindPayload(c, &req, false, "invalid schedule payload"); err != nil {
		response.Error(c, err)
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.service.Update(c.Request.Context(), c.Param("id"), req.ToBilling(), claims.Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}
