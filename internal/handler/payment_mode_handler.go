package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-billing-api/internal/dto"
	"github.com/noah-isme/course-billing-api/internal/models"
	appErrors "github.com/noah-isme/course-billing-api/pkg/errors"
	"github.com/noah-isme/course-billing-api/pkg/response"
)

type paymentModeService interface {
	SwitchToAutomatic(ctx context.Context, enrollmentID, paymentMethodID string, actor models.Actor) (*models.ActionResult, error)
	SwitchToManual(ctx context.Context, enrollmentID string, actor models.Actor) (*models.ActionResult, error)
}

// PaymentModeHandler switches enrollments between automatic and manual collection.
type PaymentModeHandler struct {
	service paymentModeService
}

// NewPaymentModeHandler constructs the handler.
func NewPaymentModeHandler(service paymentModeService) *PaymentModeHandler {
	return &PaymentModeHandler{service: service}
}

// Automatic godoc
// @Summary Collect payments automatically through the provider
// @Tags PaymentMode
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body dto.SwitchToAutomaticRequest false "Payment method"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/payment-mode/automatic [post]
func (h *PaymentModeHandler) Automatic(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "payment mode service not configured"))
		return
	}
	var req dto.SwitchToAutomaticRequest
	if err := bindPayload(c, &req, true, "invalid payment mode payload"); err != nil {
		response.Error(c, err)
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.service.SwitchToAutomatic(c.Request.Context(), c.Param("id"), req.PaymentMethodID, claims.Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Manual godoc
// @Summary Pause provider collection and bill through manual orders
// @Tags PaymentMode
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/payment-mode/manual [post]
func (h *PaymentModeHandler) Manual(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "payment mode service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.service.SwitchToManual(c.Request.Context(), c.Param("id"), claims.Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}
