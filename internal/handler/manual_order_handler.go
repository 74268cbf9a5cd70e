package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-billing-api/internal/dto"
	"github.com/noah-isme/course-billing-api/internal/models"
	"github.com/noah-isme/course-billing-api/internal/service"
	appErrors "github.com/noah-isme/course-billing-api/pkg/errors"
	"github.com/noah-isme/course-billing-api/pkg/response"
)

type manualPaymentService interface {
	Generate(ctx context.Context, enrollmentID string, req service.GenerateOrderRequest, actor models.Actor) (*models.Order, error)
	Approve(ctx context.Context, orderID string, req service.ApproveOrderRequest, actor models.Actor) (*models.Order, error)
	Reject(ctx context.Context, orderID, reason string, actor models.Actor) (*models.Order, error)
}

// ManualOrderHandler issues and reviews manual payment orders.
type ManualOrderHandler struct {
	service manualPaymentService
}

// NewManualOrderHandler constructs the handler.
func NewManualOrderHandler(service manualPaymentService) *ManualOrderHandler {
	return &ManualOrderHandler{service: service}
}

// Generate godoc
// @Summary Issue a manual payment order for a billing period
// @Tags ManualOrders
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body dto.GenerateManualOrderRequest false "Period and amount"
// @Success 201 {object} response.Envelope
// @Router /enrollments/{id}/manual-orders [post]
func (h *ManualOrderHandler) Generate(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "manual payment service not configured"))
		return
	}
	var req dto.GenerateManualOrderRequest
	if err := bindPayload(c, &req, true, "invalid manual order payload"); err != nil {
		response.Error(c, err)
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	order, err := h.service.Generate(c.Request.Context(), c.Param("id"), req.ToService(), claims.Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, order)
}

// Approve godoc
// @Summary Mark a pending manual order as paid
// @Tags ManualOrders
// @Accept json
// @Produce json
// @Param id path string true "Order ID"
// @Param payload body dto.ApproveOrderRequest true "Payment evidence"
// @Success 200 {object} response.Envelope
// @Router /orders/{id}/approve [post]
func (h *ManualOrderHandler) Approve(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "manual payment service not configured"))
		return
	}
	var req dto.ApproveOrderRequest
	if err := bindPayload(c, &req, false, "invalid approval payload"); err != nil {
		response.Error(c, err)
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	order, err := h.service.Approve(c.Request.Context(), c.Param("id"), req.ToService(), claims.Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, order)
}

// Reject godoc
// @Summary Reject a pending manual order
// @Tags ManualOrders
// @Accept json
// @Produce json
// @Param id path string true "Order ID"
// @Param payload body dto.RejectOrderRequest true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Router /orders/{id}/reject [post]
func (h *ManualOrderHandler) Reject(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "manual payment service not configured"))
		return
	}
	var req dto.RejectOrderRequest
	if err := bindPayload(c, &req, false, "invalid rejection payload"); err != nil {
		response.Error(c, err)
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	order, err := h.service.Reject(c.Request.Context(), c.Param("id"), req.Reason, claims.Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, order)
}
