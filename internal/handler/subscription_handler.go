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

type subscriptionService interface {
	Details(ctx context.Context, enrollmentID string) (*models.SubscriptionDetails, error)
	Create(ctx context.Context, enrollmentID string, req billing.SubscriptionCreateRequest, actor models.Actor) (*models.ActionResult, error)
	Resume(ctx context.Context, enrollmentID string, req billing.SubscriptionCreateRequest, actor models.Actor) (*models.ActionResult, error)
	ForceRecreate(ctx context.Context, enrollmentID string, req billing.SubscriptionCreateRequest, actor models.Actor) (*models.ActionResult, error)
	ConfirmPayment(ctx context.Context, enrollmentID string, actor models.Actor) (*models.ActionResult, error)
	Cancel(ctx context.Context, enrollmentID string, immediate bool, actor models.Actor) (*models.ActionResult, error)
	UndoCancel(ctx context.Context, enrollmentID string, actor models.Actor) (*models.ActionResult, error)
}

type subscriptionSyncer interface {
	Sync(ctx context.Context, enrollmentID string, actor models.Actor) (*models.ActionResult, error)
}

// SubscriptionHandler exposes the subscription lifecycle actions of an enrollment.
type SubscriptionHandler struct {
	service subscriptionService
	sync    subscriptionSyncer
}

// NewSubscriptionHandler constructs the handler.
func NewSubscriptionHandler(service subscriptionService, sync subscriptionSyncer) *SubscriptionHandler {
	return &SubscriptionHandler{service: service, sync: sync}
}

// Get godoc
// @Summary Get the provider view of an enrollment subscription
// @Tags Subscriptions
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/subscription [get]
func (h *SubscriptionHandler) Get(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "subscription service not configured"))
		return
	}
	details, err := h.service.Details(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, details)
}

// Create godoc
// @Summary Start a subscription for an enrollment
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body dto.CreateSubscriptionRequest false "Schedule options"
// @Success 201 {object} response.Envelope
// @Router /enrollments/{id}/subscription [post]
func (h *SubscriptionHandler) Create(c *gin.Context) {
	h.start(c, http.StatusCreated, subscriptionService.Create)
}

// Resume godoc
// @Summary Resume billing on a canceled subscription
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body dto.CreateSubscriptionRequest false "Schedule options"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/subscription/resume [post]
func (h *SubscriptionHandler) Resume(c *gin.Context) {
	h.start(c, http.StatusOK, subscriptionService.Resume)
}

// Recreate godoc
// @Summary Replace an incomplete subscription with a new one
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body dto.CreateSubscriptionRequest false "Schedule options"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/subscription/recreate [post]
func (h *SubscriptionHandler) Recreate(c *gin.Context) {
	h.start(c, http.StatusOK, subscriptionService.ForceRecreate)
}

func (h *SubscriptionHandler) start(
	c *gin.Context,
	status int,
	action func(subscriptionService, context.Context, string, billing.SubscriptionCreateRequest, models.Actor) (*models.ActionResult, error),
) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "subscription service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateSubscriptionRequest
	if err := bindPayload(c, &req, true, "invalid subscription payload"); err != nil {
		response.Error(c, err)
		return
	}
	result, err := action(h.service, c.Request.Context(), c.Param("id"), req.ToBilling(), claims.Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, status, result)
}

// Confirm godoc
// @Summary Retry the outstanding first payment of an incomplete subscription
// @Tags Subscriptions
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/subscription/confirm [post]
func (h *SubscriptionHandler) Confirm(c *gin.Context) {
	h.act(c, func(ctx context.Context, id string, actor models.Actor) (*models.ActionResult, error) {
		return h.service.ConfirmPayment(ctx, id, actor)
	})
}

// Cancel godoc
// @Summary Cancel a subscription at period end or immediately
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body dto.CancelSubscriptionRequest false "Cancellation mode"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/subscription/cancel [post]
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	var req dto.CancelSubscriptionRequest
	if err := bindPayload(c, &req, true, "invalid cancellation payload"); err != nil {
		response.Error(c, err)
		return
	}
	h.act(c, func(ctx context.Context, id string, actor models.Actor) (*models.ActionResult, error) {
		return h.service.Cancel(ctx, id, req.Immediate, actor)
	})
}

// UndoCancel godoc
// @Summary Withdraw a scheduled cancellation
// @Tags Subscriptions
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/subscription/undo-cancel [post]
func (h *SubscriptionHandler) UndoCancel(c *gin.Context) {
	h.act(c, func(ctx context.Context, id string, actor models.Actor) (*models.ActionResult, error) {
		return h.service.UndoCancel(ctx, id, actor)
	})
}

// Sync godoc
// @Summary Refresh local subscription fields from the provider
// @Tags Subscriptions
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/subscription/sync [post]
func (h *SubscriptionHandler) Sync(c *gin.Context) {
	if h.sync == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "subscription sync not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.sync.Sync(c.Request.Context(), c.Param("id"), claims.Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

func (h *SubscriptionHandler) act(c *gin.Context, fn func(ctx context.Context, enrollmentID string, actor models.Actor) (*models.ActionResult, error)) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "subscription service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := fn(c.Request.Context(), c.Param("id"), claims.Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}
