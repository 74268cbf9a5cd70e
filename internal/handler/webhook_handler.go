package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/course-billing-api/internal/integration/stripe"
	"github.com/noah-isme/course-billing-api/internal/models"
	appErrors "github.com/noah-isme/course-billing-api/pkg/errors"
	"github.com/noah-isme/course-billing-api/pkg/middleware/requestid"
	"github.com/noah-isme/course-billing-api/pkg/response"
)

const maxWebhookBody = 64 << 10

type eventParser interface {
	Parse(payload []byte, signature string) (*models.ProviderEvent, error)
}

type eventHandler interface {
	HandleEvent(ctx context.Context, event models.ProviderEvent) (*models.ActionResult, error)
}

// WebhookHandler receives provider event notifications.
type WebhookHandler struct {
	parser eventParser
	events eventHandler
	logger *zap.Logger
}

// NewWebhookHandler constructs the handler.
func NewWebhookHandler(parser eventParser, events eventHandler, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{parser: parser, events: events, logger: logger}
}

// Stripe godoc
// @Summary Receive Stripe event notifications
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param Stripe-Signature header string true "Event signature"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /webhooks/stripe [post]
func (h *WebhookHandler) Stripe(c *gin.Context) {
	if h.parser == nil || h.events == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "webhooks not configured"))
		return
	}
	log := h.logger.With(zap.String("request_id", requestid.FromContext(c.Request.Context())))
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unreadable webhook body"))
		return
	}
	event, err := h.parser.Parse(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, stripe.ErrInvalidSignature) {
			log.Warn("rejected webhook", zap.Error(err))
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid webhook signature"))
			return
		}
		response.Error(c, err)
		return
	}
	result, err := h.events.HandleEvent(c.Request.Context(), *event)
	if err != nil {
		log.Error("webhook processing failed", zap.String("event_id", event.ID), zap.String("type", event.Type), zap.Error(err))
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"received": true, "changed": result != nil && result.Changed})
}
