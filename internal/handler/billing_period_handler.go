package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-billing-api/internal/models"
	"github.com/noah-isme/course-billing-api/internal/service"
	appErrors "github.com/noah-isme/course-billing-api/pkg/errors"
	"github.com/noah-isme/course-billing-api/pkg/response"
)

type billingReportService interface {
	Report(ctx context.Context, enrollmentID string) (*models.BillingReport, error)
	Statement(ctx context.Context, enrollmentID string, format service.StatementFormat) (*service.Statement, error)
}

// BillingPeriodHandler serves the reconciled billing periods of an enrollment.
type BillingPeriodHandler struct {
	service billingReportService
}

// NewBillingPeriodHandler constructs the handler.
func NewBillingPeriodHandler(service billingReportService) *BillingPeriodHandler {
	return &BillingPeriodHandler{service: service}
}

// List godoc
// @Summary List billing periods reconciled against orders
// @Tags BillingPeriods
// @Produce json
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Enrollment ID"
// @Param format query string false "csv or pdf to download a statement"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/billing-periods [get]
func (h *BillingPeriodHandler) List(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "billing report service not configured"))
		return
	}
	if format := strings.TrimSpace(c.Query("format")); format != "" && !strings.EqualFold(format, "json") {
		statement, err := h.service.Statement(c.Request.Context(), c.Param("id"), service.StatementFormat(format))
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Attachment(c, statement.Filename, statement.ContentType, statement.Data)
		return
	}
	report, err := h.service.Report(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report)
}
