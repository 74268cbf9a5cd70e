package handler

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/course-billing-api/internal/middleware"
	"github.com/noah-isme/course-billing-api/internal/models"
	appErrors "github.com/noah-isme/course-billing-api/pkg/errors"
)

var payloadValidator = validator.New()

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// bindPayload decodes and validates a JSON body. An empty body is accepted when optional is set.
func bindPayload(c *gin.Context, dst interface{}, optional bool, message string) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		if !optional || !errors.Is(err, io.EOF) {
			return appErrors.Clone(appErrors.ErrValidation, message)
		}
	}
	if err := payloadValidator.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			details := make(map[string]interface{}, len(fieldErrs))
			for _, fe := range fieldErrs {
				details[fe.Namespace()] = fe.Tag()
			}
			return appErrors.Clone(appErrors.ErrValidation, message).WithDetails(details)
		}
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
	}
	return nil
}
