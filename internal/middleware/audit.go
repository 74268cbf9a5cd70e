package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-billing-api/internal/models"
)

// Audit attaches the client IP and user agent to the request context so service-level
// audit records can name where an action came from.
func Audit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := models.WithRequestOrigin(c.Request.Context(), models.RequestOrigin{
			IPAddress: c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
