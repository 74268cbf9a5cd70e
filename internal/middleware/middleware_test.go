package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-billing-api/internal/models"
	appErrors "github.com/noah-isme/course-billing-api/pkg/errors"
)

type validatorStub map[string]*models.JWTClaims

func (v validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := v[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Wrap(errors.New("bad token"), appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
}

func billingRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	tokens := validatorStub{
		"finance": {UserID: "fin-1", Role: models.RoleFinance},
		"staff":   {UserID: "staff-1", Role: models.RoleStaff},
	}
	r.GET("/orders", JWT(tokens), RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleFinance), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestJWTAndRoles(t *testing.T) {
	cases := []struct {
		name   string
		header string
		status int
	}{
		{name: "missing header", status: http.StatusUnauthorized},
		{name: "malformed header", header: "Token finance", status: http.StatusUnauthorized},
		{name: "invalid token", header: "Bearer nope", status: http.StatusUnauthorized},
		{name: "role not allowed", header: "Bearer staff", status: http.StatusForbidden},
		{name: "finance allowed", header: "Bearer finance", status: http.StatusNoContent},
	}
	r := billingRouter()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodGet, "/orders", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestAuditAttachesRequestOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var origin models.RequestOrigin
	var found bool
	r.POST("/x", Audit(), func(c *gin.Context) {
		origin, found = models.RequestOriginFrom(c.Request.Context())
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/x", nil)
	req.RemoteAddr = "203.0.113.7:5000"
	req.Header.Set("User-Agent", "backoffice/2.1")
	r.ServeHTTP(w, req)

	require.True(t, found)
	assert.Equal(t, "203.0.113.7", origin.IPAddress)
	assert.Equal(t, "backoffice/2.1", origin.UserAgent)
}
