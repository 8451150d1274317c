package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/campuskit/scheduler-api/internal/models"
)

func performWithRole(role models.UserRole, allowed ...models.UserRole) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/protected",
		func(c *gin.Context) {
			c.Set(ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: role})
		},
		RequireRoles(allowed...),
		func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"ok": true})
		})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/protected", nil))
	return rec
}

func TestRequireRoles(t *testing.T) {
	assert.Equal(t, http.StatusOK, performWithRole(models.RoleFaculty, models.RoleFaculty).Code)
	assert.Equal(t, http.StatusForbidden, performWithRole(models.RoleStudent, models.RoleFaculty).Code)
	assert.Equal(t, http.StatusOK, performWithRole(models.RoleStudent, models.RoleStudent, models.RoleFaculty).Code)
}

func TestRequireRolesWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/protected", RequireRoles(models.RoleFaculty), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/protected", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
