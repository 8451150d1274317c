package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campuskit/scheduler-api/internal/models"
	appErrors "github.com/campuskit/scheduler-api/pkg/errors"
	"github.com/campuskit/scheduler-api/pkg/response"
)

type authService interface {
	DevLogin(ctx context.Context, req models.DevLoginRequest) (*models.DevLoginResponse, error)
}

// AuthHandler exposes the development-only token issuance endpoint.
type AuthHandler struct {
	service authService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(svc authService) *AuthHandler {
	return &AuthHandler{service: svc}
}

// DevLogin godoc
// @Summary Issue an access token for a seeded user
// @Tags Auth
// @Accept json
// @Produce json
// @Param payload body models.DevLoginRequest true "Credentials"
// @Success 200 {object} response.Envelope
// @Router /auth/dev/login [post]
func (h *AuthHandler) DevLogin(c *gin.Context) {
	var req models.DevLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.service.DevLogin(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
