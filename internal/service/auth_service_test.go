package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campuskit/scheduler-api/internal/models"
	appErrors "github.com/campuskit/scheduler-api/pkg/errors"
)

type mockAuthUsers struct {
	user *models.User
}

func (m *mockAuthUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.user == nil {
		return nil, sql.ErrNoRows
	}
	return m.user, nil
}

func (m *mockAuthUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.user == nil {
		return nil, sql.ErrNoRows
	}
	return m.user, nil
}

func seededUser(t *testing.T, password string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	hashStr := string(hash)
	return &models.User{
		ID:           "user-1",
		Email:        "asha@example.edu",
		FullName:     "Asha Verma",
		Role:         models.RoleStudent,
		PasswordHash: &hashStr,
		Active:       true,
	}
}

func devAuthService(users *mockAuthUsers, enabled bool) *AuthService {
	return NewAuthService(users, nil, zap.NewNop(), AuthConfig{
		Secret:          "test-secret",
		Expiry:          time.Hour,
		DevLoginEnabled: enabled,
	})
}

func TestAuthServiceDevLogin(t *testing.T) {
	users := &mockAuthUsers{user: seededUser(t, "s3cret-pass")}
	svc := devAuthService(users, true)

	response, err := svc.DevLogin(context.Background(), models.DevLoginRequest{Email: "asha@example.edu", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.NotEmpty(t, response.AccessToken)
	assert.Equal(t, int64(3600), response.ExpiresIn)
	assert.Equal(t, "user-1", response.User.ID)

	claims, err := svc.ValidateToken(response.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
}

func TestAuthServiceDevLoginDisabled(t *testing.T) {
	svc := devAuthService(&mockAuthUsers{user: seededUser(t, "s3cret-pass")}, false)

	_, err := svc.DevLogin(context.Background(), models.DevLoginRequest{Email: "asha@example.edu", Password: "s3cret-pass"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestAuthServiceDevLoginWrongPassword(t *testing.T) {
	svc := devAuthService(&mockAuthUsers{user: seededUser(t, "s3cret-pass")}, true)

	_, err := svc.DevLogin(context.Background(), models.DevLoginRequest{Email: "asha@example.edu", Password: "wrong"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))
}

func TestAuthServiceDevLoginUnknownUser(t *testing.T) {
	svc := devAuthService(&mockAuthUsers{}, true)

	_, err := svc.DevLogin(context.Background(), models.DevLoginRequest{Email: "nobody@example.edu", Password: "whatever"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))
}

func TestAuthServiceDevLoginInactiveUser(t *testing.T) {
	user := seededUser(t, "s3cret-pass")
	user.Active = false
	svc := devAuthService(&mockAuthUsers{user: user}, true)

	_, err := svc.DevLogin(context.Background(), models.DevLoginRequest{Email: "asha@example.edu", Password: "s3cret-pass"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestAuthServiceValidateTokenRejectsTampering(t *testing.T) {
	users := &mockAuthUsers{user: seededUser(t, "s3cret-pass")}
	issuer := devAuthService(users, true)

	response, err := issuer.DevLogin(context.Background(), models.DevLoginRequest{Email: "asha@example.edu", Password: "s3cret-pass"})
	require.NoError(t, err)

	other := NewAuthService(users, nil, zap.NewNop(), AuthConfig{Secret: "different-secret", Expiry: time.Hour, DevLoginEnabled: true})
	_, err = other.ValidateToken(response.AccessToken)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}
