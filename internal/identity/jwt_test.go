package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/pkg/httputil"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuthenticator() *Authenticator {
	return NewAuthenticator(Config{
		SecretKey:           "test-secret",
		Issuer:              "statusboard",
		AccessTokenDuration: 15 * time.Minute,
	})
}

func TestAuthenticator_IssueAndValidate(t *testing.T) {
	auth := newTestAuthenticator()
	actor := domain.Actor{UserID: "user-1", OrganizationID: "org-1", Role: domain.RoleAdmin}

	token, err := auth.Issue(actor)
	require.NoError(t, err)

	got, err := auth.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, actor, *got)
}

func TestAuthenticator_Issue_IncompleteActor(t *testing.T) {
	auth := newTestAuthenticator()

	_, err := auth.Issue(domain.Actor{UserID: "user-1", Role: domain.RoleMember})
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = auth.Issue(domain.Actor{UserID: "user-1", OrganizationID: "org", Role: "owner"})
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticator_ValidateToken_Expired(t *testing.T) {
	auth := newTestAuthenticator()
	auth.now = func() time.Time { return time.Now().Add(-time.Hour) }

	token, err := auth.Issue(domain.Actor{UserID: "u", OrganizationID: "o", Role: domain.RoleMember})
	require.NoError(t, err)

	auth.now = time.Now
	_, err = auth.ValidateToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticator_ValidateToken_WrongSecret(t *testing.T) {
	token, err := NewAuthenticator(Config{SecretKey: "other", Issuer: "statusboard", AccessTokenDuration: time.Minute}).
		Issue(domain.Actor{UserID: "u", OrganizationID: "o", Role: domain.RoleMember})
	require.NoError(t, err)

	_, err = newTestAuthenticator().ValidateToken(context.Background(), token)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestAuthenticator_ValidateToken_MissingOrganization(t *testing.T) {
	claims := jwt.MapClaims{
		"sub":  "u",
		"role": "member",
		"iss":  "statusboard",
		"exp":  time.Now().Add(time.Minute).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = newTestAuthenticator().ValidateToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestHandler_Me(t *testing.T) {
	h := NewHandler()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req = req.WithContext(httputil.WithActor(req.Context(), &domain.Actor{UserID: "u", OrganizationID: "o", Role: domain.RoleMember}))
	rec := httptest.NewRecorder()

	h.Me(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data MeResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "o", body.Data.OrganizationID)
	assert.Equal(t, "member", body.Data.Role)
}
