package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/personainsights/server/internal/handlers/testutil"
	"github.com/personainsights/server/internal/models"
)

func TestAuthHandler_RegisterLoginMe(t *testing.T) {
	env := testutil.NewEnv(t)

	account := env.Register("casey@example.com", "AuthPassw0rd!")
	require.Equal(t, "casey@example.com", account.Profile.Email)

	login := env.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "Casey@Example.com",
		"password": "AuthPassw0rd!",
	}, "")
	require.Equal(t, http.StatusOK, login.Code, login.Body.String())

	me := env.Request(http.MethodGet, "/api/auth/me", nil, account.Token)
	require.Equal(t, http.StatusOK, me.Code)
	meResp := testutil.DecodeResponse(t, me)
	require.True(t, meResp.Success)

	var profile models.Profile
	testutil.DecodeInto(t, meResp.Data, &profile)
	require.Equal(t, account.Profile.ID, profile.ID)

	unauth := env.Request(http.MethodGet, "/api/auth/me", nil, "")
	require.Equal(t, http.StatusUnauthorized, unauth.Code)
}

func TestAuthHandler_LoginRejectsWrongPassword(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Register("casey@example.com", "AuthPassw0rd!")

	resp := env.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "casey@example.com",
		"password": "not-the-password",
	}, "")
	require.Equal(t, http.StatusUnauthorized, resp.Code)
	decoded := testutil.DecodeResponse(t, resp)
	require.False(t, decoded.Success)
	require.NotNil(t, decoded.Error)
	require.Equal(t, "INVALID_CREDENTIALS", decoded.Error.Code)
}

func TestAuthHandler_RegisterValidation(t *testing.T) {
	env := testutil.NewEnv(t)

	resp := env.Request(http.MethodPost, "/api/auth/register", map[string]string{
		"email":    "not-an-email",
		"password": "short",
	}, "")
	require.Equal(t, http.StatusBadRequest, resp.Code)
	decoded := testutil.DecodeResponse(t, resp)
	require.False(t, decoded.Success)
	require.NotNil(t, decoded.Error)
	require.Equal(t, "BAD_REQUEST", decoded.Error.Code)
}

func TestAuthHandler_DuplicateEmailConflicts(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Register("casey@example.com", "AuthPassw0rd!")

	resp := env.Request(http.MethodPost, "/api/auth/register", map[string]string{
		"email":    "casey@example.com",
		"password": "AnotherPass1!",
	}, "")
	require.Equal(t, http.StatusConflict, resp.Code)
}
