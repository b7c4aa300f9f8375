package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/personainsights/server/internal/api"
	"github.com/personainsights/server/internal/app"
	iauth "github.com/personainsights/server/internal/auth"
	"github.com/personainsights/server/internal/database"
	"github.com/personainsights/server/internal/middleware"
	"github.com/personainsights/server/internal/models"
	"github.com/personainsights/server/pkg/response"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database
// for handler tests.
type Env struct {
	T      *testing.T
	DB     *gorm.DB
	Router *gin.Engine
	JWT    *iauth.JWTService
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Prepare(db))
	t.Cleanup(func() {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
	})

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         "test-suite-super-secret-key-32-bytes!!",
		Issuer:         "test-suite",
		AccessTokenTTL: time.Hour,
	})
	require.NoError(t, err)

	cfg := &app.Config{
		Server: app.ServerConfig{
			RateLimit: app.RateLimitConfig{MaxRequests: 1000, Window: time.Minute},
		},
		Sharing: app.SharingConfig{DefaultVisible: true},
	}

	router, err := api.NewRouter(db, jwtSvc, cfg, api.Dependencies{
		RateStore: middleware.NewMemoryRateStore(),
	})
	require.NoError(t, err)

	return &Env{T: t, DB: db, Router: router, JWT: jwtSvc}
}

// Account bundles a registered profile with its access token.
type Account struct {
	Profile models.Profile
	Token   string
}

type registerPayload struct {
	Profile models.Profile `json:"profile"`
	Token   string         `json:"token"`
}

// Register creates a profile through the public endpoint and returns it with
// an access token.
func (e *Env) Register(email, password string) Account {
	e.T.Helper()

	payload := map[string]string{
		"email":    email,
		"password": password,
	}

	w := e.Request(http.MethodPost, "/api/auth/register", payload, "")
	require.Equal(e.T, http.StatusCreated, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var registered registerPayload
	DecodeInto(e.T, resp.Data, &registered)
	require.NotEmpty(e.T, registered.Token)
	require.NotEmpty(e.T, registered.Profile.ID)

	return Account{Profile: registered.Profile, Token: registered.Token}
}

// APIResponse mirrors the envelope the API writes, with Data left raw so
// callers decode it into the type under test.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse reads the envelope from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto decodes the envelope and then its data payload into dest.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("dest must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON
// encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
