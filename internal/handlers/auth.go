package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	iauth "github.com/personainsights/server/internal/auth"
	"github.com/personainsights/server/internal/middleware"
	"github.com/personainsights/server/internal/services"
	"github.com/personainsights/server/pkg/errors"
	"github.com/personainsights/server/pkg/response"
)

// AuthHandler exposes registration, login and identity endpoints.
type AuthHandler struct {
	profiles *services.ProfileService
	jwt      *iauth.JWTService
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, jwt *iauth.JWTService) (*AuthHandler, error) {
	profiles, err := services.NewProfileService(db)
	if err != nil {
		return nil, err
	}
	return &AuthHandler{profiles: profiles, jwt: jwt}, nil
}

type registerRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8,max=128"`
	DisplayName string `json:"display_name" validate:"max=128"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Register creates a profile and returns it with a fresh access token.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	profile, err := h.profiles.Register(requestContext(c), services.RegisterProfileInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	token, err := h.jwt.GenerateAccessToken(profile.ID, profile.Email)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"profile": profile,
		"token":   token,
	})
}

// Login verifies credentials and returns an access token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	profile, err := h.profiles.Authenticate(requestContext(c), req.Email, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	token, err := h.jwt.GenerateAccessToken(profile.ID, profile.Email)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"profile": profile,
		"token":   token,
	})
}

// Me returns the authenticated profile.
func (h *AuthHandler) Me(c *gin.Context) {
	profileID := c.GetString(middleware.CtxProfileIDKey)
	if profileID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	profile, err := h.profiles.GetByID(requestContext(c), profileID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, profile)
}
