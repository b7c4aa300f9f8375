package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/personainsights/server/internal/middleware"
	"github.com/personainsights/server/internal/services"
	"github.com/personainsights/server/pkg/errors"
	"github.com/personainsights/server/pkg/response"
)

// ProfileHandler exposes profile read and update endpoints.
type ProfileHandler struct {
	profiles *services.ProfileService
}

// NewProfileHandler constructs a ProfileHandler.
func NewProfileHandler(profiles *services.ProfileService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

type updateProfileRequest struct {
	DisplayName    *string `json:"display_name" validate:"omitempty,max=128"`
	TeamName       *string `json:"team_name" validate:"omitempty,max=128"`
	CanManageTeams *bool   `json:"can_manage_teams"`
	CanBeManaged   *bool   `json:"can_be_managed"`
}

// Get returns the caller's profile.
func (h *ProfileHandler) Get(c *gin.Context) {
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

// Update applies partial changes to the caller's profile.
func (h *ProfileHandler) Update(c *gin.Context) {
	profileID := c.GetString(middleware.CtxProfileIDKey)
	if profileID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req updateProfileRequest
	if !bindAndValidate(c, &req) {
		return
	}

	profile, err := h.profiles.Update(requestContext(c), profileID, services.UpdateProfileInput{
		DisplayName:    req.DisplayName,
		TeamName:       req.TeamName,
		CanManageTeams: req.CanManageTeams,
		CanBeManaged:   req.CanBeManaged,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, profile)
}
