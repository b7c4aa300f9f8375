package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/personainsights/server/internal/middleware"
	"github.com/personainsights/server/internal/services"
	"github.com/personainsights/server/pkg/errors"
	"github.com/personainsights/server/pkg/response"
)

// SharingHandler exposes sharing preferences and the manager-facing employee
// overview.
type SharingHandler struct {
	sharing *services.SharingService
	teams   *services.TeamService
}

// NewSharingHandler constructs a SharingHandler.
func NewSharingHandler(sharing *services.SharingService, teams *services.TeamService) *SharingHandler {
	return &SharingHandler{sharing: sharing, teams: teams}
}

type updateSharingRequest struct {
	ShareProfile       *bool `json:"share_profile"`
	ShareInsights      *bool `json:"share_insights"`
	ShareConversations *bool `json:"share_conversations"`
	ShareOcean         *bool `json:"share_ocean"`
	ShareProgress      *bool `json:"share_progress"`
}

// List returns the caller's preferences towards each of their managers.
func (h *SharingHandler) List(c *gin.Context) {
	employeeID := c.GetString(middleware.CtxProfileIDKey)
	if employeeID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	preferences, err := h.sharing.ListForEmployee(requestContext(c), employeeID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, preferences)
}

// Get returns the caller's preferences towards one manager.
func (h *SharingHandler) Get(c *gin.Context) {
	employeeID := c.GetString(middleware.CtxProfileIDKey)
	if employeeID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	managerID := strings.TrimSpace(c.Param("managerID"))
	preference, err := h.sharing.Get(requestContext(c), employeeID, managerID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, preference)
}

// Update applies partial changes to the caller's switches for one manager.
// Only the employee side of the pair can reach this endpoint.
func (h *SharingHandler) Update(c *gin.Context) {
	employeeID := c.GetString(middleware.CtxProfileIDKey)
	if employeeID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	managerID := strings.TrimSpace(c.Param("managerID"))

	var req updateSharingRequest
	if !bindAndValidate(c, &req) {
		return
	}

	preference, err := h.sharing.Update(requestContext(c), employeeID, managerID, services.UpdateSharingInput{
		ShareProfile:       req.ShareProfile,
		ShareInsights:      req.ShareInsights,
		ShareConversations: req.ShareConversations,
		ShareOcean:         req.ShareOcean,
		ShareProgress:      req.ShareProgress,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, preference)
}

// EmployeeOverview returns the sharing-filtered view of one team member.
// Requires the manager capability.
func (h *SharingHandler) EmployeeOverview(c *gin.Context) {
	managerID := c.GetString(middleware.CtxProfileIDKey)
	if managerID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	allowed, err := h.teams.CanAccessManagerDashboard(requestContext(c), managerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !allowed {
		response.Error(c, errors.ErrForbidden)
		return
	}

	employeeID := strings.TrimSpace(c.Param("employeeID"))
	overview, err := h.sharing.EmployeeOverview(requestContext(c), managerID, employeeID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, overview)
}
