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

// TeamHandler exposes team membership and manager dashboard endpoints.
type TeamHandler struct {
	teams     *services.TeamService
	analytics *services.AnalyticsService
}

// NewTeamHandler constructs a TeamHandler.
func NewTeamHandler(teams *services.TeamService, analytics *services.AnalyticsService) *TeamHandler {
	return &TeamHandler{teams: teams, analytics: analytics}
}

// ListMembers returns the caller's team roster.
func (h *TeamHandler) ListMembers(c *gin.Context) {
	managerID := c.GetString(middleware.CtxProfileIDKey)
	if managerID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	members, err := h.teams.ListMembers(requestContext(c), managerID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"members": members,
		"count":   len(members),
	})
}

// RemoveMember detaches a member from the caller's team.
func (h *TeamHandler) RemoveMember(c *gin.Context) {
	managerID := c.GetString(middleware.CtxProfileIDKey)
	if managerID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	memberID := strings.TrimSpace(c.Param("memberID"))
	if err := h.teams.RemoveMember(requestContext(c), managerID, memberID); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"removed": true})
}

// MyTeam returns the team the caller manages.
func (h *TeamHandler) MyTeam(c *gin.Context) {
	managerID := c.GetString(middleware.CtxProfileIDKey)
	if managerID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	team, err := h.teams.TeamFor(requestContext(c), managerID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, team)
}

// DashboardAccess reports whether the caller may open the manager dashboard.
func (h *TeamHandler) DashboardAccess(c *gin.Context) {
	profileID := c.GetString(middleware.CtxProfileIDKey)
	if profileID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	allowed, err := h.teams.CanAccessManagerDashboard(requestContext(c), profileID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"can_access": allowed})
}

// Analytics returns the cached team dashboard for the caller. Access requires
// the manager capability.
func (h *TeamHandler) Analytics(c *gin.Context) {
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

	analytics, err := h.analytics.TeamAnalytics(requestContext(c), managerID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, analytics)
}

// Managers returns the managers whose teams include the caller.
func (h *TeamHandler) Managers(c *gin.Context) {
	profileID := c.GetString(middleware.CtxProfileIDKey)
	if profileID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	managers, err := h.teams.ManagersOf(requestContext(c), profileID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, managers)
}
