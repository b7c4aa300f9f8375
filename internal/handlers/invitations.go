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

// InvitationHandler exposes the invitation workflow over HTTP.
type InvitationHandler struct {
	invitations *services.InvitationService
	profiles    *services.ProfileService
}

// NewInvitationHandler constructs an InvitationHandler.
func NewInvitationHandler(invitations *services.InvitationService, profiles *services.ProfileService) *InvitationHandler {
	return &InvitationHandler{invitations: invitations, profiles: profiles}
}

type createInvitationRequest struct {
	Email string `json:"email" validate:"required,email"`
	Type  string `json:"type" validate:"required,oneof=manager_request team_join"`
}

type resolveInvitationRequest struct {
	Accept bool `json:"accept"`
}

// Create issues an invitation from the authenticated profile.
func (h *InvitationHandler) Create(c *gin.Context) {
	inviterID := c.GetString(middleware.CtxProfileIDKey)
	if inviterID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req createInvitationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	invitation, token, err := h.invitations.Create(requestContext(c), services.CreateInvitationInput{
		InviterID: inviterID,
		Email:     req.Email,
		Type:      req.Type,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	// The raw token appears exactly once, in this response.
	response.Success(c, http.StatusCreated, gin.H{
		"invitation": invitation,
		"token":      token,
	})
}

// Preview returns the invitation behind a token without consuming it.
func (h *InvitationHandler) Preview(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))

	preview, err := h.invitations.Preview(requestContext(c), token)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, preview)
}

// Resolve accepts or declines the invitation on behalf of the caller.
func (h *InvitationHandler) Resolve(c *gin.Context) {
	resolverID := c.GetString(middleware.CtxProfileIDKey)
	if resolverID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	token := strings.TrimSpace(c.Param("token"))

	var req resolveInvitationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	invitation, err := h.invitations.Resolve(requestContext(c), token, resolverID, req.Accept)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, invitation)
}

// ListSent returns the invitations the caller has issued.
func (h *InvitationHandler) ListSent(c *gin.Context) {
	profileID := c.GetString(middleware.CtxProfileIDKey)
	if profileID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	invitations, err := h.invitations.ListSent(requestContext(c), profileID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, invitations)
}

// ListReceived returns the invitations addressed to the caller's email.
func (h *InvitationHandler) ListReceived(c *gin.Context) {
	email := c.GetString(middleware.CtxEmailKey)
	if email == "" {
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
		email = profile.Email
	}

	invitations, err := h.invitations.ListReceived(requestContext(c), email)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, invitations)
}
