package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/personainsights/server/internal/auth"
	"github.com/personainsights/server/internal/realtime"
	"github.com/personainsights/server/pkg/errors"
	"github.com/personainsights/server/pkg/response"
)

// RealtimeHandler upgrades authenticated requests to websocket sessions.
// Browsers cannot set headers on websocket handshakes, so the access token
// may also arrive as a query parameter.
type RealtimeHandler struct {
	hub *realtime.Hub
	jwt *auth.JWTService
}

// NewRealtimeHandler constructs a RealtimeHandler.
func NewRealtimeHandler(hub *realtime.Hub, jwt *auth.JWTService) *RealtimeHandler {
	return &RealtimeHandler{hub: hub, jwt: jwt}
}

// Stream authenticates the caller and hands the connection to the hub.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	token := extractStreamToken(c)
	if token == "" {
		response.Error(c, errors.ErrUnauthorized.WithMessage("missing access token"))
		return
	}

	claims, err := h.jwt.ValidateAccessToken(token)
	if err != nil {
		response.Error(c, errors.ErrUnauthorized.WithMessage("invalid access token"))
		return
	}

	streams := splitStreams(c.Query("streams"))
	h.hub.Serve(claims.ProfileID, streams, c.Writer, c.Request)
}

func extractStreamToken(c *gin.Context) string {
	if token := strings.TrimSpace(c.Query("token")); token != "" {
		return token
	}
	if token := strings.TrimSpace(c.Query("access_token")); token != "" {
		return token
	}
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}

func splitStreams(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{realtime.StreamNotifications}
	}
	parts := strings.Split(raw, ",")
	streams := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			streams = append(streams, trimmed)
		}
	}
	if len(streams) == 0 {
		return []string{realtime.StreamNotifications}
	}
	return streams
}
