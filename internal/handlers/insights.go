package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/personainsights/server/internal/middleware"
	"github.com/personainsights/server/internal/services"
	"github.com/personainsights/server/pkg/errors"
	"github.com/personainsights/server/pkg/response"
)

// InsightHandler exposes the caller's own assessment data: conversations,
// key insights and OCEAN scores.
type InsightHandler struct {
	insights *services.InsightService
}

// NewInsightHandler constructs an InsightHandler.
func NewInsightHandler(insights *services.InsightService) *InsightHandler {
	return &InsightHandler{insights: insights}
}

type recordConversationRequest struct {
	Title           string           `json:"title" validate:"max=255"`
	Summary         string           `json:"summary"`
	Messages        []map[string]any `json:"messages"`
	DurationSeconds int              `json:"duration_seconds" validate:"min=0"`
}

type addInsightRequest struct {
	Category   string  `json:"category" validate:"required,max=64"`
	Content    string  `json:"content" validate:"required"`
	Confidence float64 `json:"confidence"`
}

type oceanRequest struct {
	Openness          float64 `json:"openness" validate:"min=0,max=1"`
	Conscientiousness float64 `json:"conscientiousness" validate:"min=0,max=1"`
	Extraversion      float64 `json:"extraversion" validate:"min=0,max=1"`
	Agreeableness     float64 `json:"agreeableness" validate:"min=0,max=1"`
	Neuroticism       float64 `json:"neuroticism" validate:"min=0,max=1"`
}

// RecordConversation stores a finished conversation for the caller.
func (h *InsightHandler) RecordConversation(c *gin.Context) {
	profileID := c.GetString(middleware.CtxProfileIDKey)
	if profileID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req recordConversationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	conversation, err := h.insights.RecordConversation(requestContext(c), services.RecordConversationInput{
		ProfileID:       profileID,
		Title:           req.Title,
		Summary:         req.Summary,
		Messages:        req.Messages,
		DurationSeconds: req.DurationSeconds,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, conversation)
}

// ListConversations returns the caller's conversations.
func (h *InsightHandler) ListConversations(c *gin.Context) {
	profileID := c.GetString(middleware.CtxProfileIDKey)
	if profileID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	conversations, err := h.insights.ListConversations(requestContext(c), profileID,
		parseIntQuery(c, "limit", 25),
		parseIntQuery(c, "offset", 0))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, conversations)
}

// AddInsight stores a key insight for the caller.
func (h *InsightHandler) AddInsight(c *gin.Context) {
	profileID := c.GetString(middleware.CtxProfileIDKey)
	if profileID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req addInsightRequest
	if !bindAndValidate(c, &req) {
		return
	}

	insight, err := h.insights.AddInsight(requestContext(c), services.AddInsightInput{
		ProfileID:  profileID,
		Category:   req.Category,
		Content:    req.Content,
		Confidence: req.Confidence,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, insight)
}

// ListInsights returns the caller's insights, optionally filtered by category.
func (h *InsightHandler) ListInsights(c *gin.Context) {
	profileID := c.GetString(middleware.CtxProfileIDKey)
	if profileID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	insights, err := h.insights.ListInsights(requestContext(c), profileID, c.Query("category"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, insights)
}

// UpsertOcean stores the caller's trait scores.
func (h *InsightHandler) UpsertOcean(c *gin.Context) {
	profileID := c.GetString(middleware.CtxProfileIDKey)
	if profileID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req oceanRequest
	if !bindAndValidate(c, &req) {
		return
	}

	score, err := h.insights.UpsertOceanScore(requestContext(c), profileID, services.OceanInput{
		Openness:          req.Openness,
		Conscientiousness: req.Conscientiousness,
		Extraversion:      req.Extraversion,
		Agreeableness:     req.Agreeableness,
		Neuroticism:       req.Neuroticism,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, score)
}

// GetOcean returns the caller's trait scores.
func (h *InsightHandler) GetOcean(c *gin.Context) {
	profileID := c.GetString(middleware.CtxProfileIDKey)
	if profileID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	score, err := h.insights.OceanScore(requestContext(c), profileID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, score)
}
