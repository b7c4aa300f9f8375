package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/personainsights/server/internal/models"
	apperrors "github.com/personainsights/server/pkg/errors"
)

// RecordConversationInput captures one finished assessment conversation.
type RecordConversationInput struct {
	ProfileID       string
	Title           string
	Summary         string
	Messages        []map[string]any
	DurationSeconds int
}

// AddInsightInput captures one AI-derived observation.
type AddInsightInput struct {
	ProfileID  string
	Category   string
	Content    string
	Confidence float64
}

// OceanInput carries Big-Five trait scores on a 0..1 scale.
type OceanInput struct {
	Openness          float64
	Conscientiousness float64
	Extraversion      float64
	Agreeableness     float64
	Neuroticism       float64
}

// InsightService records assessment output: conversations, key insights and
// OCEAN trait scores. Writes notify the analytics layer so cached team views
// refresh.
type InsightService struct {
	db        *gorm.DB
	analytics *AnalyticsService
}

// NewInsightService constructs an InsightService. The analytics service is
// optional; without it writes simply skip cache invalidation.
func NewInsightService(db *gorm.DB, analytics *AnalyticsService) (*InsightService, error) {
	if db == nil {
		return nil, errors.New("insight service: db is required")
	}
	return &InsightService{db: db, analytics: analytics}, nil
}

// RecordConversation persists a conversation and schedules analytics
// invalidation for the profile's teams.
func (s *InsightService) RecordConversation(ctx context.Context, input RecordConversationInput) (*models.Conversation, error) {
	ctx = ensureContext(ctx)

	profileID := strings.TrimSpace(input.ProfileID)
	if profileID == "" {
		return nil, apperrors.NewBadRequest("profile id is required")
	}
	if input.DurationSeconds < 0 {
		return nil, apperrors.NewBadRequest("duration cannot be negative")
	}

	conversation := &models.Conversation{
		ProfileID:       profileID,
		Title:           strings.TrimSpace(input.Title),
		Summary:         strings.TrimSpace(input.Summary),
		DurationSeconds: input.DurationSeconds,
	}
	if len(input.Messages) > 0 {
		payload, err := json.Marshal(input.Messages)
		if err != nil {
			return nil, fmt.Errorf("insight service: encode messages: %w", err)
		}
		conversation.Messages = datatypes.JSON(payload)
	}

	if err := s.db.WithContext(ctx).Create(conversation).Error; err != nil {
		return nil, fmt.Errorf("insight service: create conversation: %w", err)
	}

	if s.analytics != nil {
		s.analytics.InvalidateForMember(ctx, profileID)
	}
	return conversation, nil
}

// ListConversations returns a profile's conversations newest first.
func (s *InsightService) ListConversations(ctx context.Context, profileID string, limit, offset int) ([]models.Conversation, error) {
	ctx = ensureContext(ctx)

	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return nil, apperrors.NewBadRequest("profile id is required")
	}
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	if offset < 0 {
		offset = 0
	}

	var conversations []models.Conversation
	if err := s.db.WithContext(ctx).
		Where("profile_id = ?", profileID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&conversations).Error; err != nil {
		return nil, fmt.Errorf("insight service: list conversations: %w", err)
	}
	return conversations, nil
}

// AddInsight persists a key insight.
func (s *InsightService) AddInsight(ctx context.Context, input AddInsightInput) (*models.KeyInsight, error) {
	ctx = ensureContext(ctx)

	profileID := strings.TrimSpace(input.ProfileID)
	category := strings.TrimSpace(strings.ToLower(input.Category))
	content := strings.TrimSpace(input.Content)
	if profileID == "" || category == "" || content == "" {
		return nil, apperrors.NewBadRequest("profile id, category and content are required")
	}

	insight := &models.KeyInsight{
		ProfileID:  profileID,
		Category:   category,
		Content:    content,
		Confidence: clampUnit(input.Confidence),
	}
	if err := s.db.WithContext(ctx).Create(insight).Error; err != nil {
		return nil, fmt.Errorf("insight service: create insight: %w", err)
	}

	if s.analytics != nil {
		s.analytics.InvalidateForMember(ctx, profileID)
	}
	return insight, nil
}

// ListInsights returns a profile's insights, optionally filtered by category.
func (s *InsightService) ListInsights(ctx context.Context, profileID, category string) ([]models.KeyInsight, error) {
	ctx = ensureContext(ctx)

	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return nil, apperrors.NewBadRequest("profile id is required")
	}

	query := s.db.WithContext(ctx).
		Where("profile_id = ?", profileID).
		Order("created_at DESC")
	if category = strings.TrimSpace(strings.ToLower(category)); category != "" {
		query = query.Where("category = ?", category)
	}

	var insights []models.KeyInsight
	if err := query.Find(&insights).Error; err != nil {
		return nil, fmt.Errorf("insight service: list insights: %w", err)
	}
	return insights, nil
}

// UpsertOceanScore stores the profile's current trait scores, replacing any
// earlier assessment.
func (s *InsightService) UpsertOceanScore(ctx context.Context, profileID string, input OceanInput) (*models.OceanScore, error) {
	ctx = ensureContext(ctx)

	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return nil, apperrors.NewBadRequest("profile id is required")
	}

	score := &models.OceanScore{
		ProfileID:         profileID,
		Openness:          clampUnit(input.Openness),
		Conscientiousness: clampUnit(input.Conscientiousness),
		Extraversion:      clampUnit(input.Extraversion),
		Agreeableness:     clampUnit(input.Agreeableness),
		Neuroticism:       clampUnit(input.Neuroticism),
	}

	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "profile_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"openness", "conscientiousness", "extraversion", "agreeableness", "neuroticism", "updated_at",
		}),
	}).Create(score).Error; err != nil {
		return nil, fmt.Errorf("insight service: upsert ocean score: %w", err)
	}

	if s.analytics != nil {
		s.analytics.InvalidateForMember(ctx, profileID)
	}
	return score, nil
}

// OceanScore returns the profile's current trait scores.
func (s *InsightService) OceanScore(ctx context.Context, profileID string) (*models.OceanScore, error) {
	ctx = ensureContext(ctx)

	var score models.OceanScore
	err := s.db.WithContext(ctx).First(&score, "profile_id = ?", strings.TrimSpace(profileID)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("insight service: load ocean score: %w", err)
	}
	return &score, nil
}

func clampUnit(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
