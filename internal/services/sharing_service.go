package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/personainsights/server/internal/models"
	apperrors "github.com/personainsights/server/pkg/errors"
)

// ErrNoSharingRelationship signals that the manager does not manage the
// employee, so no sharing preferences can exist between them.
var ErrNoSharingRelationship = apperrors.New("NO_SHARING_RELATIONSHIP", "No managing relationship exists between these profiles", 404)

// SharingFlags carries the five per-category visibility switches.
type SharingFlags struct {
	ShareProfile       bool `json:"share_profile"`
	ShareInsights      bool `json:"share_insights"`
	ShareConversations bool `json:"share_conversations"`
	ShareOcean         bool `json:"share_ocean"`
	ShareProgress      bool `json:"share_progress"`
}

// UpdateSharingInput describes a partial update; nil pointers keep the
// current value.
type UpdateSharingInput struct {
	ShareProfile       *bool
	ShareInsights      *bool
	ShareConversations *bool
	ShareOcean         *bool
	ShareProgress      *bool
}

// ConversationSummary is the manager-facing view of one conversation. The
// raw message log never crosses this boundary.
type ConversationSummary struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Summary         string `json:"summary"`
	DurationSeconds int    `json:"duration_seconds"`
	CreatedAt       string `json:"created_at"`
}

// ProgressSummary aggregates an employee's assessment activity.
type ProgressSummary struct {
	ConversationCount int64 `json:"conversation_count"`
	TotalDuration     int64 `json:"total_duration_seconds"`
	InsightCount      int64 `json:"insight_count"`
}

// EmployeeOverview is the sharing-filtered projection a manager sees for one
// team member. Sections the employee has not shared come back nil; the
// Shared flags tell the dashboard why.
type EmployeeOverview struct {
	EmployeeID    string                `json:"employee_id"`
	DisplayName   string                `json:"display_name"`
	Shared        SharingFlags          `json:"shared"`
	Profile       *models.Profile       `json:"profile,omitempty"`
	Insights      []models.KeyInsight   `json:"insights,omitempty"`
	Conversations []ConversationSummary `json:"conversations,omitempty"`
	Ocean         *models.OceanScore    `json:"ocean,omitempty"`
	Progress      *ProgressSummary      `json:"progress,omitempty"`
}

// SharingService owns per-pair visibility preferences and the projections
// that enforce them. Filtering happens here, before data leaves the server.
type SharingService struct {
	db    *gorm.DB
	teams *TeamService
}

// NewSharingService constructs a SharingService.
func NewSharingService(db *gorm.DB, teams *TeamService) (*SharingService, error) {
	if db == nil {
		return nil, errors.New("sharing service: db is required")
	}
	if teams == nil {
		return nil, errors.New("sharing service: team service is required")
	}
	return &SharingService{db: db, teams: teams}, nil
}

// Get returns the employee's preferences towards one manager.
func (s *SharingService) Get(ctx context.Context, employeeID, managerID string) (*models.SharingPreference, error) {
	ctx = ensureContext(ctx)

	employeeID = strings.TrimSpace(employeeID)
	managerID = strings.TrimSpace(managerID)
	if employeeID == "" || managerID == "" {
		return nil, apperrors.NewBadRequest("employee id and manager id are required")
	}

	var preference models.SharingPreference
	err := s.db.WithContext(ctx).
		First(&preference, "employee_id = ? AND manager_id = ?", employeeID, managerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoSharingRelationship
	}
	if err != nil {
		return nil, fmt.Errorf("sharing service: load preference: %w", err)
	}
	return &preference, nil
}

// ListForEmployee returns the employee's preferences towards every manager.
func (s *SharingService) ListForEmployee(ctx context.Context, employeeID string) ([]models.SharingPreference, error) {
	ctx = ensureContext(ctx)

	employeeID = strings.TrimSpace(employeeID)
	if employeeID == "" {
		return nil, apperrors.NewBadRequest("employee id is required")
	}

	var preferences []models.SharingPreference
	if err := s.db.WithContext(ctx).
		Preload("Manager").
		Where("employee_id = ?", employeeID).
		Order("created_at ASC").
		Find(&preferences).Error; err != nil {
		return nil, fmt.Errorf("sharing service: list preferences: %w", err)
	}
	return preferences, nil
}

// Update applies the employee's changes to their switches for one manager.
// Only the employee side of the pair may call this; the row must already
// exist, which means the managing relationship was accepted at some point.
func (s *SharingService) Update(ctx context.Context, employeeID, managerID string, input UpdateSharingInput) (*models.SharingPreference, error) {
	ctx = ensureContext(ctx)

	preference, err := s.Get(ctx, employeeID, managerID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.ShareProfile != nil {
		updates["share_profile"] = *input.ShareProfile
	}
	if input.ShareInsights != nil {
		updates["share_insights"] = *input.ShareInsights
	}
	if input.ShareConversations != nil {
		updates["share_conversations"] = *input.ShareConversations
	}
	if input.ShareOcean != nil {
		updates["share_ocean"] = *input.ShareOcean
	}
	if input.ShareProgress != nil {
		updates["share_progress"] = *input.ShareProgress
	}

	if len(updates) == 0 {
		return preference, nil
	}

	if err := s.db.WithContext(ctx).Model(preference).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("sharing service: update preference: %w", err)
	}

	if err := s.db.WithContext(ctx).
		First(preference, "employee_id = ? AND manager_id = ?", employeeID, managerID).Error; err != nil {
		return nil, fmt.Errorf("sharing service: reload preference: %w", err)
	}
	return preference, nil
}

// EmployeeOverview builds the manager's view of one team member with every
// section the employee has not shared stripped out.
func (s *SharingService) EmployeeOverview(ctx context.Context, managerID, employeeID string) (*EmployeeOverview, error) {
	ctx = ensureContext(ctx)

	managerID = strings.TrimSpace(managerID)
	employeeID = strings.TrimSpace(employeeID)
	if managerID == "" || employeeID == "" {
		return nil, apperrors.NewBadRequest("manager id and employee id are required")
	}

	isMember, err := s.teams.IsMember(ctx, managerID, employeeID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, apperrors.ErrForbidden.WithMessage("Profile is not a member of your team")
	}

	var employee models.Profile
	if err := s.db.WithContext(ctx).First(&employee, "id = ?", employeeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("sharing service: load employee: %w", err)
	}

	// A missing preference row means nothing was ever shared.
	flags := SharingFlags{}
	if preference, err := s.Get(ctx, employeeID, managerID); err == nil {
		flags = SharingFlags{
			ShareProfile:       preference.ShareProfile,
			ShareInsights:      preference.ShareInsights,
			ShareConversations: preference.ShareConversations,
			ShareOcean:         preference.ShareOcean,
			ShareProgress:      preference.ShareProgress,
		}
	} else if !errors.Is(err, ErrNoSharingRelationship) {
		return nil, err
	}

	overview := &EmployeeOverview{
		EmployeeID:  employee.ID,
		DisplayName: employee.DisplayName,
		Shared:      flags,
	}

	if flags.ShareProfile {
		overview.Profile = &employee
	}

	if flags.ShareInsights {
		var insights []models.KeyInsight
		if err := s.db.WithContext(ctx).
			Where("profile_id = ?", employeeID).
			Order("created_at DESC").
			Find(&insights).Error; err != nil {
			return nil, fmt.Errorf("sharing service: load insights: %w", err)
		}
		overview.Insights = insights
	}

	if flags.ShareConversations {
		var conversations []models.Conversation
		if err := s.db.WithContext(ctx).
			Select("id", "title", "summary", "duration_seconds", "created_at").
			Where("profile_id = ?", employeeID).
			Order("created_at DESC").
			Limit(50).
			Find(&conversations).Error; err != nil {
			return nil, fmt.Errorf("sharing service: load conversations: %w", err)
		}
		summaries := make([]ConversationSummary, 0, len(conversations))
		for _, conversation := range conversations {
			summaries = append(summaries, ConversationSummary{
				ID:              conversation.ID,
				Title:           conversation.Title,
				Summary:         conversation.Summary,
				DurationSeconds: conversation.DurationSeconds,
				CreatedAt:       conversation.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
			})
		}
		overview.Conversations = summaries
	}

	if flags.ShareOcean {
		var score models.OceanScore
		err := s.db.WithContext(ctx).First(&score, "profile_id = ?", employeeID).Error
		if err == nil {
			overview.Ocean = &score
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("sharing service: load ocean score: %w", err)
		}
	}

	if flags.ShareProgress {
		progress := &ProgressSummary{}
		row := s.db.WithContext(ctx).Model(&models.Conversation{}).
			Where("profile_id = ?", employeeID).
			Select("COUNT(*) AS conversation_count, COALESCE(SUM(duration_seconds), 0) AS total_duration").
			Row()
		if err := row.Scan(&progress.ConversationCount, &progress.TotalDuration); err != nil {
			return nil, fmt.Errorf("sharing service: aggregate progress: %w", err)
		}
		if err := s.db.WithContext(ctx).Model(&models.KeyInsight{}).
			Where("profile_id = ?", employeeID).
			Count(&progress.InsightCount).Error; err != nil {
			return nil, fmt.Errorf("sharing service: count insights: %w", err)
		}
		overview.Progress = progress
	}

	return overview, nil
}
