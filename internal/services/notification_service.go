package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/personainsights/server/internal/models"
	"github.com/personainsights/server/internal/realtime"
	apperrors "github.com/personainsights/server/pkg/errors"
)

// NotificationDTO is the API-friendly notification payload.
type NotificationDTO struct {
	ID        string         `json:"id"`
	ProfileID string         `json:"profile_id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Severity  string         `json:"severity"`
	ActionURL string         `json:"action_url,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	IsRead    bool           `json:"is_read"`
	CreatedAt time.Time      `json:"created_at"`
	ReadAt    *time.Time     `json:"read_at,omitempty"`
}

// CreateNotificationInput defines the attributes of a new notification.
type CreateNotificationInput struct {
	ProfileID string
	Type      string
	Title     string
	Message   string
	Severity  string
	ActionURL string
	Metadata  map[string]any
}

// ListNotificationsInput filters a profile's notification feed.
type ListNotificationsInput struct {
	ProfileID  string
	UnreadOnly bool
	Limit      int
	Offset     int
}

// NotificationService manages in-app notifications and their realtime fanout.
type NotificationService struct {
	db  *gorm.DB
	hub *realtime.Hub
}

// NewNotificationService returns a NotificationService backed by db. The hub
// is optional; without it notifications are store-only.
func NewNotificationService(db *gorm.DB, hub *realtime.Hub) (*NotificationService, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}
	return &NotificationService{db: db, hub: hub}, nil
}

// Create persists a notification and pushes it to the profile's live
// connections.
func (s *NotificationService) Create(ctx context.Context, input CreateNotificationInput) (*NotificationDTO, error) {
	ctx = ensureContext(ctx)

	profileID := strings.TrimSpace(input.ProfileID)
	if profileID == "" {
		return nil, errors.New("notification service: profile id is required")
	}
	notificationType := strings.TrimSpace(input.Type)
	if notificationType == "" {
		return nil, errors.New("notification service: type is required")
	}

	notification := models.Notification{
		ProfileID: profileID,
		Type:      notificationType,
		Title:     strings.TrimSpace(input.Title),
		Message:   strings.TrimSpace(input.Message),
		Severity:  defaultIfEmpty(strings.TrimSpace(input.Severity), "info"),
		ActionURL: strings.TrimSpace(input.ActionURL),
	}

	if len(input.Metadata) > 0 {
		payload, err := json.Marshal(input.Metadata)
		if err != nil {
			return nil, fmt.Errorf("notification service: encode metadata: %w", err)
		}
		notification.Metadata = datatypes.JSON(payload)
	}

	if err := s.db.WithContext(ctx).Create(&notification).Error; err != nil {
		return nil, fmt.Errorf("notification service: create: %w", err)
	}

	dto := mapNotification(notification)
	if s.hub != nil {
		s.hub.BroadcastToUser(realtime.StreamNotifications, profileID, realtime.Message{
			Event: "notification.created",
			Data:  dto,
		})
	}
	return &dto, nil
}

// ListForProfile returns a profile's notifications ordered by recency.
func (s *NotificationService) ListForProfile(ctx context.Context, input ListNotificationsInput) ([]NotificationDTO, error) {
	ctx = ensureContext(ctx)

	profileID := strings.TrimSpace(input.ProfileID)
	if profileID == "" {
		return nil, errors.New("notification service: profile id is required")
	}

	limit := input.Limit
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	offset := input.Offset
	if offset < 0 {
		offset = 0
	}

	query := s.db.WithContext(ctx).
		Where("profile_id = ?", profileID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset)
	if input.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var rows []models.Notification
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("notification service: list: %w", err)
	}

	out := make([]NotificationDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, mapNotification(row))
	}
	return out, nil
}

// CountUnread returns the number of unread notifications for a profile.
func (s *NotificationService) CountUnread(ctx context.Context, profileID string) (int64, error) {
	ctx = ensureContext(ctx)

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("profile_id = ? AND is_read = ?", strings.TrimSpace(profileID), false).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("notification service: count unread: %w", err)
	}
	return count, nil
}

// MarkRead flags one notification as read. It must belong to the profile.
func (s *NotificationService) MarkRead(ctx context.Context, profileID, notificationID string) error {
	ctx = ensureContext(ctx)

	profileID = strings.TrimSpace(profileID)
	notificationID = strings.TrimSpace(notificationID)
	if profileID == "" || notificationID == "" {
		return apperrors.NewBadRequest("profile id and notification id are required")
	}

	now := time.Now().UTC()
	result := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND profile_id = ?", notificationID, profileID).
		Updates(map[string]any{"is_read": true, "read_at": now})
	if result.Error != nil {
		return fmt.Errorf("notification service: mark read: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}

	if s.hub != nil {
		s.hub.BroadcastToUser(realtime.StreamNotifications, profileID, realtime.Message{
			Event: "notification.read",
			Data:  map[string]any{"notification_id": notificationID},
		})
	}
	return nil
}

// MarkAllRead flags every unread notification for the profile as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, profileID string) (int64, error) {
	ctx = ensureContext(ctx)

	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return 0, apperrors.NewBadRequest("profile id is required")
	}

	now := time.Now().UTC()
	result := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("profile_id = ? AND is_read = ?", profileID, false).
		Updates(map[string]any{"is_read": true, "read_at": now})
	if result.Error != nil {
		return 0, fmt.Errorf("notification service: mark all read: %w", result.Error)
	}

	if result.RowsAffected > 0 && s.hub != nil {
		s.hub.BroadcastToUser(realtime.StreamNotifications, profileID, realtime.Message{
			Event: "notification.read_all",
		})
	}
	return result.RowsAffected, nil
}

func mapNotification(row models.Notification) NotificationDTO {
	dto := NotificationDTO{
		ID:        row.ID,
		ProfileID: row.ProfileID,
		Type:      row.Type,
		Title:     row.Title,
		Message:   row.Message,
		Severity:  row.Severity,
		ActionURL: row.ActionURL,
		IsRead:    row.IsRead,
		CreatedAt: row.CreatedAt,
		ReadAt:    row.ReadAt,
	}
	if len(row.Metadata) > 0 {
		metadata := map[string]any{}
		if err := json.Unmarshal(row.Metadata, &metadata); err == nil {
			dto.Metadata = metadata
		}
	}
	return dto
}
