package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/personainsights/server/internal/models"
	"github.com/personainsights/server/pkg/crypto"
	apperrors "github.com/personainsights/server/pkg/errors"
	"github.com/personainsights/server/pkg/metrics"
)

// ErrEmailTaken signals that a profile already exists for the email address.
var ErrEmailTaken = apperrors.New("EMAIL_TAKEN", "An account with this email already exists", 409)

// RegisterProfileInput captures the fields required to create a profile.
type RegisterProfileInput struct {
	Email       string
	Password    string
	DisplayName string
}

// UpdateProfileInput describes mutable profile fields. Nil pointers leave the
// current value untouched.
type UpdateProfileInput struct {
	DisplayName    *string
	TeamName       *string
	CanManageTeams *bool
	CanBeManaged   *bool
}

// ProfileService manages profile registration, authentication and updates.
type ProfileService struct {
	db  *gorm.DB
	now func() time.Time
}

// ProfileOption customises ProfileService behaviour.
type ProfileOption func(*ProfileService)

// WithProfileClock injects a custom clock primarily for testing.
func WithProfileClock(clock func() time.Time) ProfileOption {
	return func(s *ProfileService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewProfileService constructs a ProfileService.
func NewProfileService(db *gorm.DB, opts ...ProfileOption) (*ProfileService, error) {
	if db == nil {
		return nil, errors.New("profile service: db is required")
	}
	service := &ProfileService{db: db, now: time.Now}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Register creates a new profile with a hashed password. New profiles start
// as employees; the manager role is earned through team membership.
func (s *ProfileService) Register(ctx context.Context, input RegisterProfileInput) (*models.Profile, error) {
	ctx = ensureContext(ctx)

	email := normalizeEmail(input.Email)
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}
	if len(input.Password) < 8 {
		return nil, apperrors.NewBadRequest("password must be at least 8 characters")
	}

	hash, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("profile service: hash password: %w", err)
	}

	profile := &models.Profile{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(input.DisplayName),
		Role:         models.RoleEmployee,
		CanBeManaged: true,
		IsActive:     true,
	}

	if err := s.db.WithContext(ctx).Create(profile).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("profile service: create profile: %w", err)
	}

	return profile, nil
}

// Authenticate verifies credentials and stamps the last login time.
func (s *ProfileService) Authenticate(ctx context.Context, email, password string) (*models.Profile, error) {
	ctx = ensureContext(ctx)

	email = normalizeEmail(email)
	if email == "" || password == "" {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}

	var profile models.Profile
	err := s.db.WithContext(ctx).First(&profile, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("profile service: load profile: %w", err)
	}

	if !profile.IsActive || !crypto.VerifyPassword(profile.PasswordHash, password) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}

	now := s.now().UTC()
	if err := s.db.WithContext(ctx).
		Model(&profile).
		Update("last_login_at", now).Error; err != nil {
		return nil, fmt.Errorf("profile service: stamp login: %w", err)
	}
	profile.LastLoginAt = &now

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	return &profile, nil
}

// GetByID loads a profile by identifier.
func (s *ProfileService) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	ctx = ensureContext(ctx)

	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperrors.NewBadRequest("profile id is required")
	}

	var profile models.Profile
	err := s.db.WithContext(ctx).First(&profile, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("profile service: load profile: %w", err)
	}
	return &profile, nil
}

// GetByEmail loads a profile by its normalized email address.
func (s *ProfileService) GetByEmail(ctx context.Context, email string) (*models.Profile, error) {
	ctx = ensureContext(ctx)

	email = normalizeEmail(email)
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}

	var profile models.Profile
	err := s.db.WithContext(ctx).First(&profile, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("profile service: load profile: %w", err)
	}
	return &profile, nil
}

// Update modifies mutable profile fields.
func (s *ProfileService) Update(ctx context.Context, id string, input UpdateProfileInput) (*models.Profile, error) {
	ctx = ensureContext(ctx)

	profile, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.DisplayName != nil {
		updates["display_name"] = strings.TrimSpace(*input.DisplayName)
	}
	if input.TeamName != nil {
		name := strings.TrimSpace(*input.TeamName)
		if name == "" {
			updates["team_name"] = nil
		} else {
			updates["team_name"] = name
		}
	}
	if input.CanManageTeams != nil {
		updates["can_manage_teams"] = *input.CanManageTeams
	}
	if input.CanBeManaged != nil {
		updates["can_be_managed"] = *input.CanBeManaged
	}

	if len(updates) == 0 {
		return profile, nil
	}

	if err := s.db.WithContext(ctx).Model(profile).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("profile service: update profile: %w", err)
	}

	if err := s.db.WithContext(ctx).First(profile, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("profile service: reload profile: %w", err)
	}
	return profile, nil
}
