package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/personainsights/server/internal/models"
	apperrors "github.com/personainsights/server/pkg/errors"
)

func TestProfileRegisterAndAuthenticate(t *testing.T) {
	db := openServiceTestDB(t)
	current := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)

	svc, err := NewProfileService(db, WithProfileClock(func() time.Time { return current }))
	require.NoError(t, err)

	profile, err := svc.Register(context.Background(), RegisterProfileInput{
		Email:       "  Casey@Example.com ",
		Password:    "SuperSecret1",
		DisplayName: "Casey",
	})
	require.NoError(t, err)
	require.Equal(t, "casey@example.com", profile.Email)
	require.Equal(t, models.RoleEmployee, profile.Role)
	require.NotEqual(t, "SuperSecret1", profile.PasswordHash)

	authed, err := svc.Authenticate(context.Background(), "casey@example.com", "SuperSecret1")
	require.NoError(t, err)
	require.Equal(t, profile.ID, authed.ID)
	require.NotNil(t, authed.LastLoginAt)
	require.Equal(t, current, authed.LastLoginAt.UTC())

	_, err = svc.Authenticate(context.Background(), "casey@example.com", "wrong")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestProfileRegisterDuplicateEmail(t *testing.T) {
	db := openServiceTestDB(t)

	svc, err := NewProfileService(db)
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), RegisterProfileInput{
		Email:    "dup@example.com",
		Password: "SuperSecret1",
	})
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), RegisterProfileInput{
		Email:    "DUP@example.com",
		Password: "SuperSecret1",
	})
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestProfileRegisterRejectsWeakPassword(t *testing.T) {
	db := openServiceTestDB(t)

	svc, err := NewProfileService(db)
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), RegisterProfileInput{
		Email:    "short@example.com",
		Password: "short",
	})
	require.Error(t, err)
}

func TestProfileAuthenticateInactive(t *testing.T) {
	db := openServiceTestDB(t)

	svc, err := NewProfileService(db)
	require.NoError(t, err)

	profile, err := svc.Register(context.Background(), RegisterProfileInput{
		Email:    "gone@example.com",
		Password: "SuperSecret1",
	})
	require.NoError(t, err)
	require.NoError(t, db.Model(profile).Update("is_active", false).Error)

	_, err = svc.Authenticate(context.Background(), "gone@example.com", "SuperSecret1")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestProfileUpdate(t *testing.T) {
	db := openServiceTestDB(t)

	svc, err := NewProfileService(db)
	require.NoError(t, err)

	profile, err := svc.Register(context.Background(), RegisterProfileInput{
		Email:    "edit@example.com",
		Password: "SuperSecret1",
	})
	require.NoError(t, err)

	name := "Edited Name"
	teamName := "Platform"
	manage := true
	updated, err := svc.Update(context.Background(), profile.ID, UpdateProfileInput{
		DisplayName:    &name,
		TeamName:       &teamName,
		CanManageTeams: &manage,
	})
	require.NoError(t, err)
	require.Equal(t, "Edited Name", updated.DisplayName)
	require.NotNil(t, updated.TeamName)
	require.Equal(t, "Platform", *updated.TeamName)
	require.True(t, updated.CanManageTeams)

	_, err = svc.GetByID(context.Background(), "missing-id")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}
