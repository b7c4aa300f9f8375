package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/personainsights/server/internal/database"
	"github.com/personainsights/server/internal/models"
	"github.com/personainsights/server/pkg/crypto"
	"github.com/personainsights/server/pkg/mail"
)

func openServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, database.Prepare(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}

func createTestProfile(t *testing.T, db *gorm.DB, email string) *models.Profile {
	t.Helper()

	hashed, err := crypto.HashPassword("TestPass123!")
	require.NoError(t, err)

	profile := &models.Profile{
		Email:        email,
		PasswordHash: hashed,
		DisplayName:  email[:len(email)-len("@example.com")],
		Role:         models.RoleEmployee,
		CanBeManaged: true,
		IsActive:     true,
	}
	require.NoError(t, db.Create(profile).Error)
	return profile
}

type recordingMailer struct {
	mu       sync.Mutex
	messages []mail.Message
	fail     bool
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("smtp unreachable")
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *recordingMailer) sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mail.Message, len(m.messages))
	copy(out, m.messages)
	return out
}
