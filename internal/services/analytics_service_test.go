package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/personainsights/server/internal/cache"
	"github.com/personainsights/server/internal/models"
)

func newAnalyticsFixture(t *testing.T, db *gorm.DB, opts ...AnalyticsOption) (*AnalyticsService, *TeamService) {
	t.Helper()

	teams, err := NewTeamService(db, nil)
	require.NoError(t, err)

	opts = append([]AnalyticsOption{WithAnalyticsSettleDelay(0)}, opts...)
	svc, err := NewAnalyticsService(db, teams, cache.NewDatabaseStore(db), opts...)
	require.NoError(t, err)
	return svc, teams
}

func shareEverything(t *testing.T, db *gorm.DB, employeeID, managerID string) {
	t.Helper()
	require.NoError(t, db.Create(&models.SharingPreference{
		EmployeeID:         employeeID,
		ManagerID:          managerID,
		ShareProfile:       true,
		ShareInsights:      true,
		ShareConversations: true,
		ShareOcean:         true,
		ShareProgress:      true,
	}).Error)
}

func TestTeamAnalyticsAggregatesSharedData(t *testing.T) {
	db := openServiceTestDB(t)
	svc, teams := newAnalyticsFixture(t, db)

	manager := createTestProfile(t, db, "lead@example.com")
	first := createTestProfile(t, db, "one@example.com")
	second := createTestProfile(t, db, "two@example.com")

	require.NoError(t, teams.AddMember(context.Background(), manager.ID, first.ID))
	require.NoError(t, teams.AddMember(context.Background(), manager.ID, second.ID))
	shareEverything(t, db, first.ID, manager.ID)
	shareEverything(t, db, second.ID, manager.ID)

	require.NoError(t, db.Create(&models.OceanScore{ProfileID: first.ID, Openness: 0.4, Extraversion: 0.6}).Error)
	require.NoError(t, db.Create(&models.OceanScore{ProfileID: second.ID, Openness: 0.8, Extraversion: 0.2}).Error)
	require.NoError(t, db.Create(&models.Conversation{ProfileID: first.ID, DurationSeconds: 120}).Error)
	require.NoError(t, db.Create(&models.Conversation{ProfileID: second.ID, DurationSeconds: 180}).Error)
	require.NoError(t, db.Create(&models.KeyInsight{ProfileID: first.ID, Category: "strengths", Content: "a"}).Error)
	require.NoError(t, db.Create(&models.KeyInsight{ProfileID: second.ID, Category: "strengths", Content: "b"}).Error)
	require.NoError(t, db.Create(&models.KeyInsight{ProfileID: second.ID, Category: "growth", Content: "c"}).Error)

	analytics, err := svc.TeamAnalytics(context.Background(), manager.ID)
	require.NoError(t, err)

	require.Equal(t, 2, analytics.MemberCount)
	require.NotNil(t, analytics.Ocean)
	require.Equal(t, 2, analytics.Ocean.SampleSize)
	require.InDelta(t, 0.6, analytics.Ocean.Openness, 1e-9)
	require.InDelta(t, 0.4, analytics.Ocean.Extraversion, 1e-9)
	require.EqualValues(t, 2, analytics.ConversationCount)
	require.EqualValues(t, 300, analytics.TotalDuration)
	require.EqualValues(t, 2, analytics.InsightCategories["strengths"])
	require.EqualValues(t, 1, analytics.InsightCategories["growth"])
}

func TestTeamAnalyticsRespectsSharingSwitches(t *testing.T) {
	db := openServiceTestDB(t)
	svc, teams := newAnalyticsFixture(t, db)

	manager := createTestProfile(t, db, "head@example.com")
	member := createTestProfile(t, db, "quiet@example.com")
	require.NoError(t, teams.AddMember(context.Background(), manager.ID, member.ID))

	// The member shares nothing; their data exists but stays invisible.
	require.NoError(t, db.Create(&models.SharingPreference{
		EmployeeID: member.ID,
		ManagerID:  manager.ID,
	}).Error)
	require.NoError(t, db.Create(&models.OceanScore{ProfileID: member.ID, Openness: 0.9}).Error)
	require.NoError(t, db.Create(&models.Conversation{ProfileID: member.ID, DurationSeconds: 100}).Error)

	analytics, err := svc.TeamAnalytics(context.Background(), manager.ID)
	require.NoError(t, err)

	require.Equal(t, 1, analytics.MemberCount)
	require.Nil(t, analytics.Ocean)
	require.Zero(t, analytics.ConversationCount)
	require.Empty(t, analytics.InsightCategories)
}

func TestTeamAnalyticsCachesUntilInvalidated(t *testing.T) {
	db := openServiceTestDB(t)
	svc, teams := newAnalyticsFixture(t, db, WithAnalyticsTTL(time.Hour))

	manager := createTestProfile(t, db, "chief@example.com")
	member := createTestProfile(t, db, "worker@example.com")
	require.NoError(t, teams.AddMember(context.Background(), manager.ID, member.ID))
	shareEverything(t, db, member.ID, manager.ID)

	first, err := svc.TeamAnalytics(context.Background(), manager.ID)
	require.NoError(t, err)
	require.False(t, first.FromCache)

	second, err := svc.TeamAnalytics(context.Background(), manager.ID)
	require.NoError(t, err)
	require.True(t, second.FromCache)

	// A data write invalidates; with a zero settle delay it takes effect
	// immediately.
	svc.InvalidateForMember(context.Background(), member.ID)

	third, err := svc.TeamAnalytics(context.Background(), manager.ID)
	require.NoError(t, err)
	require.False(t, third.FromCache)
}

func TestTeamAnalyticsKeyTracksRoster(t *testing.T) {
	db := openServiceTestDB(t)
	svc, teams := newAnalyticsFixture(t, db, WithAnalyticsTTL(time.Hour))

	manager := createTestProfile(t, db, "capo@example.com")
	first := createTestProfile(t, db, "alpha@example.com")
	second := createTestProfile(t, db, "beta@example.com")
	require.NoError(t, teams.AddMember(context.Background(), manager.ID, first.ID))

	before, err := svc.TeamAnalytics(context.Background(), manager.ID)
	require.NoError(t, err)
	require.Equal(t, 1, before.MemberCount)

	// Adding a member changes the cache key, so the next read recomputes
	// even though the old entry is still fresh.
	require.NoError(t, teams.AddMember(context.Background(), manager.ID, second.ID))

	after, err := svc.TeamAnalytics(context.Background(), manager.ID)
	require.NoError(t, err)
	require.False(t, after.FromCache)
	require.Equal(t, 2, after.MemberCount)
}

func TestInsightWritesInvalidateTeamAnalytics(t *testing.T) {
	db := openServiceTestDB(t)
	analytics, teams := newAnalyticsFixture(t, db, WithAnalyticsTTL(time.Hour))

	insights, err := NewInsightService(db, analytics)
	require.NoError(t, err)

	manager := createTestProfile(t, db, "boss3@example.com")
	member := createTestProfile(t, db, "dev3@example.com")
	require.NoError(t, teams.AddMember(context.Background(), manager.ID, member.ID))
	shareEverything(t, db, member.ID, manager.ID)

	warm, err := analytics.TeamAnalytics(context.Background(), manager.ID)
	require.NoError(t, err)
	require.Zero(t, warm.ConversationCount)

	_, err = insights.RecordConversation(context.Background(), RecordConversationInput{
		ProfileID:       member.ID,
		Summary:         "First assessment",
		DurationSeconds: 450,
	})
	require.NoError(t, err)

	fresh, err := analytics.TeamAnalytics(context.Background(), manager.ID)
	require.NoError(t, err)
	require.False(t, fresh.FromCache)
	require.EqualValues(t, 1, fresh.ConversationCount)
}
