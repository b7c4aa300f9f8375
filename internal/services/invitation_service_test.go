package services

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/personainsights/server/internal/models"
	apperrors "github.com/personainsights/server/pkg/errors"
	"github.com/personainsights/server/pkg/metrics"
)

func newInvitationFixture(t *testing.T, db *gorm.DB, opts ...InvitationOption) *InvitationService {
	t.Helper()

	teams, err := NewTeamService(db, nil)
	require.NoError(t, err)

	notifications, err := NewNotificationService(db, nil)
	require.NoError(t, err)

	svc, err := NewInvitationService(db, teams, notifications, nil, opts...)
	require.NoError(t, err)
	return svc
}

func TestInvitationCreateAndAcceptTeamJoin(t *testing.T) {
	db := openServiceTestDB(t)
	current := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	svc := newInvitationFixture(t, db,
		WithInvitationClock(func() time.Time { return current }),
		WithSharingDefault(true),
	)

	manager := createTestProfile(t, db, "lena@example.com")
	employee := createTestProfile(t, db, "omar@example.com")

	invitation, token, err := svc.Create(context.Background(), CreateInvitationInput{
		InviterID: manager.ID,
		Email:     employee.Email,
		Type:      models.InvitationTypeTeamJoin,
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Equal(t, models.InvitationStatusPending, invitation.Status)
	require.NotNil(t, invitation.ManagerID)
	require.Equal(t, manager.ID, *invitation.ManagerID)
	require.Equal(t, current.Add(7*24*time.Hour), invitation.ExpiresAt)

	// The raw token must never hit storage.
	var stored models.Invitation
	require.NoError(t, db.First(&stored, "id = ?", invitation.ID).Error)
	require.NotEqual(t, token, stored.TokenDigest)

	resolved, err := svc.Resolve(context.Background(), token, employee.ID, true)
	require.NoError(t, err)
	require.Equal(t, models.InvitationStatusAccepted, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)
	require.NotNil(t, resolved.TeamID)

	// The resolver is on the inviter's team and the inviter now manages.
	var membership models.TeamMember
	require.NoError(t, db.First(&membership, "member_id = ?", employee.ID).Error)

	var reloaded models.Profile
	require.NoError(t, db.First(&reloaded, "id = ?", manager.ID).Error)
	require.Equal(t, models.RoleManager, reloaded.Role)
	require.True(t, reloaded.CanManageTeams)

	// Acceptance seeded the sharing switches with the configured default.
	var preference models.SharingPreference
	require.NoError(t, db.First(&preference, "employee_id = ? AND manager_id = ?", employee.ID, manager.ID).Error)
	require.True(t, preference.ShareProfile)
	require.True(t, preference.ShareOcean)
}

func TestInvitationAcceptManagerRequest(t *testing.T) {
	db := openServiceTestDB(t)
	svc := newInvitationFixture(t, db)

	employee := createTestProfile(t, db, "priya@example.com")
	futureManager := createTestProfile(t, db, "sam@example.com")

	_, token, err := svc.Create(context.Background(), CreateInvitationInput{
		InviterID: employee.ID,
		Email:     futureManager.Email,
		Type:      models.InvitationTypeManagerRequest,
	})
	require.NoError(t, err)

	resolved, err := svc.Resolve(context.Background(), token, futureManager.ID, true)
	require.NoError(t, err)
	require.Equal(t, models.InvitationStatusAccepted, resolved.Status)
	require.NotNil(t, resolved.ManagerID)
	require.Equal(t, futureManager.ID, *resolved.ManagerID)

	// The inviter landed on the acceptor's team.
	var team models.Team
	require.NoError(t, db.First(&team, "manager_id = ?", futureManager.ID).Error)
	var membership models.TeamMember
	require.NoError(t, db.First(&membership, "team_id = ? AND member_id = ?", team.ID, employee.ID).Error)

	var reloaded models.Profile
	require.NoError(t, db.First(&reloaded, "id = ?", futureManager.ID).Error)
	require.Equal(t, models.RoleManager, reloaded.Role)
	require.True(t, reloaded.CanManageTeams)

	// Sharing defaults to everything off unless configured otherwise.
	var preference models.SharingPreference
	require.NoError(t, db.First(&preference, "employee_id = ? AND manager_id = ?", employee.ID, futureManager.ID).Error)
	require.False(t, preference.ShareProfile)
	require.False(t, preference.ShareInsights)
}

func TestInvitationResolveIsSingleUse(t *testing.T) {
	db := openServiceTestDB(t)
	svc := newInvitationFixture(t, db)

	manager := createTestProfile(t, db, "ana@example.com")
	employee := createTestProfile(t, db, "ben@example.com")

	_, token, err := svc.Create(context.Background(), CreateInvitationInput{
		InviterID: manager.ID,
		Email:     employee.Email,
		Type:      models.InvitationTypeTeamJoin,
	})
	require.NoError(t, err)

	_, err = svc.Resolve(context.Background(), token, employee.ID, true)
	require.NoError(t, err)

	_, err = svc.Resolve(context.Background(), token, employee.ID, true)
	require.ErrorIs(t, err, ErrInvitationResolved)

	_, err = svc.Resolve(context.Background(), token, employee.ID, false)
	require.ErrorIs(t, err, ErrInvitationResolved)
}

func TestInvitationDecline(t *testing.T) {
	db := openServiceTestDB(t)
	svc := newInvitationFixture(t, db)

	manager := createTestProfile(t, db, "kai@example.com")
	employee := createTestProfile(t, db, "zoe@example.com")

	_, token, err := svc.Create(context.Background(), CreateInvitationInput{
		InviterID: manager.ID,
		Email:     employee.Email,
		Type:      models.InvitationTypeTeamJoin,
	})
	require.NoError(t, err)

	resolved, err := svc.Resolve(context.Background(), token, employee.ID, false)
	require.NoError(t, err)
	require.Equal(t, models.InvitationStatusDeclined, resolved.Status)

	// Declining creates no membership and no sharing row.
	var memberships int64
	require.NoError(t, db.Model(&models.TeamMember{}).Count(&memberships).Error)
	require.Zero(t, memberships)

	var preferences int64
	require.NoError(t, db.Model(&models.SharingPreference{}).Count(&preferences).Error)
	require.Zero(t, preferences)
}

func TestInvitationExpiryIsReadTime(t *testing.T) {
	db := openServiceTestDB(t)
	current := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	svc := newInvitationFixture(t, db,
		WithInvitationClock(func() time.Time { return current }),
		WithInvitationExpiry(time.Hour),
	)

	manager := createTestProfile(t, db, "noor@example.com")
	employee := createTestProfile(t, db, "tariq@example.com")

	invitation, token, err := svc.Create(context.Background(), CreateInvitationInput{
		InviterID: manager.ID,
		Email:     employee.Email,
		Type:      models.InvitationTypeTeamJoin,
	})
	require.NoError(t, err)

	current = current.Add(2 * time.Hour)

	_, err = svc.Resolve(context.Background(), token, employee.ID, true)
	require.ErrorIs(t, err, apperrors.ErrInvitationExpired)

	// The stored row keeps its pending status; expiry is observed, not written.
	var stored models.Invitation
	require.NoError(t, db.First(&stored, "id = ?", invitation.ID).Error)
	require.Equal(t, models.InvitationStatusPending, stored.Status)
	require.Nil(t, stored.ResolvedAt)

	preview, err := svc.Preview(context.Background(), token)
	require.NoError(t, err)
	require.True(t, preview.Expired)
}

func TestInvitationDuplicatePendingRejected(t *testing.T) {
	db := openServiceTestDB(t)
	svc := newInvitationFixture(t, db)

	manager := createTestProfile(t, db, "rita@example.com")
	employee := createTestProfile(t, db, "leo@example.com")

	_, _, err := svc.Create(context.Background(), CreateInvitationInput{
		InviterID: manager.ID,
		Email:     employee.Email,
		Type:      models.InvitationTypeTeamJoin,
	})
	require.NoError(t, err)

	_, _, err = svc.Create(context.Background(), CreateInvitationInput{
		InviterID: manager.ID,
		Email:     employee.Email,
		Type:      models.InvitationTypeTeamJoin,
	})
	require.ErrorIs(t, err, ErrDuplicateInvitation)

	// A different type towards the same recipient is a separate offer.
	_, _, err = svc.Create(context.Background(), CreateInvitationInput{
		InviterID: manager.ID,
		Email:     employee.Email,
		Type:      models.InvitationTypeManagerRequest,
	})
	require.NoError(t, err)
}

func TestInvitationResolveRequiresMatchingEmail(t *testing.T) {
	db := openServiceTestDB(t)
	svc := newInvitationFixture(t, db)

	manager := createTestProfile(t, db, "dana@example.com")
	employee := createTestProfile(t, db, "eli@example.com")
	stranger := createTestProfile(t, db, "mallory@example.com")

	_, token, err := svc.Create(context.Background(), CreateInvitationInput{
		InviterID: manager.ID,
		Email:     employee.Email,
		Type:      models.InvitationTypeTeamJoin,
	})
	require.NoError(t, err)

	_, err = svc.Resolve(context.Background(), token, stranger.ID, true)
	appErr := &apperrors.AppError{}
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "FORBIDDEN", appErr.Code)

	// The legitimate recipient can still accept afterwards.
	_, err = svc.Resolve(context.Background(), token, employee.ID, true)
	require.NoError(t, err)
}

func TestInvitationAcceptRollsBackWhenTeamFull(t *testing.T) {
	db := openServiceTestDB(t)

	teams, err := NewTeamService(db, nil, WithTeamCapacity(1))
	require.NoError(t, err)
	svc, err := NewInvitationService(db, teams, nil, nil)
	require.NoError(t, err)

	manager := createTestProfile(t, db, "gus@example.com")
	first := createTestProfile(t, db, "ida@example.com")
	second := createTestProfile(t, db, "jon@example.com")

	require.NoError(t, teams.AddMember(context.Background(), manager.ID, first.ID))

	invitation, token, err := svc.Create(context.Background(), CreateInvitationInput{
		InviterID: manager.ID,
		Email:     second.Email,
		Type:      models.InvitationTypeTeamJoin,
	})
	require.NoError(t, err)

	_, err = svc.Resolve(context.Background(), token, second.ID, true)
	require.ErrorIs(t, err, apperrors.ErrTeamFull)

	// The whole acceptance rolled back: still pending, no membership row.
	var stored models.Invitation
	require.NoError(t, db.First(&stored, "id = ?", invitation.ID).Error)
	require.Equal(t, models.InvitationStatusPending, stored.Status)

	var memberships int64
	require.NoError(t, db.Model(&models.TeamMember{}).
		Where("member_id = ?", second.ID).
		Count(&memberships).Error)
	require.Zero(t, memberships)
}

func TestInvitationCreateRollsBackOnMailFailure(t *testing.T) {
	db := openServiceTestDB(t)

	teams, err := NewTeamService(db, nil)
	require.NoError(t, err)
	mailer := &recordingMailer{fail: true}
	svc, err := NewInvitationService(db, teams, nil, mailer)
	require.NoError(t, err)

	manager := createTestProfile(t, db, "uma@example.com")

	_, _, err = svc.Create(context.Background(), CreateInvitationInput{
		InviterID: manager.ID,
		Email:     "newhire@example.com",
		Type:      models.InvitationTypeTeamJoin,
	})
	require.Error(t, err)

	// No orphaned invitation survives a failed dispatch.
	var count int64
	require.NoError(t, db.Model(&models.Invitation{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestInvitationCreateSendsMail(t *testing.T) {
	db := openServiceTestDB(t)

	teams, err := NewTeamService(db, nil)
	require.NoError(t, err)
	mailer := &recordingMailer{}
	svc, err := NewInvitationService(db, teams, nil, mailer,
		WithInvitationBaseURL("https://app.example.com"),
	)
	require.NoError(t, err)

	manager := createTestProfile(t, db, "vic@example.com")

	_, token, err := svc.Create(context.Background(), CreateInvitationInput{
		InviterID: manager.ID,
		Email:     "recruit@example.com",
		Type:      models.InvitationTypeTeamJoin,
	})
	require.NoError(t, err)

	messages := mailer.sent()
	require.Len(t, messages, 1)
	require.Equal(t, []string{"recruit@example.com"}, messages[0].To)
	require.Contains(t, messages[0].Body, token)
	require.Contains(t, messages[0].Body, "https://app.example.com")
}

func TestInvitationAcceptanceKeepsExistingSharing(t *testing.T) {
	db := openServiceTestDB(t)
	svc := newInvitationFixture(t, db, WithSharingDefault(false))

	manager := createTestProfile(t, db, "wes@example.com")
	employee := createTestProfile(t, db, "yara@example.com")

	// The employee had already opened up insights to this manager.
	require.NoError(t, db.Create(&models.SharingPreference{
		EmployeeID:    employee.ID,
		ManagerID:     manager.ID,
		ShareInsights: true,
	}).Error)

	_, token, err := svc.Create(context.Background(), CreateInvitationInput{
		InviterID: manager.ID,
		Email:     employee.Email,
		Type:      models.InvitationTypeTeamJoin,
	})
	require.NoError(t, err)

	_, err = svc.Resolve(context.Background(), token, employee.ID, true)
	require.NoError(t, err)

	var preference models.SharingPreference
	require.NoError(t, db.First(&preference, "employee_id = ? AND manager_id = ?", employee.ID, manager.ID).Error)
	require.True(t, preference.ShareInsights)
}

func TestInvitationSelfInviteRejected(t *testing.T) {
	db := openServiceTestDB(t)
	svc := newInvitationFixture(t, db)

	profile := createTestProfile(t, db, "solo@example.com")

	_, _, err := svc.Create(context.Background(), CreateInvitationInput{
		InviterID: profile.ID,
		Email:     profile.Email,
		Type:      models.InvitationTypeTeamJoin,
	})
	require.Error(t, err)
}

func TestInvitationListSentAndReceived(t *testing.T) {
	db := openServiceTestDB(t)
	svc := newInvitationFixture(t, db)

	manager := createTestProfile(t, db, "mira@example.com")
	employee := createTestProfile(t, db, "nils@example.com")

	_, _, err := svc.Create(context.Background(), CreateInvitationInput{
		InviterID: manager.ID,
		Email:     employee.Email,
		Type:      models.InvitationTypeTeamJoin,
	})
	require.NoError(t, err)

	sent, err := svc.ListSent(context.Background(), manager.ID)
	require.NoError(t, err)
	require.Len(t, sent, 1)

	received, err := svc.ListReceived(context.Background(), employee.Email)
	require.NoError(t, err)
	require.Len(t, received, 1)
	require.NotNil(t, received[0].InvitedBy)
	require.Equal(t, manager.ID, received[0].InvitedBy.ID)
}

func TestInvitationAcceptBalancesTeamGauge(t *testing.T) {
	db := openServiceTestDB(t)

	teams, err := NewTeamService(db, nil)
	require.NoError(t, err)
	notifications, err := NewNotificationService(db, nil)
	require.NoError(t, err)
	svc, err := NewInvitationService(db, teams, notifications, nil)
	require.NoError(t, err)

	manager := createTestProfile(t, db, "freja@example.com")
	employee := createTestProfile(t, db, "tomas@example.com")

	baseline := testutil.ToFloat64(metrics.TeamMembers)

	_, token, err := svc.Create(context.Background(), CreateInvitationInput{
		InviterID: manager.ID,
		Email:     employee.Email,
		Type:      models.InvitationTypeTeamJoin,
	})
	require.NoError(t, err)

	// Acceptance is the production attach path and must account for the
	// membership the same way a direct add does.
	_, err = svc.Resolve(context.Background(), token, employee.ID, true)
	require.NoError(t, err)
	require.Equal(t, baseline+1, testutil.ToFloat64(metrics.TeamMembers))

	// Removing the member brings the gauge back; it must never go below
	// where it started.
	require.NoError(t, teams.RemoveMember(context.Background(), manager.ID, employee.ID))
	require.Equal(t, baseline, testutil.ToFloat64(metrics.TeamMembers))
}
