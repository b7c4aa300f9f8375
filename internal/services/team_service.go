package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/personainsights/server/internal/models"
	"github.com/personainsights/server/internal/realtime"
	apperrors "github.com/personainsights/server/pkg/errors"
	"github.com/personainsights/server/pkg/metrics"
)

// DefaultTeamCapacity bounds team size when a team has no explicit capacity.
const DefaultTeamCapacity = 10

var (
	// ErrTeamNotFound indicates the manager has no team.
	ErrTeamNotFound = apperrors.New("TEAM_NOT_FOUND", "Team not found", 404)
	// ErrAlreadyMember signals the profile already belongs to the team.
	ErrAlreadyMember = apperrors.New("TEAM_MEMBER_EXISTS", "Profile is already a member of the team", 409)
	// ErrMemberNotFound indicates the requested membership does not exist.
	ErrMemberNotFound = apperrors.New("TEAM_MEMBER_NOT_FOUND", "Profile is not a member of the team", 404)
	// ErrNotManageable signals the profile has opted out of being managed.
	ErrNotManageable = apperrors.New("PROFILE_NOT_MANAGEABLE", "Profile cannot be added to a team", 400)
)

// TeamOption customises TeamService behaviour.
type TeamOption func(*TeamService)

// WithTeamCapacity overrides the default membership limit.
func WithTeamCapacity(capacity int) TeamOption {
	return func(s *TeamService) {
		if capacity > 0 {
			s.capacity = capacity
		}
	}
}

// TeamService manages team membership. A team exists for exactly one manager
// and is created lazily when the first member is attached.
type TeamService struct {
	db       *gorm.DB
	hub      *realtime.Hub
	capacity int
}

// NewTeamService constructs a TeamService.
func NewTeamService(db *gorm.DB, hub *realtime.Hub, opts ...TeamOption) (*TeamService, error) {
	if db == nil {
		return nil, errors.New("team service: db is required")
	}
	service := &TeamService{db: db, hub: hub, capacity: DefaultTeamCapacity}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// AddMember attaches a profile to the manager's team, creating the team on
// first use. The capacity check, membership insert and role promotion commit
// together or not at all.
func (s *TeamService) AddMember(ctx context.Context, managerID, memberID string) error {
	ctx = ensureContext(ctx)

	managerID = strings.TrimSpace(managerID)
	memberID = strings.TrimSpace(memberID)
	if managerID == "" || memberID == "" {
		return apperrors.NewBadRequest("manager id and member id are required")
	}
	if managerID == memberID {
		return apperrors.NewBadRequest("a profile cannot manage itself")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var manager models.Profile
		if err := tx.First(&manager, "id = ?", managerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound.WithMessage("Manager profile not found")
			}
			return fmt.Errorf("team service: load manager: %w", err)
		}

		var member models.Profile
		if err := tx.First(&member, "id = ?", memberID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound.WithMessage("Member profile not found")
			}
			return fmt.Errorf("team service: load member: %w", err)
		}

		return s.attach(tx, &manager, &member)
	})
	if err != nil {
		return err
	}

	s.memberAdded(managerID, memberID)
	return nil
}

// memberAdded is the post-commit accounting shared by every attach path,
// including invitation acceptance. Both sides of the membership get the event.
func (s *TeamService) memberAdded(managerID, memberID string) {
	metrics.TeamMembers.Inc()
	if s.hub != nil {
		s.hub.BroadcastToUsers(realtime.StreamTeam, []string{managerID, memberID}, realtime.Message{
			Event: "team.member_added",
			Data:  map[string]any{"manager_id": managerID, "member_id": memberID},
		})
	}
}

func (s *TeamService) memberRemoved(managerID, memberID string) {
	metrics.TeamMembers.Dec()
	if s.hub != nil {
		s.hub.BroadcastToUsers(realtime.StreamTeam, []string{managerID, memberID}, realtime.Message{
			Event: "team.member_removed",
			Data:  map[string]any{"manager_id": managerID, "member_id": memberID},
		})
	}
}

// RemoveMember detaches a profile from the manager's team. When the team
// empties, the manager reverts to the employee role.
func (s *TeamService) RemoveMember(ctx context.Context, managerID, memberID string) error {
	ctx = ensureContext(ctx)

	managerID = strings.TrimSpace(managerID)
	memberID = strings.TrimSpace(memberID)
	if managerID == "" || memberID == "" {
		return apperrors.NewBadRequest("manager id and member id are required")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		team, err := teamForManager(tx, managerID)
		if err != nil {
			return err
		}

		result := tx.Where("team_id = ? AND member_id = ?", team.ID, memberID).
			Delete(&models.TeamMember{})
		if result.Error != nil {
			return fmt.Errorf("team service: delete membership: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrMemberNotFound
		}

		var remaining int64
		if err := tx.Model(&models.TeamMember{}).
			Where("team_id = ?", team.ID).
			Count(&remaining).Error; err != nil {
			return fmt.Errorf("team service: count members: %w", err)
		}
		if remaining == 0 {
			if err := tx.Model(&models.Profile{}).
				Where("id = ?", managerID).
				Update("role", models.RoleEmployee).Error; err != nil {
				return fmt.Errorf("team service: demote manager: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	s.memberRemoved(managerID, memberID)
	return nil
}

// CountMembers returns the manager's current team size. Managers without a
// team count as zero.
func (s *TeamService) CountMembers(ctx context.Context, managerID string) (int64, error) {
	ctx = ensureContext(ctx)

	team, err := teamForManager(s.db.WithContext(ctx), managerID)
	if errors.Is(err, ErrTeamNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.TeamMember{}).
		Where("team_id = ?", team.ID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("team service: count members: %w", err)
	}
	return count, nil
}

// ListMembers returns the member profiles of the manager's team ordered by
// join time.
func (s *TeamService) ListMembers(ctx context.Context, managerID string) ([]models.Profile, error) {
	ctx = ensureContext(ctx)

	team, err := teamForManager(s.db.WithContext(ctx), managerID)
	if errors.Is(err, ErrTeamNotFound) {
		return []models.Profile{}, nil
	}
	if err != nil {
		return nil, err
	}

	var memberships []models.TeamMember
	if err := s.db.WithContext(ctx).
		Preload("Member").
		Where("team_id = ?", team.ID).
		Order("created_at ASC").
		Find(&memberships).Error; err != nil {
		return nil, fmt.Errorf("team service: list memberships: %w", err)
	}

	members := make([]models.Profile, 0, len(memberships))
	for _, row := range memberships {
		if row.Member != nil {
			members = append(members, *row.Member)
		}
	}
	return members, nil
}

// TeamFor returns the manager's team.
func (s *TeamService) TeamFor(ctx context.Context, managerID string) (*models.Team, error) {
	return teamForManager(s.db.WithContext(ensureContext(ctx)), managerID)
}

// ManagersOf returns the managers whose teams include the given profile.
func (s *TeamService) ManagersOf(ctx context.Context, memberID string) ([]models.Profile, error) {
	ctx = ensureContext(ctx)

	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return nil, apperrors.NewBadRequest("member id is required")
	}

	var managers []models.Profile
	if err := s.db.WithContext(ctx).
		Joins("JOIN teams ON teams.manager_id = profiles.id").
		Joins("JOIN team_members ON team_members.team_id = teams.id").
		Where("team_members.member_id = ?", memberID).
		Find(&managers).Error; err != nil {
		return nil, fmt.Errorf("team service: list managers: %w", err)
	}
	return managers, nil
}

// IsMember reports whether the profile belongs to the manager's team.
func (s *TeamService) IsMember(ctx context.Context, managerID, memberID string) (bool, error) {
	ctx = ensureContext(ctx)

	team, err := teamForManager(s.db.WithContext(ctx), managerID)
	if errors.Is(err, ErrTeamNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.TeamMember{}).
		Where("team_id = ? AND member_id = ?", team.ID, memberID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("team service: check membership: %w", err)
	}
	return count > 0, nil
}

// CanAccessManagerDashboard reports whether the profile may open the manager
// dashboard: the manage-teams flag must be set and the team must have at
// least one member.
func (s *TeamService) CanAccessManagerDashboard(ctx context.Context, profileID string) (bool, error) {
	ctx = ensureContext(ctx)

	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return false, apperrors.NewBadRequest("profile id is required")
	}

	var profile models.Profile
	err := s.db.WithContext(ctx).First(&profile, "id = ?", profileID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, apperrors.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("team service: load profile: %w", err)
	}

	if !profile.CanManageTeams {
		return false, nil
	}

	count, err := s.CountMembers(ctx, profileID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// MembershipDigest returns a stable fingerprint of the team's current member
// set, used to key cached analytics so roster changes produce fresh entries.
func (s *TeamService) MembershipDigest(ctx context.Context, managerID string) (string, error) {
	members, err := s.ListMembers(ctx, managerID)
	if err != nil {
		return "", err
	}

	ids := make([]string, 0, len(members))
	for _, member := range members {
		ids = append(ids, member.ID)
	}
	sort.Strings(ids)

	checksum := sha256.Sum256([]byte(strings.Join(ids, ",")))
	return hex.EncodeToString(checksum[:]), nil
}

// attach creates the membership row inside the caller's transaction, running
// the capacity check and the manager's role promotion alongside it.
func (s *TeamService) attach(tx *gorm.DB, manager, member *models.Profile) error {
	if !member.CanBeManaged {
		return ErrNotManageable
	}

	team, err := ensureTeam(tx, manager)
	if err != nil {
		return err
	}

	var count int64
	if err := tx.Model(&models.TeamMember{}).
		Where("team_id = ?", team.ID).
		Count(&count).Error; err != nil {
		return fmt.Errorf("team service: count members: %w", err)
	}
	if count >= int64(s.effectiveCapacity(team)) {
		return apperrors.ErrTeamFull
	}

	membership := models.TeamMember{TeamID: team.ID, MemberID: member.ID}
	if err := tx.Create(&membership).Error; err != nil {
		if isUniqueConstraintError(err) {
			return ErrAlreadyMember
		}
		return fmt.Errorf("team service: create membership: %w", err)
	}

	if !manager.IsManager() {
		if err := tx.Model(manager).Update("role", models.RoleManager).Error; err != nil {
			return fmt.Errorf("team service: promote manager: %w", err)
		}
	}

	return nil
}

func (s *TeamService) effectiveCapacity(team *models.Team) int {
	if team.Capacity > 0 {
		return team.Capacity
	}
	return s.capacity
}

// ensureTeam loads the manager's team, creating it when absent.
func ensureTeam(tx *gorm.DB, manager *models.Profile) (*models.Team, error) {
	var team models.Team
	err := tx.First(&team, "manager_id = ?", manager.ID).Error
	if err == nil {
		return &team, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("team service: load team: %w", err)
	}

	name := strings.TrimSpace(manager.DisplayName)
	if name == "" {
		name = manager.Email
	}
	if manager.TeamName != nil && strings.TrimSpace(*manager.TeamName) != "" {
		name = strings.TrimSpace(*manager.TeamName)
	} else {
		name = fmt.Sprintf("%s's team", name)
	}

	team = models.Team{ManagerID: manager.ID, Name: name}
	if err := tx.Create(&team).Error; err != nil {
		if isUniqueConstraintError(err) {
			if loadErr := tx.First(&team, "manager_id = ?", manager.ID).Error; loadErr == nil {
				return &team, nil
			}
		}
		return nil, fmt.Errorf("team service: create team: %w", err)
	}
	return &team, nil
}

func teamForManager(tx *gorm.DB, managerID string) (*models.Team, error) {
	managerID = strings.TrimSpace(managerID)
	if managerID == "" {
		return nil, apperrors.NewBadRequest("manager id is required")
	}

	var team models.Team
	err := tx.First(&team, "manager_id = ?", managerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTeamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("team service: load team: %w", err)
	}
	return &team, nil
}
