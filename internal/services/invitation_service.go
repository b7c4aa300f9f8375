package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/personainsights/server/internal/models"
	"github.com/personainsights/server/pkg/crypto"
	apperrors "github.com/personainsights/server/pkg/errors"
	"github.com/personainsights/server/pkg/logger"
	"github.com/personainsights/server/pkg/mail"
	"github.com/personainsights/server/pkg/metrics"
)

const (
	defaultInvitationExpiry     = 7 * 24 * time.Hour
	defaultInvitationTokenBytes = 32
)

var (
	// ErrInvitationNotFound indicates no invitation matches the provided token.
	ErrInvitationNotFound = apperrors.New("INVITATION_NOT_FOUND", "Invitation not found", 404)
	// ErrInvitationResolved signals the invitation was already accepted or declined.
	ErrInvitationResolved = apperrors.New("INVITATION_RESOLVED", "Invitation has already been resolved", 409)
	// ErrDuplicateInvitation signals an identical pending invitation exists.
	ErrDuplicateInvitation = apperrors.New("INVITATION_DUPLICATE", "A pending invitation for this recipient already exists", 409)
)

// CreateInvitationInput captures the fields required to issue an invitation.
type CreateInvitationInput struct {
	InviterID string
	Email     string
	Type      string
}

// InvitationPreview is the token-holder's read-only view of an invitation.
type InvitationPreview struct {
	Invitation *models.Invitation `json:"invitation"`
	Expired    bool               `json:"expired"`
}

// InvitationOption customises InvitationService behaviour.
type InvitationOption func(*InvitationService)

// WithInvitationBaseURL configures the base URL used in invitation links.
func WithInvitationBaseURL(url string) InvitationOption {
	return func(s *InvitationService) {
		s.baseURL = strings.TrimRight(url, "/")
	}
}

// WithInvitationExpiry overrides the invitation lifetime.
func WithInvitationExpiry(d time.Duration) InvitationOption {
	return func(s *InvitationService) {
		if d > 0 {
			s.expiry = d
		}
	}
}

// WithInvitationTokenSize adjusts the random token length in bytes.
func WithInvitationTokenSize(size int) InvitationOption {
	return func(s *InvitationService) {
		if size > 0 {
			s.tokenLength = size
		}
	}
}

// WithInvitationClock injects a custom clock primarily for testing.
func WithInvitationClock(clock func() time.Time) InvitationOption {
	return func(s *InvitationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithSharingDefault sets the initial value of the per-category sharing
// switches seeded when an invitation is accepted.
func WithSharingDefault(visible bool) InvitationOption {
	return func(s *InvitationService) {
		s.sharingDefault = visible
	}
}

// InvitationService issues and resolves team invitations. An invitation is a
// single-use, time-limited token tied to a recipient email; the raw token is
// returned once at creation and only its digest is stored.
type InvitationService struct {
	db            *gorm.DB
	teams         *TeamService
	notifications *NotificationService
	mailer        mail.Mailer

	baseURL        string
	expiry         time.Duration
	tokenLength    int
	sharingDefault bool
	now            func() time.Time
}

// NewInvitationService constructs an InvitationService.
func NewInvitationService(db *gorm.DB, teams *TeamService, notifications *NotificationService, mailer mail.Mailer, opts ...InvitationOption) (*InvitationService, error) {
	if db == nil {
		return nil, errors.New("invitation service: db is required")
	}
	if teams == nil {
		return nil, errors.New("invitation service: team service is required")
	}

	service := &InvitationService{
		db:            db,
		teams:         teams,
		notifications: notifications,
		mailer:        mailer,
		expiry:        defaultInvitationExpiry,
		tokenLength:   defaultInvitationTokenBytes,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Create issues an invitation and emails the recipient. The invitation row
// and the email dispatch commit together: a hard delivery failure rolls the
// invitation back so no orphaned token can linger.
func (s *InvitationService) Create(ctx context.Context, input CreateInvitationInput) (*models.Invitation, string, error) {
	ctx = ensureContext(ctx)

	invitationType := strings.TrimSpace(input.Type)
	if invitationType != models.InvitationTypeManagerRequest && invitationType != models.InvitationTypeTeamJoin {
		return nil, "", apperrors.NewBadRequest("invitation type must be manager_request or team_join")
	}

	email := normalizeEmail(input.Email)
	if email == "" {
		return nil, "", apperrors.NewBadRequest("recipient email is required")
	}

	inviterID := strings.TrimSpace(input.InviterID)
	var inviter models.Profile
	if err := s.db.WithContext(ctx).First(&inviter, "id = ?", inviterID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", apperrors.ErrNotFound.WithMessage("Inviter profile not found")
		}
		return nil, "", fmt.Errorf("invitation service: load inviter: %w", err)
	}
	if normalizeEmail(inviter.Email) == email {
		return nil, "", apperrors.NewBadRequest("you cannot invite yourself")
	}

	rawToken, err := crypto.GenerateToken(s.tokenLength)
	if err != nil {
		return nil, "", fmt.Errorf("invitation service: generate token: %w", err)
	}

	now := s.now().UTC()
	invitation := &models.Invitation{
		Email:       email,
		TokenDigest: crypto.TokenDigest(rawToken),
		Type:        invitationType,
		Status:      models.InvitationStatusPending,
		InvitedByID: inviter.ID,
		InvitedAt:   now,
		ExpiresAt:   now.Add(s.expiry),
	}
	if invitationType == models.InvitationTypeTeamJoin {
		invitation.ManagerID = &inviter.ID
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pending int64
		if err := tx.Model(&models.Invitation{}).
			Where("email = ? AND invited_by_id = ? AND invitation_type = ? AND status = ?",
				email, inviter.ID, invitationType, models.InvitationStatusPending).
			Count(&pending).Error; err != nil {
			return fmt.Errorf("invitation service: check pending: %w", err)
		}
		if pending > 0 {
			return ErrDuplicateInvitation
		}

		if err := tx.Create(invitation).Error; err != nil {
			if isUniqueConstraintError(err) {
				return ErrDuplicateInvitation
			}
			return fmt.Errorf("invitation service: create invitation: %w", err)
		}

		if s.mailer != nil {
			message := mail.Message{
				To:      []string{email},
				Subject: s.mailSubject(&inviter, invitationType),
				Body:    s.mailBody(&inviter, invitationType, s.invitationLink(rawToken)),
			}
			if mailErr := s.mailer.Send(ctx, message); mailErr != nil && !errors.Is(mailErr, mail.ErrDeliveryDisabled) {
				return fmt.Errorf("invitation service: send email: %w", mailErr)
			}
		}

		return nil
	})
	if err != nil {
		return nil, "", err
	}

	metrics.InvitationsCreated.WithLabelValues(invitationType).Inc()
	s.notifyRecipient(ctx, invitation, &inviter)

	return invitation, rawToken, nil
}

// Preview returns the invitation matching the token without mutating it.
func (s *InvitationService) Preview(ctx context.Context, token string) (*InvitationPreview, error) {
	ctx = ensureContext(ctx)

	invitation, err := s.findByToken(s.db.WithContext(ctx), token)
	if err != nil {
		return nil, err
	}

	return &InvitationPreview{
		Invitation: invitation,
		Expired:    invitation.Expired(s.now().UTC()),
	}, nil
}

// Resolve accepts or declines an invitation on behalf of the resolver. All
// side effects of acceptance run in one transaction: the status flip, the
// membership insert with its capacity check, the manager's role change and
// the initial sharing preferences either all commit or none do.
func (s *InvitationService) Resolve(ctx context.Context, token, resolverID string, accept bool) (*models.Invitation, error) {
	ctx = ensureContext(ctx)

	resolverID = strings.TrimSpace(resolverID)
	if resolverID == "" {
		return nil, apperrors.ErrUnauthorized
	}

	var resolver models.Profile
	if err := s.db.WithContext(ctx).First(&resolver, "id = ?", resolverID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUnauthorized
		}
		return nil, fmt.Errorf("invitation service: load resolver: %w", err)
	}

	var invitation *models.Invitation
	var inviterID string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		invitation, err = s.findByToken(tx, token)
		if err != nil {
			return err
		}
		inviterID = invitation.InvitedByID

		if normalizeEmail(resolver.Email) != invitation.Email {
			return apperrors.ErrForbidden.WithMessage("This invitation was sent to a different email address")
		}
		if invitation.Terminal() {
			return ErrInvitationResolved
		}

		now := s.now().UTC()
		if invitation.Expired(now) {
			// Expiry is observed at read time; the row keeps its pending
			// status until maintenance sweeps it.
			metrics.InvitationsResolved.WithLabelValues(invitation.Type, "expired").Inc()
			return apperrors.ErrInvitationExpired
		}

		if accept {
			if err := s.applyAcceptance(tx, invitation, &resolver); err != nil {
				return err
			}
			invitation.Status = models.InvitationStatusAccepted
		} else {
			invitation.Status = models.InvitationStatusDeclined
		}
		invitation.ResolvedAt = &now

		if err := tx.Model(invitation).Updates(map[string]any{
			"status":      invitation.Status,
			"resolved_at": now,
			"manager_id":  invitation.ManagerID,
			"team_id":     invitation.TeamID,
		}).Error; err != nil {
			return fmt.Errorf("invitation service: update invitation: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	outcome := "declined"
	if accept {
		outcome = "accepted"

		// The membership commits through teams.attach inside the transaction
		// above, so the gauge and realtime event are settled here.
		memberID := resolver.ID
		if invitation.Type == models.InvitationTypeManagerRequest {
			memberID = invitation.InvitedByID
		}
		s.teams.memberAdded(deref(invitation.ManagerID), memberID)
	}
	metrics.InvitationsResolved.WithLabelValues(invitation.Type, outcome).Inc()
	s.notifyInviter(ctx, invitation, &resolver, inviterID, outcome)

	return invitation, nil
}

// ListSent returns the invitations created by a profile, newest first.
func (s *InvitationService) ListSent(ctx context.Context, inviterID string) ([]models.Invitation, error) {
	ctx = ensureContext(ctx)

	inviterID = strings.TrimSpace(inviterID)
	if inviterID == "" {
		return nil, apperrors.NewBadRequest("inviter id is required")
	}

	var invitations []models.Invitation
	if err := s.db.WithContext(ctx).
		Where("invited_by_id = ?", inviterID).
		Order("invited_at DESC").
		Find(&invitations).Error; err != nil {
		return nil, fmt.Errorf("invitation service: list sent: %w", err)
	}
	return invitations, nil
}

// ListReceived returns the invitations addressed to an email, newest first.
func (s *InvitationService) ListReceived(ctx context.Context, email string) ([]models.Invitation, error) {
	ctx = ensureContext(ctx)

	email = normalizeEmail(email)
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}

	var invitations []models.Invitation
	if err := s.db.WithContext(ctx).
		Preload("InvitedBy").
		Where("email = ?", email).
		Order("invited_at DESC").
		Find(&invitations).Error; err != nil {
		return nil, fmt.Errorf("invitation service: list received: %w", err)
	}
	return invitations, nil
}

// applyAcceptance wires the team-side effects of an accepted invitation
// inside the caller's transaction.
func (s *InvitationService) applyAcceptance(tx *gorm.DB, invitation *models.Invitation, resolver *models.Profile) error {
	switch invitation.Type {
	case models.InvitationTypeManagerRequest:
		// The resolver agreed to manage the inviter.
		var inviter models.Profile
		if err := tx.First(&inviter, "id = ?", invitation.InvitedByID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound.WithMessage("Inviter profile no longer exists")
			}
			return fmt.Errorf("invitation service: load inviter: %w", err)
		}

		if err := tx.Model(resolver).Update("can_manage_teams", true).Error; err != nil {
			return fmt.Errorf("invitation service: grant manage flag: %w", err)
		}
		resolver.CanManageTeams = true

		if err := s.teams.attach(tx, resolver, &inviter); err != nil {
			return err
		}
		invitation.ManagerID = &resolver.ID

		if err := s.seedSharing(tx, inviter.ID, resolver.ID); err != nil {
			return err
		}

	case models.InvitationTypeTeamJoin:
		// The resolver joins the inviter's team.
		if invitation.ManagerID == nil {
			return apperrors.ErrInternalServer.WithInternal(errors.New("team_join invitation without manager"))
		}

		var manager models.Profile
		if err := tx.First(&manager, "id = ?", *invitation.ManagerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound.WithMessage("Manager profile no longer exists")
			}
			return fmt.Errorf("invitation service: load manager: %w", err)
		}

		if !manager.CanManageTeams {
			if err := tx.Model(&manager).Update("can_manage_teams", true).Error; err != nil {
				return fmt.Errorf("invitation service: grant manage flag: %w", err)
			}
			manager.CanManageTeams = true
		}

		if err := s.teams.attach(tx, &manager, resolver); err != nil {
			return err
		}

		if err := s.seedSharing(tx, resolver.ID, manager.ID); err != nil {
			return err
		}

	default:
		return apperrors.NewBadRequest("unknown invitation type")
	}

	team, err := teamForManager(tx, deref(invitation.ManagerID))
	if err != nil {
		return err
	}
	invitation.TeamID = &team.ID

	return nil
}

// seedSharing creates the employee's initial visibility switches towards the
// manager. An existing row wins; acceptance never resets prior choices.
func (s *InvitationService) seedSharing(tx *gorm.DB, employeeID, managerID string) error {
	preference := models.SharingPreference{
		EmployeeID:         employeeID,
		ManagerID:          managerID,
		ShareProfile:       s.sharingDefault,
		ShareInsights:      s.sharingDefault,
		ShareConversations: s.sharingDefault,
		ShareOcean:         s.sharingDefault,
		ShareProgress:      s.sharingDefault,
	}
	if err := tx.Create(&preference).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil
		}
		return fmt.Errorf("invitation service: seed sharing preference: %w", err)
	}
	return nil
}

func (s *InvitationService) findByToken(tx *gorm.DB, token string) (*models.Invitation, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperrors.NewBadRequest("invitation token is required")
	}

	var invitation models.Invitation
	err := tx.First(&invitation, "token_digest = ?", crypto.TokenDigest(token)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvitationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("invitation service: find invitation: %w", err)
	}
	return &invitation, nil
}

func (s *InvitationService) notifyRecipient(ctx context.Context, invitation *models.Invitation, inviter *models.Profile) {
	if s.notifications == nil {
		return
	}

	var recipient models.Profile
	if err := s.db.WithContext(ctx).First(&recipient, "email = ?", invitation.Email).Error; err != nil {
		return
	}

	if _, err := s.notifications.Create(ctx, CreateNotificationInput{
		ProfileID: recipient.ID,
		Type:      "invitation.received",
		Title:     "New invitation",
		Message:   fmt.Sprintf("%s sent you an invitation", inviterName(inviter)),
		Metadata: map[string]any{
			"invitation_id":   invitation.ID,
			"invitation_type": invitation.Type,
		},
	}); err != nil {
		logger.Warn("invitation notification failed", zap.Error(err))
	}
}

func (s *InvitationService) notifyInviter(ctx context.Context, invitation *models.Invitation, resolver *models.Profile, inviterID, outcome string) {
	if s.notifications == nil || inviterID == "" {
		return
	}

	if _, err := s.notifications.Create(ctx, CreateNotificationInput{
		ProfileID: inviterID,
		Type:      "invitation." + outcome,
		Title:     "Invitation " + outcome,
		Message:   fmt.Sprintf("%s %s your invitation", inviterName(resolver), outcome),
		Metadata: map[string]any{
			"invitation_id":   invitation.ID,
			"invitation_type": invitation.Type,
		},
	}); err != nil {
		logger.Warn("invitation notification failed", zap.Error(err))
	}
}

func (s *InvitationService) invitationLink(token string) string {
	if s.baseURL == "" {
		return token
	}
	return fmt.Sprintf("%s/invitations/resolve?token=%s", s.baseURL, token)
}

func (s *InvitationService) mailSubject(inviter *models.Profile, invitationType string) string {
	if invitationType == models.InvitationTypeManagerRequest {
		return fmt.Sprintf("%s asked you to be their manager", inviterName(inviter))
	}
	return fmt.Sprintf("%s invited you to join their team", inviterName(inviter))
}

func (s *InvitationService) mailBody(inviter *models.Profile, invitationType, link string) string {
	action := "join their team on PersonaInsights"
	if invitationType == models.InvitationTypeManagerRequest {
		action = "become their manager on PersonaInsights"
	}
	return fmt.Sprintf(
		"Hello,\n\n%s has invited you to %s. Use the following link to respond:\n%s\n\nThe link expires on its own; if you did not expect this email, you can ignore it.\n",
		inviterName(inviter), action, link,
	)
}

func inviterName(profile *models.Profile) string {
	if profile == nil {
		return "Someone"
	}
	if name := strings.TrimSpace(profile.DisplayName); name != "" {
		return name
	}
	return profile.Email
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
