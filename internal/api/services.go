package api

import (
	"gorm.io/gorm"

	"github.com/personainsights/server/internal/app"
	"github.com/personainsights/server/internal/services"
)

// serviceSet groups the domain services the router hands to handlers.
type serviceSet struct {
	Profiles      *services.ProfileService
	Teams         *services.TeamService
	Invitations   *services.InvitationService
	Notifications *services.NotificationService
	Sharing       *services.SharingService
	Analytics     *services.AnalyticsService
	Insights      *services.InsightService
}

func buildServices(db *gorm.DB, cfg *app.Config, deps Dependencies) (*serviceSet, error) {
	profiles, err := services.NewProfileService(db)
	if err != nil {
		return nil, err
	}

	var teamOpts []services.TeamOption
	if cfg.Teams.Capacity > 0 {
		teamOpts = append(teamOpts, services.WithTeamCapacity(cfg.Teams.Capacity))
	}
	teams, err := services.NewTeamService(db, deps.Hub, teamOpts...)
	if err != nil {
		return nil, err
	}

	notifications, err := services.NewNotificationService(db, deps.Hub)
	if err != nil {
		return nil, err
	}

	invitations, err := services.NewInvitationService(db, teams, notifications, deps.Mailer,
		cfg.Invitations.InvitationOptions(cfg.Sharing)...)
	if err != nil {
		return nil, err
	}

	sharing, err := services.NewSharingService(db, teams)
	if err != nil {
		return nil, err
	}

	analytics, err := services.NewAnalyticsService(db, teams, deps.Cache,
		cfg.Analytics.AnalyticsOptions()...)
	if err != nil {
		return nil, err
	}

	insights, err := services.NewInsightService(db, analytics)
	if err != nil {
		return nil, err
	}

	return &serviceSet{
		Profiles:      profiles,
		Teams:         teams,
		Invitations:   invitations,
		Notifications: notifications,
		Sharing:       sharing,
		Analytics:     analytics,
		Insights:      insights,
	}, nil
}
