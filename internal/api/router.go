package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/personainsights/server/internal/app"
	iauth "github.com/personainsights/server/internal/auth"
	"github.com/personainsights/server/internal/cache"
	"github.com/personainsights/server/internal/handlers"
	"github.com/personainsights/server/internal/middleware"
	"github.com/personainsights/server/internal/realtime"
	"github.com/personainsights/server/pkg/mail"
)

// Dependencies carries the long-lived collaborators the router does not build
// itself: the websocket hub, the outbound mailer and the cache backing both
// analytics and rate limiting.
type Dependencies struct {
	Hub       *realtime.Hub
	Mailer    mail.Mailer
	Cache     cache.Store
	RateStore middleware.RateStore
}

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config, deps Dependencies) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle is required")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service is required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if deps.Hub == nil {
		deps.Hub = realtime.NewHub()
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewDatabaseStore(db)
	}

	svc, err := buildServices(db, cfg, deps)
	if err != nil {
		return nil, err
	}

	r := gin.New()

	// Middleware applies to every route, including NoRoute
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())
	r.Use(middleware.RateLimit(deps.RateStore, cfg.Server.RateLimit.MaxRequests, cfg.Server.RateLimit.Window))

	// Liveness probe, no auth
	r.GET("/health", handlers.Health(db))

	authHandler, err := handlers.NewAuthHandler(db, jwt)
	if err != nil {
		return nil, err
	}

	// Unauthenticated account routes
	authRoutes := r.Group("/api/auth")
	{
		authRoutes.POST("/register", authHandler.Register)
		authRoutes.POST("/login", authHandler.Login)
	}

	// Realtime upgrades authenticate via query token, so the route stays
	// outside the bearer-token group.
	realtimeHandler := handlers.NewRealtimeHandler(deps.Hub, jwt)
	r.GET("/api/realtime", realtimeHandler.Stream)

	requireAuth := middleware.Auth(jwt)

	api := r.Group("/api")
	api.Use(requireAuth)

	api.GET("/auth/me", authHandler.Me)

	// Profile
	profileHandler := handlers.NewProfileHandler(svc.Profiles)
	api.GET("/profile", profileHandler.Get)
	api.PATCH("/profile", profileHandler.Update)

	// Invitations
	invitationHandler := handlers.NewInvitationHandler(svc.Invitations, svc.Profiles)
	invitations := api.Group("/invitations")
	{
		invitations.POST("", invitationHandler.Create)
		invitations.GET("/sent", invitationHandler.ListSent)
		invitations.GET("/received", invitationHandler.ListReceived)
		invitations.GET("/:token", invitationHandler.Preview)
		invitations.POST("/:token/resolve", invitationHandler.Resolve)
	}

	// Teams
	teamHandler := handlers.NewTeamHandler(svc.Teams, svc.Analytics)
	teams := api.Group("/teams")
	{
		teams.GET("/mine", teamHandler.MyTeam)
		teams.GET("/members", teamHandler.ListMembers)
		teams.DELETE("/members/:memberID", teamHandler.RemoveMember)
		teams.GET("/managers", teamHandler.Managers)
	}
	api.GET("/manager/access", teamHandler.DashboardAccess)
	api.GET("/manager/analytics", teamHandler.Analytics)

	// Sharing preferences
	sharingHandler := handlers.NewSharingHandler(svc.Sharing, svc.Teams)
	sharing := api.Group("/sharing")
	{
		sharing.GET("", sharingHandler.List)
		sharing.GET("/:managerID", sharingHandler.Get)
		sharing.PUT("/:managerID", sharingHandler.Update)
	}
	api.GET("/manager/employees/:employeeID/overview", sharingHandler.EmployeeOverview)

	// Conversations, insights and trait scores
	insightHandler := handlers.NewInsightHandler(svc.Insights)
	api.POST("/conversations", insightHandler.RecordConversation)
	api.GET("/conversations", insightHandler.ListConversations)
	insights := api.Group("/insights")
	{
		insights.POST("", insightHandler.AddInsight)
		insights.GET("", insightHandler.ListInsights)
	}
	api.GET("/ocean", insightHandler.GetOcean)
	api.PUT("/ocean", insightHandler.UpsertOcean)

	// Notifications
	notificationHandler := handlers.NewNotificationHandler(svc.Notifications)
	notifications := api.Group("/notifications")
	{
		notifications.GET("", notificationHandler.List)
		notifications.GET("/unread_count", notificationHandler.UnreadCount)
		notifications.POST("/:id/read", notificationHandler.MarkRead)
		notifications.POST("/read_all", notificationHandler.MarkAllRead)
	}

	// Prometheus scrape endpoint
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	// Unknown paths get the envelope too
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
