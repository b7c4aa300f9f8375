package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/personainsights/server/internal/cache"
	"github.com/personainsights/server/internal/models"
	"github.com/personainsights/server/pkg/logger"
)

const (
	defaultAnalyticsTTL    = 5 * time.Minute
	defaultAnalyticsSettle = 2 * time.Second
)

// OceanAverages holds per-trait means across the sharing team members.
type OceanAverages struct {
	Openness          float64 `json:"openness"`
	Conscientiousness float64 `json:"conscientiousness"`
	Extraversion      float64 `json:"extraversion"`
	Agreeableness     float64 `json:"agreeableness"`
	Neuroticism       float64 `json:"neuroticism"`
	SampleSize        int     `json:"sample_size"`
}

// TeamAnalytics aggregates a team's assessment activity. Every number in it
// respects the members' sharing switches: a member who shares nothing adds
// nothing beyond the head count.
type TeamAnalytics struct {
	ManagerID         string           `json:"manager_id"`
	MemberCount       int              `json:"member_count"`
	Ocean             *OceanAverages   `json:"ocean,omitempty"`
	ConversationCount int64            `json:"conversation_count"`
	TotalDuration     int64            `json:"total_duration_seconds"`
	InsightCategories map[string]int64 `json:"insight_categories"`
	GeneratedAt       time.Time        `json:"generated_at"`
	FromCache         bool             `json:"-"`
}

// AnalyticsOption customises AnalyticsService behaviour.
type AnalyticsOption func(*AnalyticsService)

// WithAnalyticsTTL overrides the cache lifetime of computed analytics.
func WithAnalyticsTTL(ttl time.Duration) AnalyticsOption {
	return func(s *AnalyticsService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithAnalyticsSettleDelay overrides the pause between a data write and the
// cache invalidation it triggers.
func WithAnalyticsSettleDelay(d time.Duration) AnalyticsOption {
	return func(s *AnalyticsService) {
		if d >= 0 {
			s.settleDelay = d
		}
	}
}

// WithAnalyticsClock injects a custom clock primarily for testing.
func WithAnalyticsClock(clock func() time.Time) AnalyticsOption {
	return func(s *AnalyticsService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// AnalyticsService computes team-level dashboards and caches them. Cache keys
// embed a digest of the member set, so roster changes never serve stale
// aggregates; data writes invalidate after a short settle delay so bursts of
// related writes produce one recompute.
type AnalyticsService struct {
	db    *gorm.DB
	teams *TeamService
	store cache.Store

	ttl         time.Duration
	settleDelay time.Duration
	now         func() time.Time
}

// NewAnalyticsService constructs an AnalyticsService. The cache store is
// optional; without it every call recomputes.
func NewAnalyticsService(db *gorm.DB, teams *TeamService, store cache.Store, opts ...AnalyticsOption) (*AnalyticsService, error) {
	if db == nil {
		return nil, errors.New("analytics service: db is required")
	}
	if teams == nil {
		return nil, errors.New("analytics service: team service is required")
	}

	service := &AnalyticsService{
		db:          db,
		teams:       teams,
		store:       store,
		ttl:         defaultAnalyticsTTL,
		settleDelay: defaultAnalyticsSettle,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// TeamAnalytics returns the manager's team dashboard, from cache when fresh.
func (s *AnalyticsService) TeamAnalytics(ctx context.Context, managerID string) (*TeamAnalytics, error) {
	ctx = ensureContext(ctx)

	digest, err := s.teams.MembershipDigest(ctx, managerID)
	if err != nil {
		return nil, err
	}
	key := analyticsKey(managerID, digest)

	if s.store != nil {
		if payload, ok, err := s.store.Get(ctx, key); err == nil && ok {
			var cached TeamAnalytics
			if err := json.Unmarshal(payload, &cached); err == nil {
				cached.FromCache = true
				return &cached, nil
			}
		}
	}

	analytics, err := s.compute(ctx, managerID)
	if err != nil {
		return nil, err
	}

	if s.store != nil {
		if payload, err := json.Marshal(analytics); err == nil {
			if err := s.store.Set(ctx, key, payload, s.ttl); err != nil {
				logger.Warn("analytics cache write failed", zap.Error(err))
			}
		}
	}
	return analytics, nil
}

// InvalidateForMember drops cached analytics for every team the profile
// belongs to. The deletion waits out the settle delay so a burst of writes
// from one assessment invalidates once, after the data has landed.
func (s *AnalyticsService) InvalidateForMember(ctx context.Context, memberID string) {
	if s.store == nil {
		return
	}

	managers, err := s.teams.ManagersOf(ensureContext(ctx), memberID)
	if err != nil {
		logger.Warn("analytics invalidation lookup failed", zap.Error(err))
		return
	}
	if len(managers) == 0 {
		return
	}

	managerIDs := make([]string, 0, len(managers))
	for _, manager := range managers {
		managerIDs = append(managerIDs, manager.ID)
	}

	invalidate := func() {
		ctx := context.Background()
		for _, managerID := range managerIDs {
			digest, err := s.teams.MembershipDigest(ctx, managerID)
			if err != nil {
				continue
			}
			if err := s.store.Delete(ctx, analyticsKey(managerID, digest)); err != nil {
				logger.Warn("analytics cache invalidation failed", zap.Error(err))
			}
		}
	}

	if s.settleDelay <= 0 {
		invalidate()
		return
	}
	time.AfterFunc(s.settleDelay, invalidate)
}

func (s *AnalyticsService) compute(ctx context.Context, managerID string) (*TeamAnalytics, error) {
	members, err := s.teams.ListMembers(ctx, managerID)
	if err != nil {
		return nil, err
	}

	analytics := &TeamAnalytics{
		ManagerID:         managerID,
		MemberCount:       len(members),
		InsightCategories: map[string]int64{},
		GeneratedAt:       s.now().UTC(),
	}
	if len(members) == 0 {
		return analytics, nil
	}

	memberIDs := make([]string, 0, len(members))
	for _, member := range members {
		memberIDs = append(memberIDs, member.ID)
	}

	var preferences []models.SharingPreference
	if err := s.db.WithContext(ctx).
		Where("manager_id = ? AND employee_id IN ?", managerID, memberIDs).
		Find(&preferences).Error; err != nil {
		return nil, fmt.Errorf("analytics service: load preferences: %w", err)
	}

	var oceanIDs, progressIDs, insightIDs []string
	for _, preference := range preferences {
		if preference.ShareOcean {
			oceanIDs = append(oceanIDs, preference.EmployeeID)
		}
		if preference.ShareProgress {
			progressIDs = append(progressIDs, preference.EmployeeID)
		}
		if preference.ShareInsights {
			insightIDs = append(insightIDs, preference.EmployeeID)
		}
	}

	if len(oceanIDs) > 0 {
		var scores []models.OceanScore
		if err := s.db.WithContext(ctx).
			Where("profile_id IN ?", oceanIDs).
			Find(&scores).Error; err != nil {
			return nil, fmt.Errorf("analytics service: load ocean scores: %w", err)
		}
		if len(scores) > 0 {
			averages := &OceanAverages{SampleSize: len(scores)}
			for _, score := range scores {
				averages.Openness += score.Openness
				averages.Conscientiousness += score.Conscientiousness
				averages.Extraversion += score.Extraversion
				averages.Agreeableness += score.Agreeableness
				averages.Neuroticism += score.Neuroticism
			}
			n := float64(len(scores))
			averages.Openness /= n
			averages.Conscientiousness /= n
			averages.Extraversion /= n
			averages.Agreeableness /= n
			averages.Neuroticism /= n
			analytics.Ocean = averages
		}
	}

	if len(progressIDs) > 0 {
		row := s.db.WithContext(ctx).Model(&models.Conversation{}).
			Where("profile_id IN ?", progressIDs).
			Select("COUNT(*) AS conversation_count, COALESCE(SUM(duration_seconds), 0) AS total_duration").
			Row()
		if err := row.Scan(&analytics.ConversationCount, &analytics.TotalDuration); err != nil {
			return nil, fmt.Errorf("analytics service: aggregate conversations: %w", err)
		}
	}

	if len(insightIDs) > 0 {
		type categoryCount struct {
			Category string
			Count    int64
		}
		var counts []categoryCount
		if err := s.db.WithContext(ctx).Model(&models.KeyInsight{}).
			Where("profile_id IN ?", insightIDs).
			Select("category, COUNT(*) AS count").
			Group("category").
			Scan(&counts).Error; err != nil {
			return nil, fmt.Errorf("analytics service: count insights: %w", err)
		}
		for _, row := range counts {
			analytics.InsightCategories[row.Category] = row.Count
		}
	}

	return analytics, nil
}

func analyticsKey(managerID, digest string) string {
	return fmt.Sprintf("analytics:team:%s:%s", managerID, digest)
}
