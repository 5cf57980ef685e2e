package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"medimitra/backend/internal/cache"
	"medimitra/backend/internal/domain"
	"medimitra/backend/internal/events"
	"medimitra/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo         store.Repository
	publisher    events.Publisher
	dashboards   cache.DashboardCache
	dashboardTTL time.Duration
	loc          *time.Location
	now          func() time.Time
}

func New(repo store.Repository, publisher events.Publisher, dashboards cache.DashboardCache, dashboardTTL time.Duration, loc *time.Location) *Service {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if dashboards == nil {
		dashboards = cache.NoopDashboardCache{}
	}
	if dashboardTTL <= 0 {
		dashboardTTL = 30 * time.Second
	}
	if loc == nil {
		loc = time.UTC
	}

	return &Service{
		repo:         repo,
		publisher:    publisher,
		dashboards:   dashboards,
		dashboardTTL: dashboardTTL,
		loc:          loc,
		now:          time.Now,
	}
}

func requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role == "" {
		return domain.Actor{}, fmt.Errorf("%w: authentication required", store.ErrUnauthorized)
	}
	return actor, nil
}

func requireRole(ctx context.Context, roles ...string) (domain.Actor, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Actor{}, err
	}
	for _, role := range roles {
		if actor.Role == role {
			return actor, nil
		}
	}
	return domain.Actor{}, fmt.Errorf("%w: %s role not permitted", store.ErrUnauthorized, actor.Role)
}

// emit publishes an order event. Failures are logged; the write that caused
// the event has already committed.
func (s *Service) emit(ctx context.Context, eventType string, orderID int64, payload any) {
	env, err := events.NewEnvelope(eventType, orderID, payload)
	if err != nil {
		log.Printf("[service] WARN: failed to build %s event order=%d: %v", eventType, orderID, err)
		return
	}
	if err := s.publisher.Publish(ctx, env); err != nil {
		log.Printf("[service] WARN: failed to publish %s event order=%d: %v", eventType, orderID, err)
	}
}

func (s *Service) invalidateDashboard(ctx context.Context) {
	if err := s.dashboards.Invalidate(ctx); err != nil {
		log.Printf("[service] WARN: failed to invalidate dashboard cache: %v", err)
	}
}
