package cache

import (
	"context"
	"time"

	"medimitra/backend/internal/domain"
)

type DashboardCache interface {
	GetStats(ctx context.Context) (*domain.DashboardStats, bool, error)
	SetStats(ctx context.Context, stats *domain.DashboardStats, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopDashboardCache struct{}

func (NoopDashboardCache) GetStats(_ context.Context) (*domain.DashboardStats, bool, error) {
	return nil, false, nil
}

func (NoopDashboardCache) SetStats(_ context.Context, _ *domain.DashboardStats, _ time.Duration) error {
	return nil
}

func (NoopDashboardCache) Invalidate(_ context.Context) error {
	return nil
}
