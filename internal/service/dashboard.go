package service

import (
	"context"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"medimitra/backend/internal/domain"
)

const maxRevenueSeriesDays = 90

// DashboardStats summarizes the catalog, store registry and order ledger.
// Results are served from the dashboard cache while fresh.
func (s *Service) DashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.DashboardStats{}, err
	}

	cached, ok, err := s.dashboards.GetStats(ctx)
	if err != nil {
		log.Printf("[service] WARN: dashboard cache read failed: %v", err)
	} else if ok {
		return *cached, nil
	}

	stats, err := s.computeStats(ctx)
	if err != nil {
		return domain.DashboardStats{}, err
	}
	if err := s.dashboards.SetStats(ctx, &stats, s.dashboardTTL); err != nil {
		log.Printf("[service] WARN: dashboard cache write failed: %v", err)
	}
	return stats, nil
}

func (s *Service) computeStats(ctx context.Context) (domain.DashboardStats, error) {
	var stats domain.DashboardStats
	var orders []domain.Order

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats.TotalStores, err = s.repo.CountStores(gctx, "")
		return err
	})
	g.Go(func() (err error) {
		stats.ActiveStores, err = s.repo.CountStores(gctx, domain.StoreStatusActive)
		return err
	})
	g.Go(func() (err error) {
		stats.TotalMedicines, err = s.repo.CountMedicines(gctx)
		return err
	})
	g.Go(func() (err error) {
		stats.LowStockMedicines, err = s.repo.CountLowStockMedicines(gctx, domain.LowStockThreshold)
		return err
	})
	g.Go(func() (err error) {
		stats.TotalUsers, err = s.repo.CountUsers(gctx)
		return err
	})
	g.Go(func() (err error) {
		stats.TotalOrders, err = s.repo.CountOrders(gctx)
		return err
	})
	g.Go(func() (err error) {
		orders, err = s.repo.ListOrders(gctx, domain.OrderFilter{})
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.DashboardStats{}, err
	}

	now := s.now().In(s.loc)
	dayStart := startOfDay(now)
	dayEnd := dayStart.AddDate(0, 0, 1)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.loc)
	monthEnd := monthStart.AddDate(0, 1, 0)

	stats.TotalRevenue = decimal.Zero
	stats.TodayRevenue = decimal.Zero
	var first time.Time
	for _, order := range orders {
		created := order.CreatedAt.In(s.loc)
		if first.IsZero() || created.Before(first) {
			first = created
		}
		today := within(created, dayStart, dayEnd)
		if today {
			stats.TodayOrders++
		}
		if within(created, monthStart, monthEnd) {
			stats.MonthlyOrders++
		}
		if !order.Status.CountsAsRevenue() {
			continue
		}
		stats.TotalRevenue = stats.TotalRevenue.Add(order.TotalAmount)
		if today {
			stats.TodayRevenue = stats.TodayRevenue.Add(order.TotalAmount)
		}
	}

	stats.AverageDailySales = decimal.Zero
	stats.AverageMonthlySales = decimal.Zero
	if len(orders) > 0 {
		days := int64(now.Sub(first)/(24*time.Hour)) + 1
		months := monthsBetween(first, now) + 1
		if days < 1 {
			days = 1
		}
		if months < 1 {
			months = 1
		}
		stats.AverageDailySales = stats.TotalRevenue.DivRound(decimal.NewFromInt(days), 2)
		stats.AverageMonthlySales = stats.TotalRevenue.DivRound(decimal.NewFromInt(months), 2)
	}
	stats.GeneratedAt = now.UTC()
	return stats, nil
}

// RevenueSeries returns revenue per calendar day for the last n days, oldest first.
func (s *Service) RevenueSeries(ctx context.Context, days int) ([]domain.DailyRevenue, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if days < 1 {
		days = 7
	}
	if days > maxRevenueSeriesDays {
		days = maxRevenueSeriesDays
	}

	orders, err := s.repo.ListOrders(ctx, domain.OrderFilter{})
	if err != nil {
		return nil, err
	}

	today := startOfDay(s.now().In(s.loc))
	series := make([]domain.DailyRevenue, 0, days)
	for i := days - 1; i >= 0; i-- {
		start := today.AddDate(0, 0, -i)
		end := start.AddDate(0, 0, 1)
		revenue := decimal.Zero
		for _, order := range orders {
			if !order.Status.CountsAsRevenue() || !within(order.CreatedAt.In(s.loc), start, end) {
				continue
			}
			revenue = revenue.Add(order.TotalAmount)
		}
		series = append(series, domain.DailyRevenue{Date: start.Format("Jan 02"), Revenue: revenue})
	}
	return series, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func within(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}

// monthsBetween counts whole months elapsed from a to b.
func monthsBetween(a, b time.Time) int64 {
	months := int64(b.Year()-a.Year())*12 + int64(b.Month()-a.Month())
	if months > 0 && b.Before(a.AddDate(0, int(months), 0)) {
		months--
	}
	return months
}
