package service

import (
	"context"
	"strings"
	"time"

	"github.com/ukydev/fleet-logbook/internal/audit"
	"github.com/ukydev/fleet-logbook/internal/cache"
	"github.com/ukydev/fleet-logbook/internal/dashboard"
)

// DashboardService builds the fleet overview through a read cache.
type DashboardService struct {
	d     Deps
	cache cache.Cache
}

// NewDashboardService creates a DashboardService backed by c.
func NewDashboardService(d Deps, c cache.Cache) *DashboardService {
	return &DashboardService{d: d, cache: c}
}

// Get returns the dashboard for month (YYYY-MM). An empty month means the
// current local month, cached under its own key with a longer lifetime.
// Keys carry the local date since every snapshot reports today's trips.
func (s *DashboardService) Get(ctx context.Context, month string) (dashboard.Snapshot, error) {
	now := s.d.Clock.Now()
	day := now.In(s.d.Zone.Loc).Format("2006-01-02")
	month = strings.TrimSpace(month)
	key, ttl := "month="+month+":day="+day, s.d.Settings.DashboardTTL
	if month == "" {
		month = s.d.Zone.CurrentMonth(now)
		key, ttl = "current:day="+day, s.d.Settings.DashboardCurrentTTL
	}
	if _, err := s.d.Zone.MonthRange(month); err != nil {
		return dashboard.Snapshot{}, validationf("%s", err.Error())
	}
	return cache.Fetch(ctx, s.cache, key, ttl, func(ctx context.Context) (dashboard.Snapshot, error) {
		return s.build(ctx, month)
	})
}

func (s *DashboardService) build(ctx context.Context, month string) (dashboard.Snapshot, error) {
	period, err := s.d.Zone.MonthRange(month)
	if err != nil {
		return dashboard.Snapshot{}, validationf("%s", err.Error())
	}
	limit := s.d.Settings.DashboardPeriodCap
	periodTrips, err := s.d.Trips.FindTripsBetween(ctx, period, int64(limit))
	if err != nil {
		return dashboard.Snapshot{}, storeError("trip", err)
	}
	today, err := s.d.Trips.CountTripsBetween(ctx, s.d.Zone.DayRange(s.d.Clock.Now()))
	if err != nil {
		return dashboard.Snapshot{}, storeError("trip", err)
	}
	drivers, err := s.d.Drivers.FindDrivers(ctx)
	if err != nil {
		return dashboard.Snapshot{}, storeError("driver", err)
	}
	vehicles, err := s.d.Vehicles.FindVehicles(ctx)
	if err != nil {
		return dashboard.Snapshot{}, storeError("vehicle", err)
	}
	recent, err := s.d.Trips.FindRecentTrips(ctx, int64(s.d.Settings.DashboardRecentLimit))
	if err != nil {
		return dashboard.Snapshot{}, storeError("trip", err)
	}

	snap := dashboard.Build(dashboard.Input{
		Month:       month,
		PeriodTrips: periodTrips,
		PeriodCap:   limit,
		TodayCount:  today,
		Drivers:     drivers,
		Vehicles:    vehicles,
		Recent:      recent,
	})
	if snap.PeriodTruncated {
		s.d.Log.WithField("month", month).Warn("dashboard period hit the row cap; figures are a lower bound")
	}
	return snap, nil
}

// ClearCache drops every cached read.
func (s *DashboardService) ClearCache(ctx context.Context) (Result, error) {
	if err := s.d.Caches.InvalidateAll(ctx); err != nil {
		return Result{}, &Error{Kind: ErrUpstreamUnavailable, Message: "cache could not be cleared", Cause: err}
	}
	s.d.Audit.Record(ctx, audit.ActionCacheClear, "cache", nil)
	return Result{Message: "Cache cleared at " + s.d.Zone.Format(s.d.Clock.Now(), time.DateTime) + "."}, nil
}
