package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ukydev/fleet-logbook/internal/cache"
	"github.com/ukydev/fleet-logbook/internal/clock"
	"github.com/ukydev/fleet-logbook/internal/db"
	"github.com/ukydev/fleet-logbook/internal/models"
	"github.com/ukydev/fleet-logbook/internal/normalize"
)

// HistoryService serves the paginated trip history through a read cache.
type HistoryService struct {
	d     Deps
	cache cache.Cache
}

// NewHistoryService creates a HistoryService backed by c.
func NewHistoryService(d Deps, c cache.Cache) *HistoryService {
	return &HistoryService{d: d, cache: c}
}

// Page returns one page of trips matching filter, in-progress first and then
// newest departure first.
func (s *HistoryService) Page(ctx context.Context, filter models.TripHistoryFilter, page int) (models.TripPage, error) {
	query, label, err := s.resolve(filter)
	if err != nil {
		return models.TripPage{}, err
	}
	page, skip, limit, err := window(page, s.d.Settings.HistoryPageSize)
	if err != nil {
		return models.TripPage{}, err
	}
	key := cache.Key(map[string]string{
		"period": label,
		"plate":  query.Plate,
		"driver": strings.ToLower(query.Driver),
		"page":   strconv.Itoa(page),
	})
	return cache.Fetch(ctx, s.cache, key, s.d.Settings.HistoryTTL, func(ctx context.Context) (models.TripPage, error) {
		trips, total, err := s.d.Trips.FindTrips(ctx, query, skip, limit)
		if err != nil {
			return models.TripPage{}, storeError("trip", err)
		}
		return models.TripPage{Items: trips, Total: total, Page: page, PageSize: int(limit)}, nil
	})
}

// Export returns every trip matching filter, up to the export limit, bypassing
// the cache.
func (s *HistoryService) Export(ctx context.Context, filter models.TripHistoryFilter) ([]models.Trip, error) {
	query, _, err := s.resolve(filter)
	if err != nil {
		return nil, err
	}
	trips, _, err := s.d.Trips.FindTrips(ctx, query, 0, int64(s.d.Settings.ExportLimit))
	if err != nil {
		return nil, storeError("trip", err)
	}
	return trips, nil
}

// resolve turns the user filter into a store query and a cache label for the
// period. A date wins over month, which wins over year.
func (s *HistoryService) resolve(f models.TripHistoryFilter) (db.TripFilter, string, error) {
	query := db.TripFilter{
		Plate:  normalize.Plate(f.Plate),
		Driver: normalize.Text(f.Driver),
	}
	if f.Year != 0 && (f.Year < 2000 || f.Year > 2100) {
		return query, "", validationf("invalid year %d", f.Year)
	}

	var (
		period clock.Range
		label  string
		err    error
	)
	switch {
	case strings.TrimSpace(f.Date) != "":
		label = strings.TrimSpace(f.Date)
		period, err = s.d.Zone.DateRange(label)
	case strings.TrimSpace(f.Month) != "":
		label, err = s.monthLabel(f.Month, f.Year)
		if err == nil {
			period, err = s.d.Zone.MonthRange(label)
		}
	case f.Year != 0:
		label = strconv.Itoa(f.Year)
		period = s.d.Zone.YearRange(f.Year)
	default:
		return query, "", nil
	}
	if err != nil {
		return query, "", validationf("%s", err.Error())
	}
	query.Period = &period
	return query, label, nil
}

// monthLabel accepts "YYYY-MM" or a bare month number, the year then coming
// from year or the current local year.
func (s *HistoryService) monthLabel(month string, year int) (string, error) {
	month = strings.TrimSpace(month)
	if strings.Contains(month, "-") {
		return month, nil
	}
	m, err := strconv.Atoi(month)
	if err != nil || m < 1 || m > 12 {
		return "", fmt.Errorf("invalid month %q", month)
	}
	if year == 0 {
		year = s.d.Clock.Now().In(s.d.Zone.Loc).Year()
	}
	return fmt.Sprintf("%04d-%02d", year, m), nil
}
