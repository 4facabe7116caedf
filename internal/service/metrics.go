package service

import (
	"context"
	"errors"
	"strings"

	"github.com/ukydev/fleet-logbook/internal/db"
	"github.com/ukydev/fleet-logbook/internal/metrics"
	"github.com/ukydev/fleet-logbook/internal/normalize"
)

// MetricsService derives efficiency and distance figures per vehicle.
type MetricsService struct {
	d Deps
}

// NewMetricsService creates a MetricsService.
func NewMetricsService(d Deps) *MetricsService {
	return &MetricsService{d: d}
}

// Vehicle computes the metrics snapshot of plate for month (YYYY-MM, default
// the current local month). Vehicles with refills but no registry entry are
// still reported, without override.
func (s *MetricsService) Vehicle(ctx context.Context, plate, month string) (metrics.Snapshot, error) {
	plate = normalize.Plate(plate)
	if plate == "" {
		return metrics.Snapshot{}, validationf("plate is required")
	}
	if strings.TrimSpace(month) == "" {
		month = s.d.Zone.CurrentMonth(s.d.Clock.Now())
	}
	period, err := s.d.Zone.MonthRange(month)
	if err != nil {
		return metrics.Snapshot{}, validationf("%s", err.Error())
	}

	vehicle, err := s.d.Vehicles.FindVehicleByPlate(ctx, plate)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return metrics.Snapshot{}, storeError("vehicle", err)
	}
	refills, err := s.d.Refills.FindRefillsByPlate(ctx, plate)
	if err != nil {
		return metrics.Snapshot{}, storeError("refill", err)
	}
	if vehicle == nil && len(refills) == 0 {
		return metrics.Snapshot{}, notFoundf("vehicle %s not found", plate)
	}

	var override *float64
	if vehicle != nil {
		override = vehicle.EfficiencyOverride
	}
	snap := metrics.Compute(plate, refills, override, strings.TrimSpace(month), period)
	if vehicle != nil && vehicle.LastOdometer != nil {
		if snap.LastOdometer == nil || *snap.LastOdometer < *vehicle.LastOdometer {
			odo := *vehicle.LastOdometer
			snap.LastOdometer = &odo
		}
	}
	return snap, nil
}
