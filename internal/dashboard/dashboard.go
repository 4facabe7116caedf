// Package dashboard folds trips and registry counters into the dashboard
// snapshot. Build is pure and deterministic: the same input always yields the
// same snapshot and therefore the same JSON.
package dashboard

import (
	"sort"
	"time"

	"github.com/ukydev/fleet-logbook/internal/clock"
	"github.com/ukydev/fleet-logbook/internal/models"
)

// NoLeader is reported when the period has no trips.
const NoLeader = "N/A"

// Leader is the driver or vehicle with the most trips in the period.
type Leader struct {
	Name  string `json:"name"`
	Trips int    `json:"trips"`
}

// Snapshot is the dashboard payload.
type Snapshot struct {
	Month           string `json:"month"`
	TripsInPeriod   int    `json:"trips_in_period"`
	TripsInProgress int    `json:"trips_in_progress"`
	TripsToday      int64  `json:"trips_today"`
	HoursOnRoad     string `json:"hours_on_road"`
	TopDriver       Leader `json:"top_driver"`
	TopVehicle      Leader `json:"top_vehicle"`
	TotalDrivers    int    `json:"total_drivers"`
	TotalVehicles   int    `json:"total_vehicles"`

	PeriodByDriver   models.Series `json:"period_trips_by_driver"`
	PeriodByVehicle  models.Series `json:"period_trips_by_vehicle"`
	AllTimeByDriver  models.Series `json:"all_time_trips_by_driver"`
	AllTimeByVehicle models.Series `json:"all_time_trips_by_vehicle"`

	RecentActivity []models.Trip `json:"recent_activity"`

	// PeriodTruncated is set when the period query hit its row cap, making
	// the period figures a lower bound.
	PeriodTruncated bool `json:"period_truncated"`
}

// Input gathers everything Build needs.
type Input struct {
	Month       string
	PeriodTrips []models.Trip
	PeriodCap   int
	TodayCount  int64
	Drivers     []models.Driver
	Vehicles    []models.Vehicle
	Recent      []models.Trip
}

// Build assembles the snapshot.
func Build(in Input) Snapshot {
	snap := Snapshot{
		Month:           in.Month,
		TripsInPeriod:   len(in.PeriodTrips),
		TripsToday:      in.TodayCount,
		TotalDrivers:    len(in.Drivers),
		TotalVehicles:   len(in.Vehicles),
		PeriodTruncated: in.PeriodCap > 0 && len(in.PeriodTrips) >= in.PeriodCap,
	}

	byDriver := map[string]int{}
	byVehicle := map[string]int{}
	var onRoad time.Duration
	for _, t := range in.PeriodTrips {
		if t.InProgress() {
			snap.TripsInProgress++
		}
		if d, ok := t.Duration(); ok {
			onRoad += d
		}
		if t.DriverName != "" {
			byDriver[t.DriverName]++
		}
		if t.VehiclePlate != "" {
			byVehicle[t.VehiclePlate]++
		}
	}
	snap.HoursOnRoad = clock.FormatDuration(onRoad)

	snap.PeriodByDriver = series(byDriver)
	snap.PeriodByVehicle = series(byVehicle)
	snap.TopDriver = leader(snap.PeriodByDriver)
	snap.TopVehicle = leader(snap.PeriodByVehicle)

	allDrivers := map[string]int{}
	for _, d := range in.Drivers {
		if d.TotalTrips > 0 {
			allDrivers[d.Name] = int(d.TotalTrips)
		}
	}
	allVehicles := map[string]int{}
	for _, v := range in.Vehicles {
		if v.TotalTrips > 0 {
			allVehicles[v.Plate] = int(v.TotalTrips)
		}
	}
	snap.AllTimeByDriver = series(allDrivers)
	snap.AllTimeByVehicle = series(allVehicles)

	snap.RecentActivity = RecentFirst(in.Recent)
	return snap
}

// RecentFirst orders trips in-progress first, then by departure descending.
// The input is not modified.
func RecentFirst(trips []models.Trip) []models.Trip {
	out := make([]models.Trip, len(trips))
	copy(out, trips)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].InProgress() != out[j].InProgress() {
			return out[i].InProgress()
		}
		return out[i].DepartureTime.After(out[j].DepartureTime)
	})
	return out
}

// series sorts counts descending, ties by label.
func series(counts map[string]int) models.Series {
	labels := make([]string, 0, len(counts))
	for k := range counts {
		labels = append(labels, k)
	}
	sort.Slice(labels, func(i, j int) bool {
		if counts[labels[i]] != counts[labels[j]] {
			return counts[labels[i]] > counts[labels[j]]
		}
		return labels[i] < labels[j]
	})
	data := make([]float64, len(labels))
	for i, l := range labels {
		data[i] = float64(counts[l])
	}
	return models.Series{Labels: labels, Data: data}
}

func leader(s models.Series) Leader {
	if len(s.Labels) == 0 {
		return Leader{Name: NoLeader}
	}
	return Leader{Name: s.Labels[0], Trips: int(s.Data[0])}
}
