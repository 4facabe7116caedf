// Package metrics derives fuel efficiency and distance figures from a
// vehicle's refill history.
//
// Efficiency pairs are consecutive refills (a, b) in time order where both
// carry an odometer reading, the odometer grew and b has liters > 0:
//
//	km/l = (odometer(b) - odometer(a)) / liters(b)
//
// A pair with a missing reading, a non-increasing odometer or no liters is
// skipped.
package metrics

import (
	"math"
	"sort"

	"github.com/ukydev/fleet-logbook/internal/clock"
	"github.com/ukydev/fleet-logbook/internal/models"
)

// Snapshot is the metrics view of one vehicle.
type Snapshot struct {
	Plate string `json:"plate"`

	// Efficiency is the manual override when one is set, else ComputedEfficiency.
	Efficiency         *float64 `json:"km_per_liter"`
	ComputedEfficiency *float64 `json:"km_per_liter_computed"`
	WeightedEfficiency *float64 `json:"km_per_liter_weighted"`
	OverrideActive     bool     `json:"override_active"`
	OverrideValue      *float64 `json:"override_value"`

	Month           string `json:"month"`
	MonthlyDistance *int64 `json:"km_in_month"`

	LastOdometer     *int64   `json:"last_odometer"`
	TotalLiters      float64  `json:"total_liters"`
	EstimatedTotalKm *float64 `json:"estimated_total_km"`

	Refills int `json:"refills"`
	Pairs   int `json:"pairs"`
}

// Pair is one usable consecutive refill pair.
type Pair struct {
	Distance   int64
	Liters     float64
	Efficiency float64
}

// Pairs returns the usable consecutive pairs of refills, which must already be
// in ascending time order.
func Pairs(refills []models.Refill) []Pair {
	var out []Pair
	for i := 1; i < len(refills); i++ {
		a, b := refills[i-1], refills[i]
		if a.Odometer == nil || b.Odometer == nil || b.Liters == nil {
			continue
		}
		distance := *b.Odometer - *a.Odometer
		if distance <= 0 || *b.Liters <= 0 {
			continue
		}
		out = append(out, Pair{
			Distance:   distance,
			Liters:     *b.Liters,
			Efficiency: float64(distance) / *b.Liters,
		})
	}
	return out
}

// Compute builds the snapshot for refills of one vehicle. The input is sorted
// by timestamp on a copy, so callers may pass any order. month bounds the
// monthly distance.
func Compute(plate string, refills []models.Refill, override *float64, monthLabel string, month clock.Range) Snapshot {
	sorted := make([]models.Refill, len(refills))
	copy(sorted, refills)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	snap := Snapshot{Plate: plate, Month: monthLabel, Refills: len(sorted)}

	pairs := Pairs(sorted)
	snap.Pairs = len(pairs)
	if len(pairs) > 0 {
		var sumEff, sumKm, sumLiters float64
		for _, p := range pairs {
			sumEff += p.Efficiency
			sumKm += float64(p.Distance)
			sumLiters += p.Liters
		}
		snap.ComputedEfficiency = ptr(round2(sumEff / float64(len(pairs))))
		snap.WeightedEfficiency = ptr(round2(sumKm / sumLiters))
	}

	snap.Efficiency = snap.ComputedEfficiency
	if override != nil {
		snap.OverrideActive = true
		snap.OverrideValue = ptr(*override)
		snap.Efficiency = ptr(round2(*override))
	}

	var total float64
	for _, r := range sorted {
		if r.Liters != nil {
			total += *r.Liters
		}
		if r.Odometer != nil {
			snap.LastOdometer = ptr(*r.Odometer)
		}
	}
	snap.TotalLiters = round2(total)
	if snap.Efficiency != nil && total > 0 {
		snap.EstimatedTotalKm = ptr(round2(total * *snap.Efficiency))
	}

	snap.MonthlyDistance = MonthlyDistance(sorted, month)
	return snap
}

// MonthlyDistance is max minus min odometer among readings inside month: nil
// with no reading, zero with a single one.
func MonthlyDistance(refills []models.Refill, month clock.Range) *int64 {
	var lo, hi int64
	n := 0
	for _, r := range refills {
		if r.Odometer == nil || !month.Contains(r.Timestamp) {
			continue
		}
		odo := *r.Odometer
		if n == 0 || odo < lo {
			lo = odo
		}
		if n == 0 || odo > hi {
			hi = odo
		}
		n++
	}
	if n == 0 {
		return nil
	}
	d := hi - lo
	return &d
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func ptr[T any](v T) *T { return &v }
