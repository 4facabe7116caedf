package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-logbook/internal/clock"
	"github.com/ukydev/fleet-logbook/internal/models"
)

func refill(day int, odometer int64, liters float64) models.Refill {
	return models.Refill{
		VehiclePlate: "X",
		Timestamp:    time.Date(2025, 1, day, 12, 0, 0, 0, time.UTC),
		Odometer:     &odometer,
		Liters:       &liters,
	}
}

func january() clock.Range {
	return clock.Range{
		From: time.Date(2025, 1, 1, 3, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 2, 1, 2, 59, 59, 0, time.UTC),
	}
}

func TestCompute_TwoRefills(t *testing.T) {
	refills := []models.Refill{refill(1, 1000, 40), refill(15, 1150, 10)}

	snap := Compute("X", refills, nil, "2025-01", january())

	require.NotNil(t, snap.ComputedEfficiency)
	assert.Equal(t, 15.0, *snap.ComputedEfficiency)
	assert.Equal(t, 15.0, *snap.Efficiency)
	assert.Equal(t, 15.0, *snap.WeightedEfficiency)
	assert.False(t, snap.OverrideActive)
	assert.Nil(t, snap.OverrideValue)
	assert.Equal(t, 1, snap.Pairs)
	assert.Equal(t, 50.0, snap.TotalLiters)
	assert.Equal(t, 750.0, *snap.EstimatedTotalKm)
	require.NotNil(t, snap.MonthlyDistance)
	assert.EqualValues(t, 150, *snap.MonthlyDistance)
	assert.EqualValues(t, 1150, *snap.LastOdometer)
}

func TestCompute_SingleRefillHasNoEfficiency(t *testing.T) {
	snap := Compute("X", []models.Refill{refill(3, 5000, 30)}, nil, "2025-01", january())

	assert.Nil(t, snap.Efficiency)
	assert.Nil(t, snap.ComputedEfficiency)
	assert.Nil(t, snap.WeightedEfficiency)
	assert.Nil(t, snap.EstimatedTotalKm)
	assert.Equal(t, 0, snap.Pairs)
	require.NotNil(t, snap.MonthlyDistance)
	assert.EqualValues(t, 0, *snap.MonthlyDistance)
}

func TestCompute_OverrideIsPrimary(t *testing.T) {
	override := 9.876
	refills := []models.Refill{refill(1, 1000, 40), refill(15, 1150, 10)}

	snap := Compute("X", refills, &override, "2025-01", january())

	assert.True(t, snap.OverrideActive)
	assert.Equal(t, 9.88, *snap.Efficiency)
	assert.Equal(t, 9.876, *snap.OverrideValue)
	assert.Equal(t, 15.0, *snap.ComputedEfficiency, "computed value stays visible")
	assert.Equal(t, 494.0, *snap.EstimatedTotalKm)

	// Override applies even with no computable pair.
	snap = Compute("X", nil, &override, "2025-01", january())
	assert.Equal(t, 9.88, *snap.Efficiency)
	assert.Nil(t, snap.ComputedEfficiency)
	assert.Nil(t, snap.EstimatedTotalKm)
}

func TestCompute_SimpleVersusWeighted(t *testing.T) {
	// Pairs: 100km/10l = 10, 300km/10l = 30.
	refills := []models.Refill{refill(1, 0, 5), refill(2, 100, 10), refill(3, 400, 10)}

	snap := Compute("X", refills, nil, "2025-01", january())

	assert.Equal(t, 20.0, *snap.ComputedEfficiency)
	assert.Equal(t, 20.0, *snap.WeightedEfficiency)

	// Unequal liters make the two averages differ: 100/4=25, 300/20=15.
	refills = []models.Refill{refill(1, 0, 5), refill(2, 100, 4), refill(3, 400, 20)}
	snap = Compute("X", refills, nil, "2025-01", january())
	assert.Equal(t, 20.0, *snap.ComputedEfficiency)
	assert.Equal(t, 16.67, *snap.WeightedEfficiency)
}

func TestPairs_SkipsAnomalies(t *testing.T) {
	noOdo := models.Refill{Timestamp: time.Date(2025, 1, 4, 0, 0, 0, 0, time.UTC), Liters: ptr(10.0)}
	noLiters := models.Refill{Timestamp: time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC), Odometer: ptr(int64(1500))}

	tests := []struct {
		name    string
		refills []models.Refill
		want    int
	}{
		{"decreasing odometer", []models.Refill{refill(1, 1000, 10), refill(2, 900, 10)}, 0},
		{"equal odometer", []models.Refill{refill(1, 1000, 10), refill(2, 1000, 10)}, 0},
		{"zero liters", []models.Refill{refill(1, 1000, 10), refill(2, 1100, 0)}, 0},
		{"missing odometer breaks the chain", []models.Refill{refill(1, 1000, 10), noOdo, refill(5, 1200, 10)}, 0},
		{"missing liters", []models.Refill{refill(1, 1000, 10), noLiters}, 0},
		{"mixed", []models.Refill{refill(1, 1000, 10), refill(2, 900, 10), refill(3, 1100, 10)}, 1},
		{"empty", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, Pairs(tt.refills), tt.want)
		})
	}
}

func TestCompute_SortsInput(t *testing.T) {
	refills := []models.Refill{refill(15, 1150, 10), refill(1, 1000, 40)}
	snap := Compute("X", refills, nil, "2025-01", january())
	require.NotNil(t, snap.ComputedEfficiency)
	assert.Equal(t, 15.0, *snap.ComputedEfficiency)
	// The caller's slice is left alone.
	assert.Equal(t, 15, refills[0].Timestamp.Day())
}

func TestMonthlyDistance(t *testing.T) {
	feb := models.Refill{Timestamp: time.Date(2025, 2, 10, 12, 0, 0, 0, time.UTC), Odometer: ptr(int64(9000))}
	// 02:00 UTC on Feb 1st is still January 31st in UTC-3.
	lateJan := models.Refill{Timestamp: time.Date(2025, 2, 1, 2, 0, 0, 0, time.UTC), Odometer: ptr(int64(2000))}

	assert.Nil(t, MonthlyDistance(nil, january()))
	assert.Nil(t, MonthlyDistance([]models.Refill{feb}, january()))

	got := MonthlyDistance([]models.Refill{refill(3, 1200, 1), refill(20, 1000, 1), feb, lateJan}, january())
	require.NotNil(t, got)
	assert.EqualValues(t, 1000, *got)
}
