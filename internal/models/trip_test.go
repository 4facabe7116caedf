package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrip_Duration(t *testing.T) {
	dep := time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC)
	arr := dep.Add(95 * time.Minute)
	early := dep.Add(-time.Minute)

	tests := []struct {
		name   string
		trip   Trip
		want   time.Duration
		wantOK bool
	}{
		{"finished", Trip{Status: TripFinished, DepartureTime: dep, ArrivalTime: &arr}, 95 * time.Minute, true},
		{"in progress", Trip{Status: TripInProgress, DepartureTime: dep}, 0, false},
		{"finished without arrival", Trip{Status: TripFinished, DepartureTime: dep}, 0, false},
		{"arrival before departure", Trip{Status: TripFinished, DepartureTime: dep, ArrivalTime: &early}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.trip.Duration()
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTripUpdate_IsEmpty(t *testing.T) {
	assert.True(t, TripUpdate{}.IsEmpty())
	route := "Centro"
	assert.False(t, TripUpdate{RouteDescription: &route}.IsEmpty())
}

func TestStatusValidation(t *testing.T) {
	assert.True(t, IsValidTripStatus(TripInProgress))
	assert.False(t, IsValidTripStatus("cancelled"))
	assert.True(t, IsValidVehicleStatus(VehicleMaintenance))
	assert.False(t, IsValidVehicleStatus(""))
	assert.True(t, IsValidDriverStatus(DriverCredentialed))
	assert.False(t, IsValidDriverStatus("active"))
}
