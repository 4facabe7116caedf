package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-logbook/internal/models"
	"github.com/ukydev/fleet-logbook/internal/report"
)

func newReportService(f *fixture) *ReportService {
	return NewReportService(f.deps, f.historySvc(), report.NewGenerator(f.zone, f.clock.Now))
}

func TestReports(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedTrip(t, f, "ABC1234", "Joao", time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC), true)
	_, err := f.refills().Record(ctx, models.RefillRequest{Plate: "ABC1234", Liters: ptr(20.0)})
	require.NoError(t, err)
	_, err = f.registry().CreateVehicle(ctx, models.VehicleRequest{Plate: "ABC1234"})
	require.NoError(t, err)
	svc := newReportService(f)

	out, err := svc.TripsPDF(ctx, models.TripHistoryFilter{Month: "2025-03"})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))

	out, err = svc.TripsXLSX(ctx, models.TripHistoryFilter{Plate: "ABC"})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("PK")))

	out, err = svc.RefillsPDF(ctx, "ABC1234", "2025-03")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))

	out, err = svc.VehiclesPDF(ctx, models.VehicleActive)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestReports_Validation(t *testing.T) {
	f := newFixture(t)
	svc := newReportService(f)

	_, err := svc.TripsPDF(context.Background(), models.TripHistoryFilter{Month: "99"})
	assert.Equal(t, KindValidation, KindOf(err))
	_, err = svc.RefillsPDF(context.Background(), "", "2025/03")
	assert.Equal(t, KindValidation, KindOf(err))
	_, err = svc.VehiclesPDF(context.Background(), "lost")
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestTripsTitle(t *testing.T) {
	assert.Equal(t, "Trips - 2025-03 - ABC1234 - Joao", tripsTitle(models.TripHistoryFilter{Month: "2025-03", Plate: "abc1234", Driver: "joao"}))
	assert.Equal(t, "Trips", tripsTitle(models.TripHistoryFilter{}))
}
