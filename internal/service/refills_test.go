package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-logbook/internal/audit"
	"github.com/ukydev/fleet-logbook/internal/models"
)

func TestRecordRefill(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.registry().CreateVehicle(ctx, models.VehicleRequest{Plate: "ABC1234"})
	require.NoError(t, err)

	res, err := f.refills().Record(ctx, models.RefillRequest{
		Plate: "abc 1234", Driver: "joao", Liters: ptr(40.0), Odometer: ptr(int64(12000)), Timestamp: "2025-03-01T10:00:00",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.RefillID)

	refills, err := f.store.FindRefillsByPlate(ctx, "ABC1234")
	require.NoError(t, err)
	require.Len(t, refills, 1)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), refills[0].Timestamp)
	assert.Equal(t, "Joao", refills[0].DriverName)

	vehicle, err := f.store.FindVehicleByPlate(ctx, "ABC1234")
	require.NoError(t, err)
	assert.Equal(t, int64(12000), *vehicle.LastOdometer)

	// A lower reading does not move the last odometer back.
	_, err = f.refills().Record(ctx, models.RefillRequest{Plate: "ABC1234", Liters: ptr(10.0), Odometer: ptr(int64(11000))})
	require.NoError(t, err)
	vehicle, err = f.store.FindVehicleByPlate(ctx, "ABC1234")
	require.NoError(t, err)
	assert.Equal(t, int64(12000), *vehicle.LastOdometer)

	assert.Equal(t, []string{audit.ActionVehicleCreate, audit.ActionRefillCreate, audit.ActionRefillCreate}, f.audit.Actions())
}

func TestRecordRefill_DefaultsToNow(t *testing.T) {
	f := newFixture(t)
	res, err := f.refills().Record(context.Background(), models.RefillRequest{Plate: "ABC1234", Liters: ptr(5.0)})
	require.NoError(t, err)

	refills, err := f.store.FindRefillsByPlate(context.Background(), "ABC1234")
	require.NoError(t, err)
	require.Len(t, refills, 1)
	assert.Equal(t, res.RefillID, refills[0].ID.Hex())
	assert.Equal(t, f.clock.Now(), refills[0].Timestamp)
}

func TestRecordRefill_Validation(t *testing.T) {
	f := newFixture(t)
	for name, req := range map[string]models.RefillRequest{
		"no plate":      {Liters: ptr(10.0)},
		"no liters":     {Plate: "ABC1234"},
		"zero liters":   {Plate: "ABC1234", Liters: ptr(0.0)},
		"negative odo":  {Plate: "ABC1234", Liters: ptr(1.0), Odometer: ptr(int64(-5))},
		"bad timestamp": {Plate: "ABC1234", Liters: ptr(1.0), Timestamp: "yesterday"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.refills().Record(context.Background(), req)
			assert.Equal(t, KindValidation, KindOf(err))
		})
	}
}

func TestRefill_UpdateAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.refills().Record(ctx, models.RefillRequest{Plate: "ABC1234", Liters: ptr(10.0)})
	require.NoError(t, err)

	updated, err := f.refills().Update(ctx, res.RefillID, models.RefillUpdate{Liters: ptr(12.5), Note: ptr(" receipt  lost ")})
	require.NoError(t, err)
	assert.Equal(t, 12.5, *updated.Liters)
	assert.Equal(t, "receipt lost", updated.Note)

	_, err = f.refills().Update(ctx, res.RefillID, models.RefillUpdate{Liters: ptr(-1.0)})
	assert.Equal(t, KindValidation, KindOf(err))
	_, err = f.refills().Update(ctx, res.RefillID, models.RefillUpdate{})
	assert.Equal(t, KindValidation, KindOf(err))

	require.NoError(t, f.refills().Delete(ctx, res.RefillID))
	assert.Equal(t, KindNotFound, KindOf(f.refills().Delete(ctx, res.RefillID)))
}

func TestRefill_ListAndSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	record := func(plate string, liters float64, at string) {
		_, err := f.refills().Record(ctx, models.RefillRequest{Plate: plate, Liters: ptr(liters), Timestamp: at})
		require.NoError(t, err)
	}
	record("ABC1234", 10, "2025-02-10T12:00:00Z")
	record("ABC1234", 20, "2025-03-05T12:00:00Z")
	record("XYZ9876", 25, "2025-03-06T12:00:00Z")

	page, err := f.refills().List(ctx, "abc1234", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	assert.Equal(t, 20.0, *page.Items[0].Liters)

	sum, err := f.refills().Summary(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "2025-03", sum.Month)
	assert.Equal(t, []string{"ABC1234", "XYZ9876"}, sum.PerVehicle.Labels)
	assert.Equal(t, []float64{30, 25}, sum.PerVehicle.Data)
	assert.Equal(t, []string{"XYZ9876", "ABC1234"}, sum.PerVehicleMon.Labels)
	assert.Equal(t, []float64{25, 20}, sum.PerVehicleMon.Data)

	_, err = f.refills().Summary(ctx, "03/2025")
	assert.Equal(t, KindValidation, KindOf(err))
}
