// Package maintenance holds the data repair jobs run by cmd/backfill.
package maintenance

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-logbook/internal/audit"
	"github.com/ukydev/fleet-logbook/internal/cache"
	"github.com/ukydev/fleet-logbook/internal/db"
	"github.com/ukydev/fleet-logbook/internal/models"
	"github.com/ukydev/fleet-logbook/internal/normalize"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const scanPageSize = 500

// Tool runs repairs against the stores. Caches is optional.
type Tool struct {
	Trips    db.TripCollection
	Drivers  db.DriverCollection
	Vehicles db.VehicleCollection
	Audit    audit.Auditor
	Caches   cache.Invalidator
	Log      logrus.FieldLogger
}

// CounterDiff is a registry counter that disagrees with the trips collection.
type CounterDiff struct {
	Kind   string // "driver" or "vehicle"
	Key    string
	Stored int64
	Actual int64
}

func (d CounterDiff) String() string {
	return fmt.Sprintf("%-7s %-30s stored=%d actual=%d", d.Kind, d.Key, d.Stored, d.Actual)
}

// BackfillCounters recounts total_trips for every driver and vehicle and
// returns the differences, sorted by kind and key. Counters are only written
// when apply is set.
func (t *Tool) BackfillCounters(ctx context.Context, apply bool) ([]CounterDiff, error) {
	actualDrivers, actualVehicles, err := t.Trips.CountTripsPerEntity(ctx)
	if err != nil {
		return nil, fmt.Errorf("count trips: %w", err)
	}
	drivers, err := t.Drivers.FindDrivers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list drivers: %w", err)
	}
	vehicles, err := t.Vehicles.FindVehicles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}

	storedDrivers := make(map[string]int64, len(drivers))
	for _, d := range drivers {
		storedDrivers[d.Name] = d.TotalTrips
	}
	storedVehicles := make(map[string]int64, len(vehicles))
	for _, v := range vehicles {
		storedVehicles[v.Plate] = v.TotalTrips
	}

	diffs := append(compare("driver", storedDrivers, actualDrivers), compare("vehicle", storedVehicles, actualVehicles)...)
	if !apply || len(diffs) == 0 {
		return diffs, nil
	}

	for _, d := range diffs {
		switch d.Kind {
		case "driver":
			err = t.Drivers.SetDriverTrips(ctx, d.Key, d.Actual)
		default:
			err = t.Vehicles.SetVehicleTrips(ctx, d.Key, d.Actual)
		}
		if err != nil {
			return diffs, fmt.Errorf("set %s %s counter: %w", d.Kind, d.Key, err)
		}
		t.Audit.Record(ctx, audit.ActionCounterFix, d.Kind+"/"+d.Key, map[string]string{
			"from": strconv.FormatInt(d.Stored, 10),
			"to":   strconv.FormatInt(d.Actual, 10),
		})
	}
	t.invalidate(ctx)
	t.Log.WithField("fixed", len(diffs)).Info("trip counters rewritten")
	return diffs, nil
}

func compare(kind string, stored, actual map[string]int64) []CounterDiff {
	keys := make(map[string]struct{}, len(stored)+len(actual))
	for k := range stored {
		keys[k] = struct{}{}
	}
	for k := range actual {
		keys[k] = struct{}{}
	}

	var out []CounterDiff
	for k := range keys {
		if k == "" || stored[k] == actual[k] {
			continue
		}
		out = append(out, CounterDiff{Kind: kind, Key: k, Stored: stored[k], Actual: actual[k]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// SwappedTrip is a trip whose driver and requester look inverted.
type SwappedTrip struct {
	ID        primitive.ObjectID
	Plate     string
	Driver    string
	Requester string
	Reason    string
}

func (s SwappedTrip) String() string {
	return fmt.Sprintf("%s %-8s driver=%q requester=%q (%s)", s.ID.Hex(), s.Plate, s.Driver, s.Requester, s.Reason)
}

// FindSwappedNames scans the most recent limit trips for driver and
// requester names that look entered in the wrong fields. Nothing is written.
func (t *Tool) FindSwappedNames(ctx context.Context, limit int64) ([]SwappedTrip, error) {
	drivers, err := t.Drivers.FindDrivers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list drivers: %w", err)
	}
	credentialed := make(map[string]bool, len(drivers))
	for _, d := range drivers {
		if d.Status == models.DriverCredentialed {
			credentialed[d.Name] = true
		}
	}

	var found []SwappedTrip
	for skip := int64(0); skip < limit; skip += scanPageSize {
		size := min(int64(scanPageSize), limit-skip)
		trips, total, err := t.Trips.FindTrips(ctx, db.TripFilter{}, skip, size)
		if err != nil {
			return nil, fmt.Errorf("scan trips: %w", err)
		}
		for _, trip := range trips {
			if reason := swapReason(trip, credentialed); reason != "" {
				found = append(found, SwappedTrip{
					ID:        trip.ID,
					Plate:     trip.VehiclePlate,
					Driver:    trip.DriverName,
					Requester: trip.RequesterName,
					Reason:    reason,
				})
			}
		}
		if len(trips) == 0 || skip+int64(len(trips)) >= total {
			break
		}
	}
	return found, nil
}

func swapReason(trip models.Trip, credentialed map[string]bool) string {
	driver, requester := normalize.Name(trip.DriverName), normalize.Name(trip.RequesterName)
	if driver == "" || requester == "" {
		return ""
	}
	if credentialed[requester] && !credentialed[driver] {
		return "requester is a credentialed driver"
	}

	d, r := strings.Fields(driver), strings.Fields(requester)
	switch {
	case len(d) == 1 && len(r) == 1:
		return "single-word names"
	case len(r) <= 2 && len(d) >= 2 && strings.EqualFold(r[len(r)-1], d[len(d)-1]):
		return "requester repeats driver surname"
	}
	return ""
}

func (t *Tool) invalidate(ctx context.Context) {
	if t.Caches == nil {
		return
	}
	if err := t.Caches.InvalidateAll(ctx); err != nil {
		t.Log.WithError(err).Warn("cache invalidation failed")
	}
}
