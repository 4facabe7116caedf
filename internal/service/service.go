// Package service implements the logbook operations: trip checkout and
// return, refills, metrics, dashboard, history and the registry.
package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-logbook/internal/audit"
	"github.com/ukydev/fleet-logbook/internal/cache"
	"github.com/ukydev/fleet-logbook/internal/clock"
	"github.com/ukydev/fleet-logbook/internal/db"
	"github.com/ukydev/fleet-logbook/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Deps are the collaborators shared by the services.
type Deps struct {
	Trips    db.TripCollection
	Drivers  db.DriverCollection
	Vehicles db.VehicleCollection
	Refills  db.RefillCollection
	AuditLog db.AuditCollection
	Blobs    db.BlobStore

	Audit  audit.Auditor
	Caches cache.Invalidator
	Clock  clock.Clock
	Zone   clock.Zone
	Log    logrus.FieldLogger

	Settings Settings
}

// Settings are the tunables of the read side.
type Settings struct {
	HistoryPageSize      int
	HistoryTTL           time.Duration
	DashboardTTL         time.Duration
	DashboardCurrentTTL  time.Duration
	DashboardPeriodCap   int
	DashboardRecentLimit int
	ExportLimit          int
}

// DefaultSettings returns the production defaults.
func DefaultSettings() Settings {
	return Settings{
		HistoryPageSize:      20,
		HistoryTTL:           5 * time.Minute,
		DashboardTTL:         5 * time.Minute,
		DashboardCurrentTTL:  time.Hour,
		DashboardPeriodCap:   5000,
		DashboardRecentLimit: 50,
		ExportLimit:          10000,
	}
}

// Result is the outcome of a successful mutation.
type Result struct {
	Message  string   `json:"message"`
	TripID   string   `json:"trip_id,omitempty"`
	RefillID string   `json:"refill_id,omitempty"`
	Notes    []string `json:"notes,omitempty"`
}

// invalidate clears the read caches after a write. The write already
// happened, so a failure is logged rather than returned.
func invalidate(ctx context.Context, d Deps, op string) {
	if d.Caches == nil {
		return
	}
	if err := d.Caches.InvalidateAll(ctx); err != nil {
		d.Log.WithError(err).WithField("operation", op).Error("cache invalidation failed")
	}
}

func parseID(kind, raw string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(raw))
	if err != nil {
		return primitive.NilObjectID, validationf("invalid %s id %q", kind, raw)
	}
	return id, nil
}

// MaxPage bounds page numbers so skip offsets stay well inside int64.
const MaxPage = 1_000_000

// window converts a 1-based page into skip/limit.
func window(page, size int) (int, int64, int64, error) {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		return 0, 0, 0, validationf("page must not exceed %d", MaxPage)
	}
	return page, int64(page-1) * int64(size), int64(size), nil
}

// parseTimestamp accepts RFC 3339 or a zone-less ISO value, read as UTC.
func parseTimestamp(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, validationf("invalid timestamp %q", raw)
}

func formatLiters(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func actorDetails(pairs ...string) map[string]string {
	out := make(map[string]string, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] != "" {
			out[pairs[i]] = pairs[i+1]
		}
	}
	return out
}

func tripTarget(t *models.Trip) string {
	return t.VehiclePlate + "/" + t.ID.Hex()
}
