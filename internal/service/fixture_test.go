package service

import (
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-logbook/internal/cache"
	"github.com/ukydev/fleet-logbook/internal/clock"
	"github.com/ukydev/fleet-logbook/internal/testutil"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store     *testutil.MemStore
	audit     *testutil.AuditLog
	clock     *manualClock
	zone      clock.Zone
	history   *cache.Namespace
	dashboard *cache.Namespace
	logs      *logtest.Hook
	deps      Deps
}

// newFixture wires the services over an in-memory store and real in-memory
// caches. The clock starts at 2025-03-10 12:00 UTC (09:00 local).
func newFixture(t *testing.T) *fixture {
	t.Helper()
	zone, err := clock.LoadZone("America/Sao_Paulo")
	require.NoError(t, err)

	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	f := &fixture{
		store: testutil.NewMemStore(),
		audit: &testutil.AuditLog{},
		clock: &manualClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)},
		zone:  zone,
		logs:  hook,
	}
	backend := cache.NewMemoryBackend()
	f.history = cache.NewNamespace("history", backend, 5*time.Minute, logger)
	f.dashboard = cache.NewNamespace("dashboard", backend, 5*time.Minute, logger)

	f.deps = Deps{
		Trips:    f.store,
		Drivers:  f.store,
		Vehicles: f.store,
		Refills:  f.store,
		AuditLog: f.store,
		Blobs:    f.store,
		Audit:    f.audit,
		Caches:   cache.Group{f.history, f.dashboard},
		Clock:    f.clock,
		Zone:     zone,
		Log:      logger,
		Settings: DefaultSettings(),
	}
	return f
}

func (f *fixture) trips() *TripService { return NewTripService(f.deps) }
func (f *fixture) refills() *RefillService { return NewRefillService(f.deps) }
func (f *fixture) metrics() *MetricsService { return NewMetricsService(f.deps) }
func (f *fixture) registry() *RegistryService { return NewRegistryService(f.deps) }
func (f *fixture) historySvc() *HistoryService { return NewHistoryService(f.deps, f.history) }
func (f *fixture) dashboardSvc() *DashboardService { return NewDashboardService(f.deps, f.dashboard) }

func ptr[T any](v T) *T { return &v }
