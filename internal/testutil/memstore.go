// Package testutil provides an in-memory store that honours the same
// contracts as the MongoDB collections, for service and handler tests.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ukydev/fleet-logbook/internal/clock"
	"github.com/ukydev/fleet-logbook/internal/db"
	"github.com/ukydev/fleet-logbook/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	_ db.TripCollection    = (*MemStore)(nil)
	_ db.DriverCollection  = (*MemStore)(nil)
	_ db.VehicleCollection = (*MemStore)(nil)
	_ db.RefillCollection  = (*MemStore)(nil)
	_ db.AuditCollection   = (*MemStore)(nil)
	_ db.BlobStore         = (*MemStore)(nil)
	_ db.UserCollection    = (*MemStore)(nil)
)

// MemStore keeps every collection in maps guarded by one mutex. Failures can
// be injected per method name with FailOn.
type MemStore struct {
	mu       sync.Mutex
	trips    map[primitive.ObjectID]models.Trip
	drivers  map[primitive.ObjectID]models.Driver
	vehicles map[primitive.ObjectID]models.Vehicle
	refills  map[primitive.ObjectID]models.Refill
	audit    []models.AuditEntry
	blobs    map[primitive.ObjectID]blob
	users    map[primitive.ObjectID]models.User
	fail     map[string]error
}

type blob struct {
	doc  models.Document
	data []byte
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		trips:    map[primitive.ObjectID]models.Trip{},
		drivers:  map[primitive.ObjectID]models.Driver{},
		vehicles: map[primitive.ObjectID]models.Vehicle{},
		refills:  map[primitive.ObjectID]models.Refill{},
		blobs:    map[primitive.ObjectID]blob{},
		users:    map[primitive.ObjectID]models.User{},
		fail:     map[string]error{},
	}
}

// FailOn makes every later call to method return err. A nil err clears it.
func (m *MemStore) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, method)
		return
	}
	m.fail[method] = err
}

func (m *MemStore) failed(method string) error {
	return m.fail[method]
}

func notFound(op string) error { return fmt.Errorf("%s: %w", op, db.ErrNotFound) }

// Trips

func (m *MemStore) InsertTrip(_ context.Context, trip *models.Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("InsertTrip"); err != nil {
		return err
	}
	if trip.Status == models.TripInProgress {
		for _, t := range m.trips {
			if t.VehiclePlate == trip.VehiclePlate && t.Status == models.TripInProgress {
				return fmt.Errorf("insert trip: %w", db.ErrDuplicate)
			}
		}
	}
	if trip.ID.IsZero() {
		trip.ID = primitive.NewObjectID()
	}
	m.trips[trip.ID] = *trip
	return nil
}

func (m *MemStore) FindTripByID(_ context.Context, id primitive.ObjectID) (*models.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("FindTripByID"); err != nil {
		return nil, err
	}
	t, ok := m.trips[id]
	if !ok {
		return nil, notFound("find trip")
	}
	return &t, nil
}

func (m *MemStore) FindActiveTrip(_ context.Context, plate string) (*models.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("FindActiveTrip"); err != nil {
		return nil, err
	}
	for _, t := range m.trips {
		if t.VehiclePlate == plate && t.Status == models.TripInProgress {
			return &t, nil
		}
	}
	return nil, notFound("find active trip")
}

func (m *MemStore) FindActiveTrips(_ context.Context) ([]models.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("FindActiveTrips"); err != nil {
		return nil, err
	}
	out := m.selectTrips(func(t models.Trip) bool { return t.Status == models.TripInProgress })
	sort.Slice(out, func(i, j int) bool { return out[i].DepartureTime.Before(out[j].DepartureTime) })
	return out, nil
}

func (m *MemStore) FinishTrip(_ context.Context, id primitive.ObjectID, arrival time.Time, arrivalClock string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("FinishTrip"); err != nil {
		return err
	}
	t, ok := m.trips[id]
	if !ok || t.Status != models.TripInProgress {
		return notFound("finish trip")
	}
	t.Status = models.TripFinished
	t.ArrivalTime = &arrival
	t.ArrivalClock = arrivalClock
	t.UpdatedAt = time.Now().UTC()
	m.trips[id] = t
	return nil
}

func (m *MemStore) ReplaceTrip(_ context.Context, trip *models.Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("ReplaceTrip"); err != nil {
		return err
	}
	if _, ok := m.trips[trip.ID]; !ok {
		return notFound("replace trip")
	}
	if trip.Status == models.TripInProgress {
		for id, t := range m.trips {
			if id != trip.ID && t.VehiclePlate == trip.VehiclePlate && t.Status == models.TripInProgress {
				return fmt.Errorf("replace trip: %w", db.ErrDuplicate)
			}
		}
	}
	m.trips[trip.ID] = *trip
	return nil
}

func (m *MemStore) DeleteTrip(_ context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("DeleteTrip"); err != nil {
		return err
	}
	if _, ok := m.trips[id]; !ok {
		return notFound("delete trip")
	}
	delete(m.trips, id)
	return nil
}

func (m *MemStore) FindTrips(_ context.Context, filter db.TripFilter, skip, limit int64) ([]models.Trip, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("FindTrips"); err != nil {
		return nil, 0, err
	}
	out := m.selectTrips(func(t models.Trip) bool {
		if filter.Period != nil && !filter.Period.Contains(t.DepartureTime) {
			return false
		}
		return containsFold(t.VehiclePlate, filter.Plate) && containsFold(t.DriverName, filter.Driver)
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Status != out[j].Status {
			return out[i].Status == models.TripInProgress
		}
		return out[i].DepartureTime.After(out[j].DepartureTime)
	})
	total := int64(len(out))
	return page(out, skip, limit), total, nil
}

func (m *MemStore) FindTripsBetween(_ context.Context, period clock.Range, limit int64) ([]models.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("FindTripsBetween"); err != nil {
		return nil, err
	}
	out := m.selectTrips(func(t models.Trip) bool { return period.Contains(t.DepartureTime) })
	sortNewest(out)
	return page(out, 0, limit), nil
}

func (m *MemStore) CountTripsBetween(_ context.Context, period clock.Range) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("CountTripsBetween"); err != nil {
		return 0, err
	}
	return int64(len(m.selectTrips(func(t models.Trip) bool { return period.Contains(t.DepartureTime) }))), nil
}

func (m *MemStore) FindRecentTrips(_ context.Context, limit int64) ([]models.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("FindRecentTrips"); err != nil {
		return nil, err
	}
	out := m.selectTrips(func(models.Trip) bool { return true })
	sortNewest(out)
	return page(out, 0, limit), nil
}

func (m *MemStore) CountTripsPerEntity(_ context.Context) (map[string]int64, map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("CountTripsPerEntity"); err != nil {
		return nil, nil, err
	}
	drivers, vehicles := map[string]int64{}, map[string]int64{}
	for _, t := range m.trips {
		drivers[t.DriverName]++
		vehicles[t.VehiclePlate]++
	}
	return drivers, vehicles, nil
}

func (m *MemStore) selectTrips(keep func(models.Trip) bool) []models.Trip {
	out := []models.Trip{}
	for _, t := range m.trips {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

// Drivers

func (m *MemStore) IncrementDriverTrips(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("IncrementDriverTrips"); err != nil {
		return err
	}
	now := time.Now().UTC()
	if d, ok := m.driverByName(name); ok {
		d.TotalTrips++
		d.UpdatedAt = now
		m.drivers[d.ID] = d
		return nil
	}
	d := models.Driver{ID: primitive.NewObjectID(), Name: name, Status: models.DriverNotCredentialed, TotalTrips: 1, CreatedAt: now, UpdatedAt: now}
	m.drivers[d.ID] = d
	return nil
}

func (m *MemStore) DecrementDriverTrips(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("DecrementDriverTrips"); err != nil {
		return err
	}
	d, ok := m.driverByName(name)
	if !ok || d.TotalTrips == 0 {
		return notFound("decrement driver trips")
	}
	d.TotalTrips--
	d.UpdatedAt = time.Now().UTC()
	m.drivers[d.ID] = d
	return nil
}

func (m *MemStore) InsertDriver(_ context.Context, driver *models.Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("InsertDriver"); err != nil {
		return err
	}
	if _, ok := m.driverByName(driver.Name); ok {
		return fmt.Errorf("insert driver: %w", db.ErrDuplicate)
	}
	if driver.ID.IsZero() {
		driver.ID = primitive.NewObjectID()
	}
	m.drivers[driver.ID] = *driver
	return nil
}

func (m *MemStore) FindDrivers(_ context.Context) ([]models.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("FindDrivers"); err != nil {
		return nil, err
	}
	out := make([]models.Driver, 0, len(m.drivers))
	for _, d := range m.drivers {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemStore) FindDriverByID(_ context.Context, id primitive.ObjectID) (*models.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return nil, notFound("find driver")
	}
	return &d, nil
}

func (m *MemStore) FindDriverByName(_ context.Context, name string) (*models.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.driverByName(name)
	if !ok {
		return nil, notFound("find driver by name")
	}
	return &d, nil
}

func (m *MemStore) UpdateDriver(_ context.Context, id primitive.ObjectID, update models.DriverUpdate) (*models.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return nil, notFound("update driver")
	}
	if update.Role != nil {
		d.Role = *update.Role
	}
	if update.Company != nil {
		d.Company = *update.Company
	}
	d.UpdatedAt = time.Now().UTC()
	m.drivers[id] = d
	return &d, nil
}

func (m *MemStore) SetDriverStatus(_ context.Context, id primitive.ObjectID, status models.DriverStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return notFound("set driver status")
	}
	d.Status = status
	m.drivers[id] = d
	return nil
}

func (m *MemStore) SetDriverTrips(_ context.Context, name string, total int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("SetDriverTrips"); err != nil {
		return err
	}
	d, ok := m.driverByName(name)
	if !ok {
		d = models.Driver{ID: primitive.NewObjectID(), Name: name, Status: models.DriverNotCredentialed, CreatedAt: time.Now().UTC()}
	}
	d.TotalTrips = total
	m.drivers[d.ID] = d
	return nil
}

func (m *MemStore) AddDriverDocument(_ context.Context, id primitive.ObjectID, doc models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("AddDriverDocument"); err != nil {
		return err
	}
	d, ok := m.drivers[id]
	if !ok {
		return notFound("add driver document")
	}
	d.Documents = append(d.Documents, doc)
	m.drivers[id] = d
	return nil
}

func (m *MemStore) DeleteDriver(_ context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.drivers[id]; !ok {
		return notFound("delete driver")
	}
	delete(m.drivers, id)
	return nil
}

func (m *MemStore) driverByName(name string) (models.Driver, bool) {
	for _, d := range m.drivers {
		if d.Name == name {
			return d, true
		}
	}
	return models.Driver{}, false
}

// Vehicles

func (m *MemStore) IncrementVehicleTrips(_ context.Context, plate string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("IncrementVehicleTrips"); err != nil {
		return err
	}
	now := time.Now().UTC()
	if v, ok := m.vehicleByPlate(plate); ok {
		v.TotalTrips++
		v.UpdatedAt = now
		m.vehicles[v.ID] = v
		return nil
	}
	v := models.Vehicle{ID: primitive.NewObjectID(), Plate: plate, Status: models.VehicleActive, Visible: true, TotalTrips: 1, CreatedAt: now, UpdatedAt: now}
	m.vehicles[v.ID] = v
	return nil
}

func (m *MemStore) InsertVehicle(_ context.Context, vehicle *models.Vehicle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("InsertVehicle"); err != nil {
		return err
	}
	if _, ok := m.vehicleByPlate(vehicle.Plate); ok {
		return fmt.Errorf("insert vehicle: %w", db.ErrDuplicate)
	}
	if vehicle.ID.IsZero() {
		vehicle.ID = primitive.NewObjectID()
	}
	m.vehicles[vehicle.ID] = *vehicle
	return nil
}

func (m *MemStore) FindVehicles(_ context.Context) ([]models.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("FindVehicles"); err != nil {
		return nil, err
	}
	out := make([]models.Vehicle, 0, len(m.vehicles))
	for _, v := range m.vehicles {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Plate < out[j].Plate })
	return out, nil
}

func (m *MemStore) FindVehicleByPlate(_ context.Context, plate string) (*models.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("FindVehicleByPlate"); err != nil {
		return nil, err
	}
	v, ok := m.vehicleByPlate(plate)
	if !ok {
		return nil, notFound("find vehicle")
	}
	return &v, nil
}

func (m *MemStore) UpdateVehicle(_ context.Context, plate string, update models.VehicleUpdate) (*models.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicleByPlate(plate)
	if !ok {
		return nil, notFound("update vehicle")
	}
	if update.Category != nil {
		v.Category = *update.Category
	}
	if update.Visible != nil {
		v.Visible = *update.Visible
	}
	if update.LastOdometer != nil {
		odo := *update.LastOdometer
		v.LastOdometer = &odo
	}
	switch {
	case update.ClearOverride:
		v.EfficiencyOverride = nil
	case update.EfficiencyOverride != nil:
		o := *update.EfficiencyOverride
		v.EfficiencyOverride = &o
	}
	v.UpdatedAt = time.Now().UTC()
	m.vehicles[v.ID] = v
	return &v, nil
}

func (m *MemStore) SetVehicleStatus(_ context.Context, plate string, status models.VehicleStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicleByPlate(plate)
	if !ok {
		return notFound("set vehicle status")
	}
	v.Status = status
	m.vehicles[v.ID] = v
	return nil
}

func (m *MemStore) RaiseOdometer(_ context.Context, plate string, odometer int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("RaiseOdometer"); err != nil {
		return err
	}
	v, ok := m.vehicleByPlate(plate)
	if !ok {
		return notFound("raise odometer")
	}
	if v.LastOdometer == nil || *v.LastOdometer < odometer {
		v.LastOdometer = &odometer
	}
	m.vehicles[v.ID] = v
	return nil
}

func (m *MemStore) SetVehicleTrips(_ context.Context, plate string, total int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("SetVehicleTrips"); err != nil {
		return err
	}
	v, ok := m.vehicleByPlate(plate)
	if !ok {
		v = models.Vehicle{ID: primitive.NewObjectID(), Plate: plate, Status: models.VehicleActive, Visible: true, CreatedAt: time.Now().UTC()}
	}
	v.TotalTrips = total
	m.vehicles[v.ID] = v
	return nil
}

func (m *MemStore) AddVehicleDocument(_ context.Context, plate string, doc models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("AddVehicleDocument"); err != nil {
		return err
	}
	v, ok := m.vehicleByPlate(plate)
	if !ok {
		return notFound("add vehicle document")
	}
	v.Documents = append(v.Documents, doc)
	m.vehicles[v.ID] = v
	return nil
}

func (m *MemStore) DeleteVehicle(_ context.Context, plate string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicleByPlate(plate)
	if !ok {
		return notFound("delete vehicle")
	}
	delete(m.vehicles, v.ID)
	return nil
}

func (m *MemStore) vehicleByPlate(plate string) (models.Vehicle, bool) {
	for _, v := range m.vehicles {
		if v.Plate == plate {
			return v, true
		}
	}
	return models.Vehicle{}, false
}

// Refills

func (m *MemStore) InsertRefill(_ context.Context, refill *models.Refill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("InsertRefill"); err != nil {
		return err
	}
	if refill.ID.IsZero() {
		refill.ID = primitive.NewObjectID()
	}
	m.refills[refill.ID] = *refill
	return nil
}

func (m *MemStore) FindRefillByID(_ context.Context, id primitive.ObjectID) (*models.Refill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.refills[id]
	if !ok {
		return nil, notFound("find refill")
	}
	return &r, nil
}

func (m *MemStore) FindRefillsByPlate(_ context.Context, plate string) ([]models.Refill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("FindRefillsByPlate"); err != nil {
		return nil, err
	}
	out := m.selectRefills(plate, nil)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *MemStore) FindRefillsPage(_ context.Context, plate string, skip, limit int64) ([]models.Refill, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.selectRefills(plate, nil)
	sortRefillsNewest(out)
	return page(out, skip, limit), int64(len(out)), nil
}

func (m *MemStore) FindRefills(_ context.Context, plate string, period *clock.Range, limit int64) ([]models.Refill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("FindRefills"); err != nil {
		return nil, err
	}
	out := m.selectRefills(plate, period)
	sortRefillsNewest(out)
	return page(out, 0, limit), nil
}

func (m *MemStore) ReplaceRefill(_ context.Context, refill *models.Refill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.refills[refill.ID]; !ok {
		return notFound("replace refill")
	}
	m.refills[refill.ID] = *refill
	return nil
}

func (m *MemStore) DeleteRefill(_ context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.refills[id]; !ok {
		return notFound("delete refill")
	}
	delete(m.refills, id)
	return nil
}

func (m *MemStore) SumLitersByPlate(_ context.Context, period *clock.Range) (map[string]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("SumLitersByPlate"); err != nil {
		return nil, err
	}
	out := map[string]float64{}
	for _, r := range m.selectRefills("", period) {
		if r.Liters != nil {
			out[r.VehiclePlate] += *r.Liters
		}
	}
	return out, nil
}

func (m *MemStore) selectRefills(plate string, period *clock.Range) []models.Refill {
	out := []models.Refill{}
	for _, r := range m.refills {
		if plate != "" && r.VehiclePlate != plate {
			continue
		}
		if period != nil && !period.Contains(r.Timestamp) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Audit

func (m *MemStore) InsertAudit(_ context.Context, entry *models.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("InsertAudit"); err != nil {
		return err
	}
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	m.audit = append(m.audit, *entry)
	return nil
}

func (m *MemStore) FindAudit(_ context.Context, action string, skip, limit int64) ([]models.AuditEntry, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.AuditEntry{}
	for i := len(m.audit) - 1; i >= 0; i-- {
		if action == "" || m.audit[i].Action == action {
			out = append(out, m.audit[i])
		}
	}
	return page(out, skip, limit), int64(len(out)), nil
}

// Blobs

func (m *MemStore) Upload(_ context.Context, name, contentType string, r io.Reader) (models.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return models.Document{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("Upload"); err != nil {
		return models.Document{}, err
	}
	doc := models.Document{
		ID:          primitive.NewObjectID(),
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		UploadedAt:  time.Now().UTC(),
	}
	m.blobs[doc.ID] = blob{doc: doc, data: data}
	return doc, nil
}

func (m *MemStore) Open(_ context.Context, id primitive.ObjectID) (io.ReadCloser, *models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[id]
	if !ok {
		return nil, nil, notFound("open document")
	}
	doc := b.doc
	return io.NopCloser(bytes.NewReader(b.data)), &doc, nil
}

func (m *MemStore) Delete(_ context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[id]; !ok {
		return notFound("delete document")
	}
	delete(m.blobs, id)
	return nil
}

// BlobCount reports how many documents are stored.
func (m *MemStore) BlobCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blobs)
}

// Users

func (m *MemStore) InsertUser(_ context.Context, user models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == user.Username || u.Email == user.Email || (user.Bootstrap && u.Bootstrap) {
			return fmt.Errorf("insert user: %w", db.ErrDuplicate)
		}
	}
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	m.users[user.ID] = user
	return nil
}

func (m *MemStore) FindUserByID(_ context.Context, id string) (*models.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, notFound("find user")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[oid]
	if !ok {
		return nil, notFound("find user")
	}
	return &u, nil
}

func (m *MemStore) FindUserByUsername(_ context.Context, username string) (*models.User, error) {
	return m.findUser(func(u models.User) bool { return u.Username == username })
}

func (m *MemStore) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	return m.findUser(func(u models.User) bool { return u.Email == email })
}

func (m *MemStore) findUser(match func(models.User) bool) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			return &u, nil
		}
	}
	return nil, notFound("find user")
}

func (m *MemStore) FindUsers(_ context.Context) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *MemStore) CountUsers(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.users)), nil
}

func (m *MemStore) UpdateUser(_ context.Context, id string, user models.User) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return notFound("update user")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[oid]; !ok {
		return notFound("update user")
	}
	user.ID = oid
	m.users[oid] = user
	return nil
}

func (m *MemStore) DeleteUser(_ context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return notFound("delete user")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[oid]; !ok {
		return notFound("delete user")
	}
	delete(m.users, oid)
	return nil
}

func (m *MemStore) UpdateLastLogin(_ context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return notFound("update last login")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[oid]
	if !ok {
		return notFound("update last login")
	}
	now := time.Now().UTC()
	u.LastLogin = &now
	m.users[oid] = u
	return nil
}

func containsFold(s, sub string) bool {
	return sub == "" || strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func sortNewest(trips []models.Trip) {
	sort.Slice(trips, func(i, j int) bool { return trips[i].DepartureTime.After(trips[j].DepartureTime) })
}

func sortRefillsNewest(refills []models.Refill) {
	sort.Slice(refills, func(i, j int) bool { return refills[i].Timestamp.After(refills[j].Timestamp) })
}

func page[T any](items []T, skip, limit int64) []T {
	if skip >= int64(len(items)) {
		return []T{}
	}
	items = items[skip:]
	if limit > 0 && limit < int64(len(items)) {
		items = items[:limit]
	}
	return items
}
