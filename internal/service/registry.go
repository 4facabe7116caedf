package service

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/ukydev/fleet-logbook/internal/audit"
	"github.com/ukydev/fleet-logbook/internal/db"
	"github.com/ukydev/fleet-logbook/internal/models"
	"github.com/ukydev/fleet-logbook/internal/normalize"
)

// MaxDocumentSize bounds an uploaded attachment.
const MaxDocumentSize = 10 << 20

// RegistryService manages drivers, vehicles and their documents.
type RegistryService struct {
	d Deps
}

// NewRegistryService creates a RegistryService.
func NewRegistryService(d Deps) *RegistryService {
	return &RegistryService{d: d}
}

// Upload is a document attached to a driver or vehicle.
type Upload struct {
	Name        string
	Kind        string
	ContentType string
	Body        io.Reader
}

// Drivers

func (s *RegistryService) ListDrivers(ctx context.Context) ([]models.Driver, error) {
	drivers, err := s.d.Drivers.FindDrivers(ctx)
	if err != nil {
		return nil, storeError("driver", err)
	}
	return drivers, nil
}

func (s *RegistryService) GetDriver(ctx context.Context, id string) (*models.Driver, error) {
	oid, err := parseID("driver", id)
	if err != nil {
		return nil, err
	}
	driver, err := s.d.Drivers.FindDriverByID(ctx, oid)
	if err != nil {
		return nil, storeError("driver", err)
	}
	return driver, nil
}

func (s *RegistryService) CreateDriver(ctx context.Context, req models.DriverRequest) (*models.Driver, error) {
	name := normalize.Name(req.Name)
	if name == "" {
		return nil, validationf("name is required")
	}
	now := s.d.Clock.Now().UTC()
	driver := &models.Driver{
		Name:      name,
		Role:      normalize.Text(req.Role),
		Company:   normalize.Text(req.Company),
		Status:    models.DriverNotCredentialed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.d.Drivers.InsertDriver(ctx, driver); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return nil, conflictf("driver %s is already registered", name)
		}
		return nil, storeError("driver", err)
	}
	invalidate(ctx, s.d, "create driver")
	s.d.Audit.Record(ctx, audit.ActionDriverCreate, name, nil)
	return driver, nil
}

func (s *RegistryService) UpdateDriver(ctx context.Context, id string, upd models.DriverUpdate) (*models.Driver, error) {
	oid, err := parseID("driver", id)
	if err != nil {
		return nil, err
	}
	if upd.IsEmpty() {
		return nil, validationf("nothing to update")
	}
	if upd.Role != nil {
		v := normalize.Text(*upd.Role)
		upd.Role = &v
	}
	if upd.Company != nil {
		v := normalize.Text(*upd.Company)
		upd.Company = &v
	}
	driver, err := s.d.Drivers.UpdateDriver(ctx, oid, upd)
	if err != nil {
		return nil, storeError("driver", err)
	}
	invalidate(ctx, s.d, "update driver")
	s.d.Audit.Record(ctx, audit.ActionDriverUpdate, driver.Name, nil)
	return driver, nil
}

func (s *RegistryService) SetDriverStatus(ctx context.Context, id string, status models.DriverStatus) error {
	oid, err := parseID("driver", id)
	if err != nil {
		return err
	}
	if !models.IsValidDriverStatus(status) {
		return validationf("invalid driver status %q", status)
	}
	if err := s.d.Drivers.SetDriverStatus(ctx, oid, status); err != nil {
		return storeError("driver", err)
	}
	invalidate(ctx, s.d, "driver status")
	s.d.Audit.Record(ctx, audit.ActionDriverUpdate, oid.Hex(), actorDetails("status", string(status)))
	return nil
}

func (s *RegistryService) DeleteDriver(ctx context.Context, id string) error {
	oid, err := parseID("driver", id)
	if err != nil {
		return err
	}
	driver, err := s.d.Drivers.FindDriverByID(ctx, oid)
	if err != nil {
		return storeError("driver", err)
	}
	if err := s.d.Drivers.DeleteDriver(ctx, oid); err != nil {
		return storeError("driver", err)
	}
	s.dropDocuments(ctx, driver.Documents)
	invalidate(ctx, s.d, "delete driver")
	s.d.Audit.Record(ctx, audit.ActionDriverDelete, driver.Name, nil)
	return nil
}

// AttachDriverDocument stores up and links it to the driver.
func (s *RegistryService) AttachDriverDocument(ctx context.Context, id string, up Upload) (models.Document, error) {
	oid, err := parseID("driver", id)
	if err != nil {
		return models.Document{}, err
	}
	driver, err := s.d.Drivers.FindDriverByID(ctx, oid)
	if err != nil {
		return models.Document{}, storeError("driver", err)
	}
	return s.attach(ctx, driver.Name, up, func(doc models.Document) error {
		return s.d.Drivers.AddDriverDocument(ctx, oid, doc)
	})
}

// Vehicles

func (s *RegistryService) ListVehicles(ctx context.Context, status models.VehicleStatus) ([]models.Vehicle, error) {
	if status != "" && !models.IsValidVehicleStatus(status) {
		return nil, validationf("invalid vehicle status %q", status)
	}
	vehicles, err := s.d.Vehicles.FindVehicles(ctx)
	if err != nil {
		return nil, storeError("vehicle", err)
	}
	if status == "" {
		return vehicles, nil
	}
	out := vehicles[:0]
	for _, v := range vehicles {
		if v.Status == status {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *RegistryService) GetVehicle(ctx context.Context, plate string) (*models.Vehicle, error) {
	plate = normalize.Plate(plate)
	if plate == "" {
		return nil, validationf("plate is required")
	}
	vehicle, err := s.d.Vehicles.FindVehicleByPlate(ctx, plate)
	if err != nil {
		return nil, storeError("vehicle", err)
	}
	return vehicle, nil
}

func (s *RegistryService) CreateVehicle(ctx context.Context, req models.VehicleRequest) (*models.Vehicle, error) {
	plate := normalize.Plate(req.Plate)
	if plate == "" {
		return nil, validationf("plate is required")
	}
	if req.EfficiencyOverride != nil && *req.EfficiencyOverride <= 0 {
		return nil, validationf("efficiency override must be greater than zero")
	}
	now := s.d.Clock.Now().UTC()
	vehicle := &models.Vehicle{
		Plate:              plate,
		Category:           normalize.Text(req.Category),
		Visible:            true,
		Status:             models.VehicleActive,
		EfficiencyOverride: req.EfficiencyOverride,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.d.Vehicles.InsertVehicle(ctx, vehicle); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return nil, conflictf("vehicle %s is already registered", plate)
		}
		return nil, storeError("vehicle", err)
	}
	invalidate(ctx, s.d, "create vehicle")
	s.d.Audit.Record(ctx, audit.ActionVehicleCreate, plate, nil)
	return vehicle, nil
}

func (s *RegistryService) UpdateVehicle(ctx context.Context, plate string, upd models.VehicleUpdate) (*models.Vehicle, error) {
	plate = normalize.Plate(plate)
	if plate == "" {
		return nil, validationf("plate is required")
	}
	if upd.IsEmpty() {
		return nil, validationf("nothing to update")
	}
	if upd.EfficiencyOverride != nil && *upd.EfficiencyOverride <= 0 {
		return nil, validationf("efficiency override must be greater than zero")
	}
	if upd.LastOdometer != nil && *upd.LastOdometer < 0 {
		return nil, validationf("odometer must not be negative")
	}
	if upd.Category != nil {
		v := normalize.Text(*upd.Category)
		upd.Category = &v
	}
	vehicle, err := s.d.Vehicles.UpdateVehicle(ctx, plate, upd)
	if err != nil {
		return nil, storeError("vehicle", err)
	}
	invalidate(ctx, s.d, "update vehicle")
	details := map[string]string{}
	if upd.ClearOverride {
		details["efficiency_override"] = "cleared"
	} else if upd.EfficiencyOverride != nil {
		details["efficiency_override"] = formatLiters(*upd.EfficiencyOverride)
	}
	s.d.Audit.Record(ctx, audit.ActionVehicleUpdate, plate, details)
	return vehicle, nil
}

func (s *RegistryService) SetVehicleStatus(ctx context.Context, plate string, status models.VehicleStatus) error {
	plate = normalize.Plate(plate)
	if plate == "" {
		return validationf("plate is required")
	}
	if !models.IsValidVehicleStatus(status) {
		return validationf("invalid vehicle status %q", status)
	}
	if err := s.d.Vehicles.SetVehicleStatus(ctx, plate, status); err != nil {
		return storeError("vehicle", err)
	}
	invalidate(ctx, s.d, "vehicle status")
	s.d.Audit.Record(ctx, audit.ActionVehicleUpdate, plate, actorDetails("status", string(status)))
	return nil
}

func (s *RegistryService) DeleteVehicle(ctx context.Context, plate string) error {
	vehicle, err := s.GetVehicle(ctx, plate)
	if err != nil {
		return err
	}
	if err := s.d.Vehicles.DeleteVehicle(ctx, vehicle.Plate); err != nil {
		return storeError("vehicle", err)
	}
	s.dropDocuments(ctx, vehicle.Documents)
	invalidate(ctx, s.d, "delete vehicle")
	s.d.Audit.Record(ctx, audit.ActionVehicleDelete, vehicle.Plate, nil)
	return nil
}

// AttachVehicleDocument stores up and links it to the vehicle.
func (s *RegistryService) AttachVehicleDocument(ctx context.Context, plate string, up Upload) (models.Document, error) {
	vehicle, err := s.GetVehicle(ctx, plate)
	if err != nil {
		return models.Document{}, err
	}
	return s.attach(ctx, vehicle.Plate, up, func(doc models.Document) error {
		return s.d.Vehicles.AddVehicleDocument(ctx, vehicle.Plate, doc)
	})
}

// OpenDocument streams a stored attachment. The caller closes the reader.
func (s *RegistryService) OpenDocument(ctx context.Context, id string) (io.ReadCloser, *models.Document, error) {
	oid, err := parseID("document", id)
	if err != nil {
		return nil, nil, err
	}
	rc, doc, err := s.d.Blobs.Open(ctx, oid)
	if err != nil {
		return nil, nil, storeError("document", err)
	}
	return rc, doc, nil
}

func (s *RegistryService) attach(ctx context.Context, owner string, up Upload, link func(models.Document) error) (models.Document, error) {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(up.Name), `\`, "/"))
	if name == "" || name == "." || name == "/" {
		return models.Document{}, validationf("file name is required")
	}
	if up.Body == nil {
		return models.Document{}, validationf("file is required")
	}
	contentType := up.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	doc, err := s.d.Blobs.Upload(ctx, name, contentType, io.LimitReader(up.Body, MaxDocumentSize))
	if err != nil {
		return models.Document{}, storeError("document", err)
	}
	doc.Kind = normalize.Text(up.Kind)
	if err := link(doc); err != nil {
		if derr := s.d.Blobs.Delete(ctx, doc.ID); derr != nil {
			s.d.Log.WithError(derr).WithField("document_id", doc.ID.Hex()).Warn("orphaned document not removed")
		}
		return models.Document{}, storeError("document", err)
	}
	s.d.Audit.Record(ctx, audit.ActionDocumentUpload, owner, actorDetails("document", doc.ID.Hex(), "name", name, "kind", doc.Kind))
	return doc, nil
}

func (s *RegistryService) dropDocuments(ctx context.Context, docs []models.Document) {
	for _, doc := range docs {
		if err := s.d.Blobs.Delete(ctx, doc.ID); err != nil && !errors.Is(err, db.ErrNotFound) {
			s.d.Log.WithError(err).WithField("document_id", doc.ID.Hex()).Warn("document not removed")
		}
	}
}
