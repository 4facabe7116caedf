package handlers

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-logbook/internal/models"
	"github.com/ukydev/fleet-logbook/internal/service"
)

type RegistryOps interface {
	ListDrivers(ctx context.Context) ([]models.Driver, error)
	GetDriver(ctx context.Context, id string) (*models.Driver, error)
	CreateDriver(ctx context.Context, req models.DriverRequest) (*models.Driver, error)
	UpdateDriver(ctx context.Context, id string, upd models.DriverUpdate) (*models.Driver, error)
	SetDriverStatus(ctx context.Context, id string, status models.DriverStatus) error
	DeleteDriver(ctx context.Context, id string) error
	AttachDriverDocument(ctx context.Context, id string, up service.Upload) (models.Document, error)

	ListVehicles(ctx context.Context, status models.VehicleStatus) ([]models.Vehicle, error)
	GetVehicle(ctx context.Context, plate string) (*models.Vehicle, error)
	CreateVehicle(ctx context.Context, req models.VehicleRequest) (*models.Vehicle, error)
	UpdateVehicle(ctx context.Context, plate string, upd models.VehicleUpdate) (*models.Vehicle, error)
	SetVehicleStatus(ctx context.Context, plate string, status models.VehicleStatus) error
	DeleteVehicle(ctx context.Context, plate string) error
	AttachVehicleDocument(ctx context.Context, plate string, up service.Upload) (models.Document, error)

	OpenDocument(ctx context.Context, id string) (io.ReadCloser, *models.Document, error)
}

// RegistryHandler serves drivers, vehicles and their documents.
type RegistryHandler struct {
	registry RegistryOps
	log      logrus.FieldLogger
}

func NewRegistryHandler(registry RegistryOps, log logrus.FieldLogger) *RegistryHandler {
	return &RegistryHandler{registry: registry, log: log}
}

type statusRequest struct {
	Status string `json:"status"`
}

// Drivers

func (h *RegistryHandler) ListDrivers(w http.ResponseWriter, r *http.Request) {
	drivers, err := h.registry.ListDrivers(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, drivers)
}

func (h *RegistryHandler) GetDriver(w http.ResponseWriter, r *http.Request) {
	driver, err := h.registry.GetDriver(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, driver)
}

func (h *RegistryHandler) CreateDriver(w http.ResponseWriter, r *http.Request) {
	var req models.DriverRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	driver, err := h.registry.CreateDriver(r.Context(), req)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, driver)
}

func (h *RegistryHandler) UpdateDriver(w http.ResponseWriter, r *http.Request) {
	var upd models.DriverUpdate
	if err := decodeJSON(r, &upd); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	driver, err := h.registry.UpdateDriver(r.Context(), chi.URLParam(r, "id"), upd)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, driver)
}

func (h *RegistryHandler) SetDriverStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if err := h.registry.SetDriverStatus(r.Context(), chi.URLParam(r, "id"), models.DriverStatus(req.Status)); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeMessage(w, http.StatusOK, "Driver status updated.")
}

func (h *RegistryHandler) DeleteDriver(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.DeleteDriver(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeMessage(w, http.StatusOK, "Driver deleted.")
}

func (h *RegistryHandler) AttachDriverDocument(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, func(ctx context.Context, up service.Upload) (models.Document, error) {
		return h.registry.AttachDriverDocument(ctx, chi.URLParam(r, "id"), up)
	})
}

// Vehicles

// ListVehicles accepts an optional ?status filter.
func (h *RegistryHandler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles, err := h.registry.ListVehicles(r.Context(), models.VehicleStatus(r.URL.Query().Get("status")))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, vehicles)
}

func (h *RegistryHandler) GetVehicle(w http.ResponseWriter, r *http.Request) {
	vehicle, err := h.registry.GetVehicle(r.Context(), chi.URLParam(r, "plate"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, vehicle)
}

func (h *RegistryHandler) CreateVehicle(w http.ResponseWriter, r *http.Request) {
	var req models.VehicleRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	vehicle, err := h.registry.CreateVehicle(r.Context(), req)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, vehicle)
}

func (h *RegistryHandler) UpdateVehicle(w http.ResponseWriter, r *http.Request) {
	var upd models.VehicleUpdate
	if err := decodeJSON(r, &upd); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	vehicle, err := h.registry.UpdateVehicle(r.Context(), chi.URLParam(r, "plate"), upd)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, vehicle)
}

func (h *RegistryHandler) SetVehicleStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if err := h.registry.SetVehicleStatus(r.Context(), chi.URLParam(r, "plate"), models.VehicleStatus(req.Status)); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeMessage(w, http.StatusOK, "Vehicle status updated.")
}

func (h *RegistryHandler) DeleteVehicle(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.DeleteVehicle(r.Context(), chi.URLParam(r, "plate")); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeMessage(w, http.StatusOK, "Vehicle deleted.")
}

func (h *RegistryHandler) AttachVehicleDocument(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, func(ctx context.Context, up service.Upload) (models.Document, error) {
		return h.registry.AttachVehicleDocument(ctx, chi.URLParam(r, "plate"), up)
	})
}

// Documents

// Document streams an attachment as a download.
func (h *RegistryHandler) Document(w http.ResponseWriter, r *http.Request) {
	rc, doc, err := h.registry.OpenDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Name}))
	if doc.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(doc.Size, 10))
	}
	if _, err := io.Copy(w, rc); err != nil {
		h.log.WithError(err).WithField("document_id", doc.ID.Hex()).Warn("document download interrupted")
	}
}

// upload reads the multipart "file" part and an optional "kind" field.
func (h *RegistryHandler) upload(w http.ResponseWriter, r *http.Request, attach func(context.Context, service.Upload) (models.Document, error)) {
	r.Body = http.MaxBytesReader(w, r.Body, service.MaxDocumentSize+1<<20)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "file too large"})
			return
		}
		badRequest(w, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "file is required")
		return
	}
	defer file.Close()

	doc, err := attach(r.Context(), service.Upload{
		Name:        header.Filename,
		Kind:        r.FormValue("kind"),
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}
