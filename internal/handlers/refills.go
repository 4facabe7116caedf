package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-logbook/internal/metrics"
	"github.com/ukydev/fleet-logbook/internal/models"
	"github.com/ukydev/fleet-logbook/internal/service"
)

type RefillOps interface {
	Record(ctx context.Context, req models.RefillRequest) (service.Result, error)
	List(ctx context.Context, plate string, page int) (models.RefillPage, error)
	Update(ctx context.Context, id string, upd models.RefillUpdate) (*models.Refill, error)
	Delete(ctx context.Context, id string) error
	Summary(ctx context.Context, month string) (models.RefillSummary, error)
}

type MetricsOps interface {
	Vehicle(ctx context.Context, plate, month string) (metrics.Snapshot, error)
}

// RefillHandler serves refill logging and the per-vehicle fuel figures.
type RefillHandler struct {
	refills RefillOps
	metrics MetricsOps
	log     logrus.FieldLogger
}

func NewRefillHandler(refills RefillOps, metrics MetricsOps, log logrus.FieldLogger) *RefillHandler {
	return &RefillHandler{refills: refills, metrics: metrics, log: log}
}

func (h *RefillHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req models.RefillRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	res, err := h.refills.Record(r.Context(), req)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// ListByVehicle pages through the refills of {plate}, newest first.
func (h *RefillHandler) ListByVehicle(w http.ResponseWriter, r *http.Request) {
	page, err := queryPage(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	res, err := h.refills.List(r.Context(), chi.URLParam(r, "plate"), page)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *RefillHandler) Update(w http.ResponseWriter, r *http.Request) {
	var upd models.RefillUpdate
	if err := decodeJSON(r, &upd); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	refill, err := h.refills.Update(r.Context(), chi.URLParam(r, "id"), upd)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, refill)
}

func (h *RefillHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.refills.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeMessage(w, http.StatusOK, "Refill deleted.")
}

func (h *RefillHandler) Summary(w http.ResponseWriter, r *http.Request) {
	res, err := h.refills.Summary(r.Context(), r.URL.Query().Get("month"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Metrics returns the fuel efficiency snapshot of {plate} for ?month.
func (h *RefillHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	snap, err := h.metrics.Vehicle(r.Context(), chi.URLParam(r, "plate"), r.URL.Query().Get("month"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
