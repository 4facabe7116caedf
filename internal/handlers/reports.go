package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-logbook/internal/clock"
	"github.com/ukydev/fleet-logbook/internal/models"
)

const (
	contentTypePDF  = "application/pdf"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type ReportOps interface {
	TripsPDF(ctx context.Context, filter models.TripHistoryFilter) ([]byte, error)
	TripsXLSX(ctx context.Context, filter models.TripHistoryFilter) ([]byte, error)
	RefillsPDF(ctx context.Context, plate, month string) ([]byte, error)
	VehiclesPDF(ctx context.Context, status models.VehicleStatus) ([]byte, error)
}

// ReportHandler serves generated PDF and spreadsheet exports.
type ReportHandler struct {
	reports ReportOps
	clock   clock.Clock
	log     logrus.FieldLogger
}

func NewReportHandler(reports ReportOps, c clock.Clock, log logrus.FieldLogger) *ReportHandler {
	return &ReportHandler{reports: reports, clock: c, log: log}
}

func (h *ReportHandler) TripsPDF(w http.ResponseWriter, r *http.Request) {
	filter, err := historyFilter(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	out, err := h.reports.TripsPDF(r.Context(), filter)
	h.send(w, out, err, contentTypePDF, "trips", "pdf")
}

func (h *ReportHandler) TripsXLSX(w http.ResponseWriter, r *http.Request) {
	filter, err := historyFilter(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	out, err := h.reports.TripsXLSX(r.Context(), filter)
	h.send(w, out, err, contentTypeXLSX, "trips", "xlsx")
}

func (h *ReportHandler) RefillsPDF(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out, err := h.reports.RefillsPDF(r.Context(), q.Get("plate"), q.Get("month"))
	h.send(w, out, err, contentTypePDF, "refills", "pdf")
}

func (h *ReportHandler) VehiclesPDF(w http.ResponseWriter, r *http.Request) {
	out, err := h.reports.VehiclesPDF(r.Context(), models.VehicleStatus(r.URL.Query().Get("status")))
	h.send(w, out, err, contentTypePDF, "vehicles", "pdf")
}

func (h *ReportHandler) send(w http.ResponseWriter, out []byte, err error, contentType, name, ext string) {
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	filename := fmt.Sprintf("%s-%s.%s", name, h.clock.Now().UTC().Format("20060102-1504"), ext)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(out)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}
