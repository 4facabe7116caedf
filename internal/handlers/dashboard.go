package handlers

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-logbook/internal/dashboard"
	"github.com/ukydev/fleet-logbook/internal/models"
	"github.com/ukydev/fleet-logbook/internal/service"
)

type DashboardOps interface {
	Get(ctx context.Context, month string) (dashboard.Snapshot, error)
	ClearCache(ctx context.Context) (service.Result, error)
}

type AuditOps interface {
	List(ctx context.Context, action string, page int) (models.AuditPage, error)
}

// DashboardHandler serves the dashboard, the cache reset and the audit log.
type DashboardHandler struct {
	dashboard DashboardOps
	audit     AuditOps
	log       logrus.FieldLogger
}

func NewDashboardHandler(d DashboardOps, a AuditOps, log logrus.FieldLogger) *DashboardHandler {
	return &DashboardHandler{dashboard: d, audit: a, log: log}
}

// Get returns the snapshot for ?month, the current month when absent.
func (h *DashboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	snap, err := h.dashboard.Get(r.Context(), r.URL.Query().Get("month"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *DashboardHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	res, err := h.dashboard.ClearCache(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *DashboardHandler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	page, err := queryPage(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	res, err := h.audit.List(r.Context(), r.URL.Query().Get("action"), page)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
