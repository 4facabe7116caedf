package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-logbook/internal/models"
	"github.com/ukydev/fleet-logbook/internal/service"
)

// TripOps is the trip workflow used by TripHandler.
type TripOps interface {
	Checkout(ctx context.Context, req models.CheckoutRequest) (service.Result, error)
	Return(ctx context.Context, req models.ReturnRequest) (service.Result, error)
	Cancel(ctx context.Context, req models.CancelRequest) (service.Result, error)
	InProgress(ctx context.Context) ([]models.TripSummary, error)
	Get(ctx context.Context, id string) (*models.Trip, error)
	Edit(ctx context.Context, id string, upd models.TripUpdate) (*models.Trip, error)
	Delete(ctx context.Context, id string) error
}

// HistoryOps pages through past trips.
type HistoryOps interface {
	Page(ctx context.Context, filter models.TripHistoryFilter, page int) (models.TripPage, error)
}

// TripHandler serves /api/trips.
type TripHandler struct {
	trips   TripOps
	history HistoryOps
	log     logrus.FieldLogger
}

func NewTripHandler(trips TripOps, history HistoryOps, log logrus.FieldLogger) *TripHandler {
	return &TripHandler{trips: trips, history: history, log: log}
}

// Checkout registers a vehicle leaving the yard.
func (h *TripHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req models.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	res, err := h.trips.Checkout(r.Context(), req)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Return closes the open trip of a plate.
func (h *TripHandler) Return(w http.ResponseWriter, r *http.Request) {
	var req models.ReturnRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	res, err := h.trips.Return(r.Context(), req)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *TripHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req models.CancelRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	res, err := h.trips.Cancel(r.Context(), req)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *TripHandler) InProgress(w http.ResponseWriter, r *http.Request) {
	trips, err := h.trips.InProgress(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, trips)
}

// History lists trips filtered by ?month, ?year, ?date, ?plate and ?driver.
func (h *TripHandler) History(w http.ResponseWriter, r *http.Request) {
	filter, err := historyFilter(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	page, err := queryPage(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	res, err := h.history.Page(r.Context(), filter, page)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *TripHandler) Get(w http.ResponseWriter, r *http.Request) {
	trip, err := h.trips.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

// Edit applies an administrative correction.
func (h *TripHandler) Edit(w http.ResponseWriter, r *http.Request) {
	var upd models.TripUpdate
	if err := decodeJSON(r, &upd); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	trip, err := h.trips.Edit(r.Context(), chi.URLParam(r, "id"), upd)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

func (h *TripHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.trips.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeMessage(w, http.StatusOK, "Trip deleted.")
}

func historyFilter(r *http.Request) (models.TripHistoryFilter, error) {
	q := r.URL.Query()
	filter := models.TripHistoryFilter{
		Month:  q.Get("month"),
		Date:   q.Get("date"),
		Plate:  q.Get("plate"),
		Driver: q.Get("driver"),
	}
	if raw := q.Get("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			return filter, errYear
		}
		filter.Year = year
	}
	return filter, nil
}
