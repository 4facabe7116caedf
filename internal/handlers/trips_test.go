package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-logbook/internal/models"
	"github.com/ukydev/fleet-logbook/internal/service"
)

type MockTripOps struct {
	mock.Mock
}

func (m *MockTripOps) Checkout(ctx context.Context, req models.CheckoutRequest) (service.Result, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(service.Result), args.Error(1)
}

func (m *MockTripOps) Return(ctx context.Context, req models.ReturnRequest) (service.Result, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(service.Result), args.Error(1)
}

func (m *MockTripOps) Cancel(ctx context.Context, req models.CancelRequest) (service.Result, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(service.Result), args.Error(1)
}

func (m *MockTripOps) InProgress(ctx context.Context) ([]models.TripSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.TripSummary), args.Error(1)
}

func (m *MockTripOps) Get(ctx context.Context, id string) (*models.Trip, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Trip), args.Error(1)
}

func (m *MockTripOps) Edit(ctx context.Context, id string, upd models.TripUpdate) (*models.Trip, error) {
	args := m.Called(ctx, id, upd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Trip), args.Error(1)
}

func (m *MockTripOps) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockHistoryOps struct {
	mock.Mock
}

func (m *MockHistoryOps) Page(ctx context.Context, filter models.TripHistoryFilter, page int) (models.TripPage, error) {
	args := m.Called(ctx, filter, page)
	return args.Get(0).(models.TripPage), args.Error(1)
}

func newTripHandler() (*TripHandler, *MockTripOps, *MockHistoryOps, *logtest.Hook) {
	log, hook := logtest.NewNullLogger()
	trips, history := new(MockTripOps), new(MockHistoryOps)
	return NewTripHandler(trips, history, log), trips, history, hook
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestTripHandler_Checkout(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		h, trips, _, _ := newTripHandler()
		req := models.CheckoutRequest{Plate: "abc1d23", Driver: "ana"}
		trips.On("Checkout", mock.Anything, req).Return(service.Result{Message: "Checkout of ABC1D23 registered at 09:00.", TripID: "t1"}, nil)

		w := httptest.NewRecorder()
		h.Checkout(w, jsonRequest(t, "POST", "/api/trips/checkout", req))

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.JSONEq(t, `{"message":"Checkout of ABC1D23 registered at 09:00.","trip_id":"t1"}`, w.Body.String())
		trips.AssertExpectations(t)
	})

	t.Run("invalid JSON never reaches the service", func(t *testing.T) {
		h, trips, _, _ := newTripHandler()
		w := httptest.NewRecorder()
		h.Checkout(w, httptest.NewRequest("POST", "/api/trips/checkout", bytes.NewBufferString("{plate")))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		trips.AssertNotCalled(t, "Checkout", mock.Anything, mock.Anything)
	})

	t.Run("empty body", func(t *testing.T) {
		h, _, _, _ := newTripHandler()
		w := httptest.NewRecorder()
		h.Checkout(w, httptest.NewRequest("POST", "/api/trips/checkout", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestWriteError_StatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"validation", &service.Error{Kind: service.ErrValidation, Message: "plate is required"}, http.StatusBadRequest, "validation"},
		{"conflict", &service.Error{Kind: service.ErrConflict, Message: "vehicle ABC1D23 already has a trip in progress"}, http.StatusConflict, "conflict"},
		{"not found", &service.Error{Kind: service.ErrNotFound, Message: "no trip in progress for vehicle ABC1D23"}, http.StatusNotFound, "not_found"},
		{"upstream", &service.Error{Kind: service.ErrUpstreamUnavailable, Message: "service temporarily unavailable, try again shortly"}, http.StatusServiceUnavailable, "upstream_unavailable"},
		{"internal", &service.Error{Kind: service.ErrInternal, Message: "internal error", Cause: errors.New("disk on fire")}, http.StatusInternalServerError, "internal"},
		{"raw error", errors.New("secret detail"), http.StatusInternalServerError, "internal"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, trips, _, _ := newTripHandler()
			trips.On("Return", mock.Anything, mock.Anything).Return(service.Result{}, tc.err)

			w := httptest.NewRecorder()
			h.Return(w, jsonRequest(t, "POST", "/api/trips/return", models.ReturnRequest{Plate: "ABC1D23"}))

			assert.Equal(t, tc.status, w.Code)
			body := decodeError(t, w)
			assert.Equal(t, tc.kind, body.Kind)
			assert.Equal(t, tc.status == http.StatusServiceUnavailable, body.Maintenance)
			assert.NotContains(t, w.Body.String(), "disk on fire")
			assert.NotContains(t, w.Body.String(), "secret detail")
		})
	}
}

func TestWriteError_LogsInternal(t *testing.T) {
	h, trips, _, hook := newTripHandler()
	trips.On("Cancel", mock.Anything, mock.Anything).Return(service.Result{}, errors.New("boom"))

	w := httptest.NewRecorder()
	h.Cancel(w, jsonRequest(t, "POST", "/api/trips/cancel", models.CancelRequest{Plate: "ABC1D23"}))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "request failed", hook.LastEntry().Message)
}

func TestTripHandler_History(t *testing.T) {
	t.Run("filters and page", func(t *testing.T) {
		h, _, history, _ := newTripHandler()
		filter := models.TripHistoryFilter{Month: "3", Year: 2025, Plate: "abc", Driver: "ana"}
		history.On("Page", mock.Anything, filter, 2).Return(models.TripPage{Total: 21, Page: 2, PageSize: 20}, nil)

		w := httptest.NewRecorder()
		h.History(w, httptest.NewRequest("GET", "/api/trips/history?month=3&year=2025&plate=abc&driver=ana&page=2", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"total":21`)
		history.AssertExpectations(t)
	})

	t.Run("bad year", func(t *testing.T) {
		h, _, _, _ := newTripHandler()
		w := httptest.NewRecorder()
		h.History(w, httptest.NewRequest("GET", "/api/trips/history?year=twenty", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("bad page", func(t *testing.T) {
		h, _, _, _ := newTripHandler()
		w := httptest.NewRecorder()
		h.History(w, httptest.NewRequest("GET", "/api/trips/history?page=0", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestTripHandler_GetUsesPathID(t *testing.T) {
	h, trips, _, _ := newTripHandler()
	trips.On("Get", mock.Anything, "65f000000000000000000001").Return(&models.Trip{VehiclePlate: "ABC1D23"}, nil)

	r := chi.NewRouter()
	r.Get("/api/trips/{id}", h.Get)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/trips/65f000000000000000000001", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"vehicle_plate":"ABC1D23"`)
}
