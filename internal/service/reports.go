package service

import (
	"context"
	"strings"

	"github.com/ukydev/fleet-logbook/internal/clock"
	"github.com/ukydev/fleet-logbook/internal/models"
	"github.com/ukydev/fleet-logbook/internal/normalize"
	"github.com/ukydev/fleet-logbook/internal/report"
)

// ReportService renders exports of trips, refills and vehicles.
type ReportService struct {
	d       Deps
	history *HistoryService
	gen     *report.Generator
}

// NewReportService creates a ReportService.
func NewReportService(d Deps, history *HistoryService, gen *report.Generator) *ReportService {
	return &ReportService{d: d, history: history, gen: gen}
}

// TripsPDF renders the trips matching filter.
func (s *ReportService) TripsPDF(ctx context.Context, filter models.TripHistoryFilter) ([]byte, error) {
	trips, err := s.history.Export(ctx, filter)
	if err != nil {
		return nil, err
	}
	return s.rendered(s.gen.TripsPDF(tripsTitle(filter), trips))
}

// TripsXLSX exports the trips matching filter as a spreadsheet.
func (s *ReportService) TripsXLSX(ctx context.Context, filter models.TripHistoryFilter) ([]byte, error) {
	trips, err := s.history.Export(ctx, filter)
	if err != nil {
		return nil, err
	}
	return s.rendered(s.gen.TripsXLSX(trips))
}

// RefillsPDF renders refills, optionally for one plate and month.
func (s *ReportService) RefillsPDF(ctx context.Context, plate, month string) ([]byte, error) {
	plate = normalize.Plate(plate)
	title := "Refills"
	var period *clock.Range
	if month = strings.TrimSpace(month); month != "" {
		r, err := s.d.Zone.MonthRange(month)
		if err != nil {
			return nil, validationf("%s", err.Error())
		}
		period = &r
		title += " " + month
	}
	refills, err := s.d.Refills.FindRefills(ctx, plate, period, int64(s.d.Settings.ExportLimit))
	if err != nil {
		return nil, storeError("refill", err)
	}
	if plate != "" {
		title += " - " + plate
	}
	return s.rendered(s.gen.RefillsPDF(title, refills))
}

// VehiclesPDF renders the vehicle registry, optionally for one status.
func (s *ReportService) VehiclesPDF(ctx context.Context, status models.VehicleStatus) ([]byte, error) {
	vehicles, err := NewRegistryService(s.d).ListVehicles(ctx, status)
	if err != nil {
		return nil, err
	}
	title := "Vehicles"
	if status != "" {
		title += " - " + string(status)
	}
	return s.rendered(s.gen.VehiclesPDF(title, vehicles))
}

func (s *ReportService) rendered(out []byte, err error) ([]byte, error) {
	if err != nil {
		return nil, &Error{Kind: ErrInternal, Message: "report could not be generated", Cause: err}
	}
	return out, nil
}

func tripsTitle(f models.TripHistoryFilter) string {
	parts := []string{"Trips"}
	switch {
	case f.Date != "":
		parts = append(parts, f.Date)
	case f.Month != "":
		parts = append(parts, f.Month)
	}
	if f.Plate != "" {
		parts = append(parts, normalize.Plate(f.Plate))
	}
	if f.Driver != "" {
		parts = append(parts, normalize.Name(f.Driver))
	}
	return strings.Join(parts, " - ")
}
