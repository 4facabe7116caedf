// Package report renders trip, refill and vehicle listings as PDF and XLSX.
package report

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/ukydev/fleet-logbook/internal/clock"
	"github.com/ukydev/fleet-logbook/internal/models"
)

// Generator renders reports with times shown in the local zone.
type Generator struct {
	zone clock.Zone
	now  func() time.Time
}

// NewGenerator creates a Generator. now stamps the report footer.
func NewGenerator(zone clock.Zone, now func() time.Time) *Generator {
	return &Generator{zone: zone, now: now}
}

type table struct {
	headers []string
	widths  []float64
	rows    [][]string
}

// TripsPDF lists trips in landscape A4.
func (g *Generator) TripsPDF(title string, trips []models.Trip) ([]byte, error) {
	t := table{
		headers: []string{"Plate", "Driver", "Requester", "Route", "Departure", "Arrival", "Duration", "Status"},
		widths:  []float64{22, 40, 35, 60, 30, 30, 20, 25},
	}
	for _, trip := range trips {
		t.rows = append(t.rows, []string{
			trip.VehiclePlate,
			trip.DriverName,
			dash(trip.RequesterName),
			dash(trip.RouteDescription),
			g.stamp(&trip.DepartureTime),
			g.stamp(trip.ArrivalTime),
			tripDuration(trip),
			statusLabel(trip.Status),
		})
	}
	return g.render(title, fmt.Sprintf("%d trips", len(trips)), t)
}

// RefillsPDF lists refills with a liters total.
func (g *Generator) RefillsPDF(title string, refills []models.Refill) ([]byte, error) {
	t := table{
		headers: []string{"Date", "Plate", "Driver", "Liters", "Odometer", "Note"},
		widths:  []float64{35, 25, 50, 25, 30, 97},
	}
	var total float64
	for _, r := range refills {
		liters := "-"
		if r.Liters != nil {
			liters = strconv.FormatFloat(*r.Liters, 'f', 2, 64)
			total += *r.Liters
		}
		odometer := "-"
		if r.Odometer != nil {
			odometer = strconv.FormatInt(*r.Odometer, 10)
		}
		t.rows = append(t.rows, []string{
			g.stamp(&r.Timestamp), r.VehiclePlate, dash(r.DriverName), liters, odometer, dash(r.Note),
		})
	}
	return g.render(title, fmt.Sprintf("%d refills, %.2f liters", len(refills), total), t)
}

// VehiclesPDF lists registered vehicles.
func (g *Generator) VehiclesPDF(title string, vehicles []models.Vehicle) ([]byte, error) {
	t := table{
		headers: []string{"Plate", "Category", "Status", "Trips", "Last odometer", "Override km/l", "Documents"},
		widths:  []float64{30, 60, 35, 25, 40, 40, 32},
	}
	for _, v := range vehicles {
		odometer, override := "-", "-"
		if v.LastOdometer != nil {
			odometer = strconv.FormatInt(*v.LastOdometer, 10)
		}
		if v.EfficiencyOverride != nil {
			override = strconv.FormatFloat(*v.EfficiencyOverride, 'f', 2, 64)
		}
		t.rows = append(t.rows, []string{
			v.Plate, dash(v.Category), string(v.Status), strconv.FormatInt(v.TotalTrips, 10),
			odometer, override, strconv.Itoa(len(v.Documents)),
		})
	}
	return g.render(title, fmt.Sprintf("%d vehicles", len(vehicles)), t)
}

func (g *Generator) render(title, summary string, t table) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(true, 12)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	generated := g.zone.Format(g.now(), "02/01/2006 15:04")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-10)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 5, fmt.Sprintf("Generated %s - page %d", generated, pdf.PageNo()), "", 0, "R", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, tr(title), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, tr(summary), "", 1, "C", false, 0, "")
	pdf.Ln(3)

	drawRow(pdf, tr, t.headers, t.widths, true)
	for _, row := range t.rows {
		drawRow(pdf, tr, row, t.widths, false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func drawRow(pdf *gofpdf.Fpdf, tr func(string) string, cols []string, widths []float64, header bool) {
	if header {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetFillColor(230, 230, 230)
	} else {
		pdf.SetFont("Helvetica", "", 8)
	}
	for i, col := range cols {
		pdf.CellFormat(widths[i], 7, tr(fit(pdf, col, widths[i]-2)), "1", 0, "L", header, 0, "")
	}
	pdf.Ln(-1)
}

// fit truncates s so it renders inside width.
func fit(pdf *gofpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && pdf.GetStringWidth(string(runes)+"...") > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}

func (g *Generator) stamp(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return g.zone.Format(*t, "02/01/2006 15:04")
}

func tripDuration(t models.Trip) string {
	d, ok := t.Duration()
	if !ok {
		return "-"
	}
	return clock.FormatDuration(d)
}

func statusLabel(s models.TripStatus) string {
	if s == models.TripInProgress {
		return "In progress"
	}
	return "Finished"
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
