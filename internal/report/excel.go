package report

import (
	"fmt"

	"github.com/ukydev/fleet-logbook/internal/models"
	"github.com/xuri/excelize/v2"
)

const tripSheet = "Trips"

// TripsXLSX exports trips as a single-sheet workbook.
func (g *Generator) TripsXLSX(trips []models.Trip) ([]byte, error) {
	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", tripSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	set := func(col, row int, value any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = file.SetCellValue(tripSheet, cell, value)
	}

	headers := []string{"ID", "Plate", "Driver", "Requester", "Route", "Status", "Departure", "Arrival", "Duration"}
	for i, h := range headers {
		set(i+1, 1, h)
	}
	if style, err := file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = file.SetRowStyle(tripSheet, 1, 1, style)
	}

	for i, t := range trips {
		row := i + 2
		set(1, row, t.ID.Hex())
		set(2, row, t.VehiclePlate)
		set(3, row, t.DriverName)
		set(4, row, t.RequesterName)
		set(5, row, t.RouteDescription)
		set(6, row, string(t.Status))
		set(7, row, g.stamp(&t.DepartureTime))
		set(8, row, g.stamp(t.ArrivalTime))
		set(9, row, tripDuration(t))
	}

	_ = file.SetColWidth(tripSheet, "A", "A", 26)
	_ = file.SetColWidth(tripSheet, "B", "B", 12)
	_ = file.SetColWidth(tripSheet, "C", "E", 30)
	_ = file.SetColWidth(tripSheet, "F", "F", 12)
	_ = file.SetColWidth(tripSheet, "G", "H", 18)
	_ = file.SetPanes(tripSheet, &excelize.Panes{Freeze: true, Split: false, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("render xlsx: %w", err)
	}
	return buf.Bytes(), nil
}
