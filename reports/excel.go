// Package reports renders attendance reports as spreadsheets.
package reports

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Rafhael-Viana/geoproof/models"
)

const dailySheet = "Daily Attendance"

var DailyHeader = []string{
	"ID",
	"Name",
	"Email",
	"Check In",
	"Check Out",
	"Latitude",
	"Longitude",
	"Accuracy (m)",
	"Distance (m)",
	"Inside Geofence",
	"Status",
	"Status Reason",
	"Suspicious",
	"Suspicious Reason",
	"Verified At",
	"Verification Note",
}

var dailyWidths = []float64{8, 24, 28, 20, 20, 14, 14, 12, 12, 10, 12, 60, 10, 48, 20, 40}

const timeLayout = "2006-01-02 15:04:05"

// DailyXLSX writes rows to a single-sheet workbook, times shown in loc.
func DailyXLSX(rows []models.Attendance, loc *time.Location) ([]byte, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(dailySheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		f.Close()
		return nil, fmt.Errorf("delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}

	for i, h := range DailyHeader {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(dailySheet, cell, h); err != nil {
			f.Close()
			return nil, fmt.Errorf("set header %s: %w", cell, err)
		}
		if err := f.SetCellStyle(dailySheet, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("set header style: %w", err)
		}
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(dailySheet, col, col, dailyWidths[i]); err != nil {
			f.Close()
			return nil, fmt.Errorf("set column width: %w", err)
		}
	}

	for i, a := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		values := dailyRow(a, loc)
		if err := f.SetSheetRow(dailySheet, cell, &values); err != nil {
			f.Close()
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(dailySheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func dailyRow(a models.Attendance, loc *time.Location) []any {
	var name, email string
	if a.User != nil {
		name, email = a.User.Name, a.User.Email
	}
	suspicious := "No"
	if a.SuspiciousFlag {
		suspicious = "Yes"
	}
	return []any{
		a.ID,
		name,
		email,
		a.CheckIn.In(loc).Format(timeLayout),
		formatTime(a.CheckOut, loc),
		floatOrBlank(a.Latitude),
		floatOrBlank(a.Longitude),
		floatOrBlank(a.AccuracyM),
		floatOrBlank(a.DistanceM),
		boolOrBlank(a.InsideGeofence),
		a.Status.String(),
		a.StatusReason,
		suspicious,
		stringOrBlank(a.SuspiciousReason),
		formatTime(a.VerifiedAt, loc),
		stringOrBlank(a.VerificationNote),
	}
}

func formatTime(t *time.Time, loc *time.Location) string {
	if t == nil {
		return ""
	}
	return t.In(loc).Format(timeLayout)
}

func floatOrBlank(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}

func boolOrBlank(v *bool) string {
	switch {
	case v == nil:
		return ""
	case *v:
		return "Yes"
	default:
		return "No"
	}
}

func stringOrBlank(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
