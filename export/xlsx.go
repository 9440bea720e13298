// Package export renders crop history as XLSX and farms as GeoJSON.
package export

import (
	"fmt"
	"io"
	"time"

	"cropwise/models"

	"github.com/xuri/excelize/v2"
)

const historySheet = "History"

var historyHeaders = []struct {
	label string
	width float64
}{
	{"Timestamp", 20},
	{"Action", 16},
	{"Decision", 30},
	{"Outcome", 12},
	{"Reward", 10},
	{"Moisture", 10},
	{"pH", 8},
	{"N", 8},
	{"P", 8},
	{"K", 8},
	{"NPK", 12},
}

// CropHistoryXLSX writes the crop's history, newest first, as a workbook.
func CropHistoryXLSX(w io.Writer, crop models.Crop, entries []models.CropHistoryEntry, now time.Time) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", historySheet); err != nil {
		return err
	}

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 16},
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "center"},
	})
	_ = f.SetCellValue(historySheet, "A1", fmt.Sprintf("%s (%s)", crop.Name, crop.CurrentStage))
	_ = f.SetCellStyle(historySheet, "A1", "A1", titleStyle)
	_ = f.SetRowHeight(historySheet, 1, 30)
	_ = f.SetCellValue(historySheet, "A2", fmt.Sprintf("Generated: %s", now.Format("2006-01-02 15:04:05")))

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#2E7D32"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	for i, h := range historyHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 4)
		col, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetCellValue(historySheet, cell, h.label)
		_ = f.SetCellStyle(historySheet, cell, cell, headerStyle)
		_ = f.SetColWidth(historySheet, col, col, h.width)
	}

	for r, e := range entries {
		row := []any{
			e.Timestamp.Format("2006-01-02 15:04:05"),
			e.Action,
			e.Decision,
			e.Outcome,
			nil,
			e.Sensors.Moisture,
			e.Sensors.PH,
			e.Sensors.N,
			e.Sensors.P,
			e.Sensors.K,
			e.Sensors.NPK,
		}
		if e.Reward != nil {
			row[4] = *e.Reward
		}
		cell, _ := excelize.CoordinatesToCellName(1, r+5)
		if err := f.SetSheetRow(historySheet, cell, &row); err != nil {
			return err
		}
	}
	return f.Write(w)
}
