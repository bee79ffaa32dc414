package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"druktour/internal/itinerary"
	"druktour/internal/models"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Itinerary"

var columns = []string{"Day", "Title", "Description", "Activities", "Accommodation", "Meals", "Notes"}

var toneFill = map[itinerary.Tone]string{
	itinerary.ToneWarning: "#FFF2CC",
	itinerary.ToneSuccess: "#E2EFDA",
	itinerary.ToneDanger:  "#F8CBAD",
}

// Itinerary is what goes into one workbook.
type Itinerary struct {
	Booking *models.TourBooking
	Version int64
	Badge   itinerary.StatusBadge
	Days    []models.ItineraryDay
}

// FileName is the download name of the workbook.
func FileName(it Itinerary) string {
	return fmt.Sprintf("itinerary_%s_v%d.xlsx", it.Booking.ID, it.Version)
}

// Build renders the itinerary into a new workbook. The caller closes it.
func Build(it Itinerary) (*excelize.File, error) {
	if it.Booking == nil {
		return nil, fmt.Errorf("booking is required")
	}

	f := excelize.NewFile()
	if _, err := f.NewSheet(sheetName); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	_ = f.DeleteSheet("Sheet1")
	if index, err := f.GetSheetIndex(sheetName); err == nil {
		f.SetActiveSheet(index)
	}

	lastCol, _ := excelize.ColumnNumberToName(len(columns))

	title := fmt.Sprintf("%s | %s | starts %s | version %d",
		it.Booking.TourName, it.Booking.LeadTraveler, it.Booking.StartDate.Format("2006-01-02"), it.Version)
	_ = f.SetCellValue(sheetName, "A1", title)
	_ = f.MergeCell(sheetName, "A1", lastCol+"1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	if it.Badge.Visible {
		_ = f.SetCellValue(sheetName, "A2", it.Badge.Label)
		_ = f.MergeCell(sheetName, "A2", lastCol+"2")
		badgeStyle, err := f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{toneFill[it.Badge.Tone]}, Pattern: 1},
			Font:      &excelize.Font{Bold: true},
			Alignment: &excelize.Alignment{Horizontal: "center"},
		})
		if err == nil {
			_ = f.SetCellStyle(sheetName, "A2", "A2", badgeStyle)
		}
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, name := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 3)
		_ = f.SetCellValue(sheetName, cell, name)
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	wrap, _ := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})
	for i, day := range it.Days {
		row := i + 4
		values := []interface{}{
			day.DayNumber,
			day.Title,
			day.Description,
			strings.Join(day.Activities, "\n"),
			day.Accommodation,
			strings.Join(day.Meals, ", "),
			day.Notes,
		}
		start, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheetName, start, &values); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write day %s: %w", day.ID, err)
		}
		end, _ := excelize.CoordinatesToCellName(len(columns), row)
		_ = f.SetCellStyle(sheetName, start, end, wrap)
	}

	_ = f.SetColWidth(sheetName, "A", "A", 6)
	_ = f.SetColWidth(sheetName, "B", "B", 28)
	_ = f.SetColWidth(sheetName, "C", "D", 45)
	_ = f.SetColWidth(sheetName, "E", "G", 25)

	return f, nil
}

// Write streams the workbook to w.
func Write(w io.Writer, it Itinerary) error {
	f, err := Build(it)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

// Save writes the workbook into dir and returns the file path.
func Save(dir string, it Itinerary) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f, err := Build(it)
	if err != nil {
		return "", err
	}
	defer f.Close()

	path := filepath.Join(dir, FileName(it))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}
	return path, nil
}
