// Package export renders company booking reports as Excel workbooks.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"slotbook/internal/models"
	"slotbook/internal/retention"
)

const (
	bookingsSheet = "Bookings"
	scheduleSheet = "Schedule"
)

var bookingHeaders = []string{"ID", "Date", "Time", "Service", "User ID", "Status", "Price", "Notes", "Cancellation Reason", "Created At"}

// Report is one company's bookings over [From, To].
type Report struct {
	CompanyName string
	From        time.Time
	To          time.Time
	Bookings    []*models.Booking
}

// Build lays the report out in a new workbook: a flat booking list and a
// date by time-slot grid of active bookings.
func Build(r Report) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(bookingsSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := writeBookingList(f, r); err != nil {
		f.Close()
		return nil, err
	}

	if _, err := f.NewSheet(scheduleSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	if err := writeSchedule(f, r); err != nil {
		f.Close()
		return nil, err
	}

	_ = f.DeleteSheet("Sheet1")
	return f, nil
}

// Write streams the report as XLSX.
func Write(w io.Writer, r Report) error {
	f, err := Build(r)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

// SaveToDir writes the report under dir and returns the file path.
func SaveToDir(dir string, r Report) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}
	f, err := Build(r)
	if err != nil {
		return "", err
	}
	defer f.Close()

	path := filepath.Join(dir, FileName(r))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}
	return path, nil
}

// FilePattern matches the workbooks named by FileName.
var FilePattern = retention.Pattern{Prefix: "bookings_", Suffix: ".xlsx"}

// FileName is the suggested name of the report's workbook.
func FileName(r Report) string {
	return fmt.Sprintf("%s%s_to_%s%s", FilePattern.Prefix, r.From.Format("2006-01-02"), r.To.Format("2006-01-02"), FilePattern.Suffix)
}

// Prune removes workbooks in dir older than days.
func Prune(dir string, days int, logger *zerolog.Logger) ([]string, error) {
	return retention.Sweep(dir, FilePattern, days, time.Now(), logger)
}

func writeBookingList(f *excelize.File, r Report) error {
	title := fmt.Sprintf("%s: %s - %s", r.CompanyName, r.From.Format("02.01.2006"), r.To.Format("02.01.2006"))
	if err := f.SetCellValue(bookingsSheet, "A1", title); err != nil {
		return err
	}
	lastCol, _ := excelize.ColumnNumberToName(len(bookingHeaders))
	_ = f.MergeCell(bookingsSheet, "A1", lastCol+"1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(bookingsSheet, "A1", "A1", titleStyle)

	header := make([]interface{}, len(bookingHeaders))
	for i, h := range bookingHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(bookingsSheet, "A2", &header); err != nil {
		return err
	}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	_ = f.SetCellStyle(bookingsSheet, "A2", lastCol+"2", headerStyle)

	for i, b := range sortedBookings(r.Bookings) {
		cell, _ := excelize.CoordinatesToCellName(1, i+3)
		row := []interface{}{
			b.ID,
			b.DateString(),
			b.TimeSlot,
			b.ServiceName,
			b.UserID,
			string(b.Status),
			float64(b.TotalPriceCents) / 100,
			b.Notes,
			b.CancellationReason,
			b.CreatedAt.UTC().Format("2006-01-02 15:04"),
		}
		if err := f.SetSheetRow(bookingsSheet, cell, &row); err != nil {
			return err
		}
	}

	_ = f.SetColWidth(bookingsSheet, "A", "A", 38)
	_ = f.SetColWidth(bookingsSheet, "B", lastCol, 16)
	return nil
}

// writeSchedule puts dates across and start times down, naming the
// service booked in each cell.
func writeSchedule(f *excelize.File, r Report) error {
	active := make([]*models.Booking, 0, len(r.Bookings))
	for _, b := range r.Bookings {
		if b.Status.Active() {
			active = append(active, b)
		}
	}

	slots := map[string]struct{}{}
	for _, b := range active {
		slots[b.TimeSlot] = struct{}{}
	}
	times := make([]string, 0, len(slots))
	for s := range slots {
		times = append(times, s)
	}
	sort.Strings(times)
	rows := make(map[string]int, len(times))
	for i, s := range times {
		rows[s] = i + 2
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetCellValue(scheduleSheet, cell, s); err != nil {
			return err
		}
	}

	cols := map[string]int{}
	col := 2
	for d := r.From; !d.After(r.To); d = d.AddDate(0, 0, 1) {
		cell, _ := excelize.CoordinatesToCellName(col, 1)
		if err := f.SetCellValue(scheduleSheet, cell, d.Format("02.01")); err != nil {
			return err
		}
		cols[d.Format("2006-01-02")] = col
		col++
	}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	lastCell, _ := excelize.CoordinatesToCellName(col-1, 1)
	_ = f.SetCellStyle(scheduleSheet, "A1", lastCell, headerStyle)

	for _, b := range active {
		c, ok := cols[b.DateString()]
		if !ok {
			continue
		}
		cell, _ := excelize.CoordinatesToCellName(c, rows[b.TimeSlot])
		existing, _ := f.GetCellValue(scheduleSheet, cell)
		value := b.ServiceName
		if existing != "" {
			value = existing + ", " + b.ServiceName
		}
		if err := f.SetCellValue(scheduleSheet, cell, value); err != nil {
			return err
		}
	}
	return nil
}

func sortedBookings(in []*models.Booking) []*models.Booking {
	out := make([]*models.Booking, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].TimeSlot < out[j].TimeSlot
	})
	return out
}
