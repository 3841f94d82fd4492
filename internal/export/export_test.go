package export

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"slotbook/internal/models"
)

func sampleReport() Report {
	day := func(d int) time.Time { return time.Date(2030, 6, d, 0, 0, 0, 0, time.UTC) }
	return Report{
		CompanyName: "Barber",
		From:        day(3),
		To:          day(5),
		Bookings: []*models.Booking{
			{ID: "b2", Date: day(4), TimeSlot: "10:00", ServiceName: "Shave", Status: models.StatusConfirmed, TotalPriceCents: 1250},
			{ID: "b1", Date: day(3), TimeSlot: "09:00", ServiceName: "Haircut", Status: models.StatusPending, TotalPriceCents: 2500},
			{ID: "b3", Date: day(3), TimeSlot: "11:00", ServiceName: "Haircut", Status: models.StatusCancelled},
		},
	}
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleReport()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Bookings", "Schedule"}, f.GetSheetList())

	rows, err := f.GetRows("Bookings")
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "Barber: 03.06.2030 - 05.06.2030", rows[0][0])
	assert.Equal(t, "ID", rows[1][0])
	// Sorted by date then time.
	assert.Equal(t, "b1", rows[2][0])
	assert.Equal(t, "b3", rows[3][0])
	assert.Equal(t, "b2", rows[4][0])
	assert.Equal(t, "12.5", rows[4][6])

	schedule, err := f.GetRows("Schedule")
	require.NoError(t, err)
	require.Len(t, schedule, 3)
	assert.Equal(t, []string{"", "03.06", "04.06", "05.06"}, schedule[0])
	assert.Equal(t, []string{"09:00", "Haircut"}, schedule[1])
	assert.Equal(t, []string{"10:00", "", "Shave"}, schedule[2])
}

func TestSaveToDir(t *testing.T) {
	dir := t.TempDir()
	path, err := SaveToDir(dir, sampleReport())
	require.NoError(t, err)
	assert.Contains(t, path, "bookings_2030-06-03_to_2030-06-05.xlsx")

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestWrite_Empty(t *testing.T) {
	r := sampleReport()
	r.Bookings = nil
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, r))
	assert.Positive(t, buf.Len())
}

func TestPrune(t *testing.T) {
	dir := t.TempDir()
	path, err := SaveToDir(dir, sampleReport())
	require.NoError(t, err)
	assert.True(t, FilePattern.Match(filepath.Base(path)))

	old := filepath.Join(dir, "bookings_2030-01-01_to_2030-01-31.xlsx")
	foreign := filepath.Join(dir, "notes.xlsx")
	for _, p := range []string{old, foreign} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
		stale := time.Now().AddDate(0, 0, -40)
		require.NoError(t, os.Chtimes(p, stale, stale))
	}

	logger := zerolog.Nop()
	removed, err := Prune(dir, 30, &logger)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Base(old)}, removed)
	assert.FileExists(t, path)
	assert.FileExists(t, foreign)
}
