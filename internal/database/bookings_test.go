package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotbook/internal/domain"
	"slotbook/internal/models"
)

var testDate = time.Date(2030, 6, 3, 0, 0, 0, 0, time.UTC)

func TestInsertAndGetBooking(t *testing.T) {
	db := setupTestDB(t)
	fx := seedCatalog(t, db)
	ctx := context.Background()

	b := newBooking(fx.service.ID, testDate, "09:00")
	b.Notes = "first visit"
	require.NoError(t, db.InsertBooking(ctx, b))
	assert.Equal(t, int64(1), b.Version)

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, fx.service.ID, got.ServiceID)
	assert.Equal(t, fx.company.ID, got.CompanyID)
	assert.Equal(t, "Haircut", got.ServiceName)
	assert.Equal(t, "2030-06-03", got.DateString())
	assert.Equal(t, "09:00", got.TimeSlot)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, int64(2500), got.TotalPriceCents)
	assert.Equal(t, "first visit", got.Notes)

	_, err = db.GetBooking(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInsertBooking_ActiveSlotIsUnique(t *testing.T) {
	db := setupTestDB(t)
	fx := seedCatalog(t, db)
	ctx := context.Background()

	first := newBooking(fx.service.ID, testDate, "09:00")
	require.NoError(t, db.InsertBooking(ctx, first))

	err := db.InsertBooking(ctx, newBooking(fx.service.ID, testDate, "09:00"))
	assert.ErrorIs(t, err, domain.ErrUniqueViolation)

	t.Run("other slot and date are free", func(t *testing.T) {
		require.NoError(t, db.InsertBooking(ctx, newBooking(fx.service.ID, testDate, "10:00")))
		require.NoError(t, db.InsertBooking(ctx, newBooking(fx.service.ID, testDate.AddDate(0, 0, 1), "09:00")))
	})

	t.Run("cancelling releases the slot", func(t *testing.T) {
		first.Status = models.StatusCancelled
		first.CancellationReason = "changed plans"
		require.NoError(t, db.UpdateBooking(ctx, first))
		require.NoError(t, db.InsertBooking(ctx, newBooking(fx.service.ID, testDate, "09:00")))
	})
}

func TestUpdateBooking_Version(t *testing.T) {
	db := setupTestDB(t)
	fx := seedCatalog(t, db)
	ctx := context.Background()

	b := newBooking(fx.service.ID, testDate, "11:00")
	require.NoError(t, db.InsertBooking(ctx, b))

	stale := *b
	b.Status = models.StatusConfirmed
	require.NoError(t, db.UpdateBooking(ctx, b))
	assert.Equal(t, int64(2), b.Version)

	stale.Status = models.StatusCancelled
	err := db.UpdateBooking(ctx, &stale)
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, got.Status)
	assert.Equal(t, int64(2), got.Version)

	err = db.UpdateBooking(ctx, &models.Booking{ID: "missing", Version: 1, Status: models.StatusCancelled})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFindBookings(t *testing.T) {
	db := setupTestDB(t)
	fx := seedCatalog(t, db)
	ctx := context.Background()

	slots := []string{"09:00", "10:00", "11:00", "12:00", "13:00"}
	for i, slot := range slots {
		b := newBooking(fx.service.ID, testDate.AddDate(0, 0, i%2), slot)
		if i == 4 {
			b.UserID = "user-2"
			b.Status = models.StatusConfirmed
		}
		require.NoError(t, db.InsertBooking(ctx, b))
	}

	t.Run("by user", func(t *testing.T) {
		got, total, err := db.FindBookings(ctx, models.BookingFilter{UserID: "user-2"})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, got, 1)
		assert.Equal(t, "13:00", got[0].TimeSlot)
	})

	t.Run("by company and status", func(t *testing.T) {
		got, total, err := db.FindBookings(ctx, models.BookingFilter{
			CompanyID: fx.company.ID,
			Statuses:  []models.BookingStatus{models.StatusPending},
		})
		require.NoError(t, err)
		assert.Equal(t, 4, total)
		assert.Len(t, got, 4)
	})

	t.Run("by service and date range", func(t *testing.T) {
		got, total, err := db.FindBookings(ctx, models.BookingFilter{
			ServiceID: fx.service.ID, From: testDate, To: testDate,
		})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		for _, b := range got {
			assert.Equal(t, "2030-06-03", b.DateString())
		}
	})

	t.Run("paging", func(t *testing.T) {
		page, total, err := db.FindBookings(ctx, models.BookingFilter{CompanyID: fx.company.ID, Page: 2, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		assert.Len(t, page, 2)
	})

	t.Run("newest first by default", func(t *testing.T) {
		got, _, err := db.FindBookings(ctx, models.BookingFilter{CompanyID: fx.company.ID, Page: 1, Limit: 3})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []string{"2030-06-04 12:00", "2030-06-04 10:00", "2030-06-03 13:00"}, when(got))
	})

	t.Run("chronological", func(t *testing.T) {
		got, _, err := db.FindBookings(ctx, models.BookingFilter{CompanyID: fx.company.ID, Chronological: true})
		require.NoError(t, err)
		assert.Equal(t, []string{
			"2030-06-03 09:00", "2030-06-03 11:00", "2030-06-03 13:00", "2030-06-04 10:00", "2030-06-04 12:00",
		}, when(got))
	})

	t.Run("empty result is not nil", func(t *testing.T) {
		got, total, err := db.FindBookings(ctx, models.BookingFilter{UserID: "nobody"})
		require.NoError(t, err)
		assert.Equal(t, 0, total)
		assert.NotNil(t, got)
	})
}

func TestDB_ErrorPaths(t *testing.T) {
	db := setupTestDB(t)
	db.Close()
	ctx := context.Background()

	_, _, err := db.FindBookings(ctx, models.BookingFilter{})
	assert.Error(t, err)
	assert.Error(t, db.InsertBooking(ctx, &models.Booking{ID: "x"}))
	_, err = db.FindOperatingWindows(ctx, "c1")
	assert.Error(t, err)
	assert.Error(t, db.CreateSyncTask(ctx, &models.SyncTask{}))
	assert.Error(t, db.Ping(ctx))
}

func when(bookings []*models.Booking) []string {
	out := make([]string, len(bookings))
	for i, b := range bookings {
		out[i] = b.DateString() + " " + b.TimeSlot
	}
	return out
}
