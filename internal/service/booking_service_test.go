package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"slotbook/internal/domain"
	"slotbook/internal/events"
	"slotbook/internal/models"
)

// 2030-06-03 is a Monday.
var (
	monday   = time.Date(2030, 6, 3, 0, 0, 0, 0, time.UTC)
	fixedNow = time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)
)

func testService() *models.Service {
	return &models.Service{ID: "svc-1", CompanyID: "co-1", Name: "Massage", DurationMinutes: 60, PriceCents: 5000, Active: true}
}

func mondayMorning() []*models.OperatingWindow {
	return []*models.OperatingWindow{{
		ID: "w1", CompanyID: "co-1", DayOfWeek: models.OnDay(time.Monday),
		StartTime: 9 * 60, EndTime: 12 * 60, Active: true,
	}}
}

func activeFilter(serviceID string, day time.Time) models.BookingFilter {
	return models.BookingFilter{
		ServiceID: serviceID,
		Statuses:  []models.BookingStatus{models.StatusPending, models.StatusConfirmed},
		From:      day,
		To:        day,
	}
}

func newTestService(store *mockStore, bus domain.EventPublisher, worker domain.SyncWorker) *BookingService {
	logger := zerolog.New(io.Discard)
	return NewBookingService(store, bus, worker, 90, &logger, WithClock(func() time.Time { return fixedNow }))
}

func TestAvailability(t *testing.T) {
	ctx := context.Background()

	t.Run("free morning", func(t *testing.T) {
		store := new(mockStore)
		store.On("FindService", ctx, "svc-1").Return(testService(), nil).Once()
		store.On("FindOperatingWindows", ctx, "co-1").Return(mondayMorning(), nil).Once()
		store.On("FindBookings", ctx, activeFilter("svc-1", monday)).Return([]*models.Booking{}, 0, nil).Once()

		got, err := newTestService(store, nil, nil).Availability(ctx, "svc-1", "2030-06-03")
		require.NoError(t, err)
		assert.Equal(t, "2030-06-03", got.Date)
		assert.Equal(t, []models.Slot{
			{Time: "09:00", IsAvailable: true},
			{Time: "10:00", IsAvailable: true},
			{Time: "11:00", IsAvailable: true},
		}, got.Slots)
		store.AssertExpectations(t)
	})

	t.Run("confirmed booking marks slot taken", func(t *testing.T) {
		store := new(mockStore)
		taken := &models.Booking{ID: "b1", ServiceID: "svc-1", Date: monday, TimeSlot: "10:00", Status: models.StatusConfirmed}
		store.On("FindService", ctx, "svc-1").Return(testService(), nil).Once()
		store.On("FindOperatingWindows", ctx, "co-1").Return(mondayMorning(), nil).Once()
		store.On("FindBookings", ctx, activeFilter("svc-1", monday)).Return([]*models.Booking{taken}, 1, nil).Once()

		got, err := newTestService(store, nil, nil).Availability(ctx, "svc-1", "2030-06-03")
		require.NoError(t, err)
		require.Len(t, got.Slots, 3)
		assert.False(t, got.Slots[1].IsAvailable)
		assert.True(t, got.Slots[0].IsAvailable)
	})

	t.Run("unknown service", func(t *testing.T) {
		store := new(mockStore)
		store.On("FindService", ctx, "nope").Return(nil, domain.ErrNotFound).Once()
		_, err := newTestService(store, nil, nil).Availability(ctx, "nope", "2030-06-03")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("bad date", func(t *testing.T) {
		store := new(mockStore)
		_, err := newTestService(store, nil, nil).Availability(ctx, "svc-1", "03/06/2030")
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
		store.AssertNotCalled(t, "FindService", mock.Anything, mock.Anything)
	})
}

func TestCreateBooking(t *testing.T) {
	ctx := context.Background()
	req := CreateBookingRequest{UserID: "user-1", ServiceID: "svc-1", Date: "2030-06-03", TimeSlot: "09:00", Notes: "back pain"}

	expectLookups := func(store *mockStore, svc *models.Service, existing []*models.Booking) {
		store.On("FindService", ctx, "svc-1").Return(svc, nil).Once()
		store.On("FindOperatingWindows", ctx, "co-1").Return(mondayMorning(), nil).Once()
		store.On("FindBookings", ctx, activeFilter("svc-1", monday)).Return(existing, len(existing), nil).Once()
	}

	t.Run("success", func(t *testing.T) {
		store := new(mockStore)
		bus := new(mockPublisher)
		worker := new(mockSyncWorker)
		expectLookups(store, testService(), []*models.Booking{})
		store.On("InsertBooking", ctx, mock.MatchedBy(func(b *models.Booking) bool {
			return b.Status == models.StatusPending && b.TotalPriceCents == 5000 && b.TimeSlot == "09:00" &&
				b.UserID == "user-1" && b.Notes == "back pain" && b.ID != ""
		})).Return(nil).Once()
		bus.On("PublishJSON", events.EventBookingCreated, mock.AnythingOfType("events.BookingEventPayload")).Return(nil).Once()
		worker.On("EnqueueTask", ctx, domain.SyncTaskUpsert, mock.AnythingOfType("*models.Booking")).Return(nil).Once()

		b, err := newTestService(store, bus, worker).CreateBooking(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, b.Status)
		assert.Equal(t, "2030-06-03", b.DateString())
		assert.Equal(t, int64(5000), b.TotalPriceCents)

		store.AssertExpectations(t)
		bus.AssertExpectations(t)
		worker.AssertExpectations(t)
	})

	t.Run("malformed time slot rejected before storage", func(t *testing.T) {
		store := new(mockStore)
		bad := req
		bad.TimeSlot = "25:00"
		_, err := newTestService(store, nil, nil).CreateBooking(ctx, bad)
		assert.ErrorIs(t, err, domain.ErrInvalidTimeFormat)
		store.AssertNotCalled(t, "FindService", mock.Anything, mock.Anything)
	})

	t.Run("missing user", func(t *testing.T) {
		bad := req
		bad.UserID = ""
		_, err := newTestService(new(mockStore), nil, nil).CreateBooking(ctx, bad)
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	})

	t.Run("inactive service", func(t *testing.T) {
		store := new(mockStore)
		svc := testService()
		svc.Active = false
		expectLookups(store, svc, []*models.Booking{})
		_, err := newTestService(store, nil, nil).CreateBooking(ctx, req)
		assert.ErrorIs(t, err, domain.ErrServiceInactive)
		store.AssertNotCalled(t, "InsertBooking", mock.Anything, mock.Anything)
	})

	t.Run("yesterday is past", func(t *testing.T) {
		store := new(mockStore)
		yesterday := fixedNow.AddDate(0, 0, -1)
		store.On("FindService", ctx, "svc-1").Return(testService(), nil).Once()
		store.On("FindOperatingWindows", ctx, "co-1").Return(mondayMorning(), nil).Once()
		day := time.Date(yesterday.Year(), yesterday.Month(), yesterday.Day(), 0, 0, 0, 0, time.UTC)
		store.On("FindBookings", ctx, activeFilter("svc-1", day)).Return([]*models.Booking{}, 0, nil).Once()

		past := req
		past.Date = yesterday.Format("2006-01-02")
		_, err := newTestService(store, nil, nil).CreateBooking(ctx, past)
		assert.ErrorIs(t, err, domain.ErrPastDateTime)
	})

	t.Run("outside operating hours", func(t *testing.T) {
		store := new(mockStore)
		expectLookups(store, testService(), []*models.Booking{})
		late := req
		late.TimeSlot = "13:00"
		_, err := newTestService(store, nil, nil).CreateBooking(ctx, late)
		assert.ErrorIs(t, err, domain.ErrOutsideOperatingHours)
	})

	t.Run("pre-check finds the slot taken", func(t *testing.T) {
		store := new(mockStore)
		existing := &models.Booking{ID: "b0", ServiceID: "svc-1", Date: monday, TimeSlot: "09:00", Status: models.StatusPending}
		expectLookups(store, testService(), []*models.Booking{existing})
		_, err := newTestService(store, nil, nil).CreateBooking(ctx, req)
		assert.ErrorIs(t, err, domain.ErrSlotAlreadyBooked)
		store.AssertNotCalled(t, "InsertBooking", mock.Anything, mock.Anything)
	})

	t.Run("unique violation maps to slot already booked", func(t *testing.T) {
		store := new(mockStore)
		expectLookups(store, testService(), []*models.Booking{})
		store.On("InsertBooking", ctx, mock.Anything).
			Return(fmt.Errorf("failed to create booking: %w", domain.ErrUniqueViolation)).Once()

		_, err := newTestService(store, nil, nil).CreateBooking(ctx, req)
		assert.ErrorIs(t, err, domain.ErrSlotAlreadyBooked)
		assert.NotErrorIs(t, err, domain.ErrUniqueViolation)
	})

	t.Run("storage failure propagates", func(t *testing.T) {
		store := new(mockStore)
		expectLookups(store, testService(), []*models.Booking{})
		store.On("InsertBooking", ctx, mock.Anything).Return(errors.New("disk full")).Once()

		_, err := newTestService(store, nil, nil).CreateBooking(ctx, req)
		require.Error(t, err)
		assert.False(t, domain.IsRejection(err))
	})
}

func TestCancelBooking(t *testing.T) {
	ctx := context.Background()

	booking := func(status models.BookingStatus) *models.Booking {
		return &models.Booking{ID: "b1", UserID: "user-1", ServiceID: "svc-1", Date: monday, TimeSlot: "09:00", Status: status, Version: 3}
	}

	t.Run("owner cancels pending booking", func(t *testing.T) {
		store := new(mockStore)
		bus := new(mockPublisher)
		worker := new(mockSyncWorker)
		store.On("GetBooking", ctx, "b1").Return(booking(models.StatusPending), nil).Once()
		store.On("UpdateBooking", ctx, mock.MatchedBy(func(b *models.Booking) bool {
			return b.Status == models.StatusCancelled && b.CancellationReason == "sick" && b.Version == 3
		})).Return(nil).Once()
		bus.On("PublishJSON", events.EventBookingCancelled, mock.Anything).Return(nil).Once()
		worker.On("EnqueueTask", ctx, domain.SyncTaskUpdateStatus, mock.Anything).Return(nil).Once()

		b, err := newTestService(store, bus, worker).CancelBooking(ctx, "b1", "user-1", "sick")
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, b.Status)
		assert.Equal(t, "sick", b.CancellationReason)
		store.AssertExpectations(t)
		bus.AssertExpectations(t)
		worker.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		store := new(mockStore)
		store.On("GetBooking", ctx, "b1").Return(nil, domain.ErrNotFound).Once()
		_, err := newTestService(store, nil, nil).CancelBooking(ctx, "b1", "user-1", "")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("other user is forbidden", func(t *testing.T) {
		store := new(mockStore)
		store.On("GetBooking", ctx, "b1").Return(booking(models.StatusPending), nil).Once()
		_, err := newTestService(store, nil, nil).CancelBooking(ctx, "b1", "intruder", "")
		assert.ErrorIs(t, err, domain.ErrForbidden)
		store.AssertNotCalled(t, "UpdateBooking", mock.Anything, mock.Anything)
	})

	t.Run("already cancelled", func(t *testing.T) {
		store := new(mockStore)
		store.On("GetBooking", ctx, "b1").Return(booking(models.StatusCancelled), nil).Twice()
		svc := newTestService(store, nil, nil)
		_, err := svc.CancelBooking(ctx, "b1", "user-1", "")
		assert.ErrorIs(t, err, domain.ErrAlreadyCancelled)
		_, err = svc.CancelBooking(ctx, "b1", "user-1", "")
		assert.ErrorIs(t, err, domain.ErrAlreadyCancelled)
		store.AssertNotCalled(t, "UpdateBooking", mock.Anything, mock.Anything)
	})

	t.Run("completed cannot be cancelled", func(t *testing.T) {
		store := new(mockStore)
		done := booking(models.StatusCompleted)
		store.On("GetBooking", ctx, "b1").Return(done, nil).Once()
		_, err := newTestService(store, nil, nil).CancelBooking(ctx, "b1", "user-1", "")
		assert.ErrorIs(t, err, domain.ErrCannotCancelCompleted)
		assert.Equal(t, models.StatusCompleted, done.Status)
	})

	t.Run("lost race", func(t *testing.T) {
		store := new(mockStore)
		store.On("GetBooking", ctx, "b1").Return(booking(models.StatusConfirmed), nil).Once()
		store.On("UpdateBooking", ctx, mock.Anything).Return(domain.ErrConcurrentModification).Once()
		_, err := newTestService(store, nil, nil).CancelBooking(ctx, "b1", "user-1", "")
		assert.ErrorIs(t, err, domain.ErrConcurrentModification)
	})
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()

	booking := func(status models.BookingStatus) *models.Booking {
		return &models.Booking{ID: "b1", UserID: "user-1", ServiceID: "svc-1", Date: monday, TimeSlot: "09:00", Status: status, Version: 1}
	}

	t.Run("company confirms", func(t *testing.T) {
		store := new(mockStore)
		bus := new(mockPublisher)
		store.On("GetBooking", ctx, "b1").Return(booking(models.StatusPending), nil).Once()
		store.On("FindService", ctx, "svc-1").Return(testService(), nil).Once()
		store.On("UpdateBooking", ctx, mock.MatchedBy(func(b *models.Booking) bool {
			return b.Status == models.StatusConfirmed
		})).Return(nil).Once()
		bus.On("PublishJSON", events.EventBookingStatusChanged, mock.MatchedBy(func(p events.BookingEventPayload) bool {
			return p.PreviousStatus == models.StatusPending && p.Status == models.StatusConfirmed && p.ChangedBy == "co-1"
		})).Return(nil).Once()

		b, err := newTestService(store, bus, nil).UpdateStatus(ctx, "b1", "co-1", models.StatusConfirmed)
		require.NoError(t, err)
		assert.Equal(t, models.StatusConfirmed, b.Status)
		store.AssertExpectations(t)
		bus.AssertExpectations(t)
	})

	t.Run("company rejects via cancel", func(t *testing.T) {
		store := new(mockStore)
		bus := new(mockPublisher)
		store.On("GetBooking", ctx, "b1").Return(booking(models.StatusPending), nil).Once()
		store.On("FindService", ctx, "svc-1").Return(testService(), nil).Once()
		store.On("UpdateBooking", ctx, mock.Anything).Return(nil).Once()
		bus.On("PublishJSON", events.EventBookingCancelled, mock.Anything).Return(nil).Once()

		_, err := newTestService(store, bus, nil).UpdateStatus(ctx, "b1", "co-1", models.StatusCancelled)
		require.NoError(t, err)
		bus.AssertExpectations(t)
	})

	t.Run("other company forbidden", func(t *testing.T) {
		store := new(mockStore)
		store.On("GetBooking", ctx, "b1").Return(booking(models.StatusPending), nil).Once()
		store.On("FindService", ctx, "svc-1").Return(testService(), nil).Once()
		_, err := newTestService(store, nil, nil).UpdateStatus(ctx, "b1", "co-2", models.StatusConfirmed)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("illegal transition", func(t *testing.T) {
		store := new(mockStore)
		store.On("GetBooking", ctx, "b1").Return(booking(models.StatusCompleted), nil).Once()
		store.On("FindService", ctx, "svc-1").Return(testService(), nil).Once()
		_, err := newTestService(store, nil, nil).UpdateStatus(ctx, "b1", "co-1", models.StatusPending)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		store.AssertNotCalled(t, "UpdateBooking", mock.Anything, mock.Anything)
	})

	t.Run("not found", func(t *testing.T) {
		store := new(mockStore)
		store.On("GetBooking", ctx, "b1").Return(nil, domain.ErrNotFound).Once()
		_, err := newTestService(store, nil, nil).UpdateStatus(ctx, "b1", "co-1", models.StatusConfirmed)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestGetAndListBookings(t *testing.T) {
	ctx := context.Background()
	owned := &models.Booking{ID: "b1", UserID: "user-1", ServiceID: "svc-1", Date: monday, TimeSlot: "09:00", Status: models.StatusPending}

	t.Run("owner reads booking", func(t *testing.T) {
		store := new(mockStore)
		store.On("GetBooking", ctx, "b1").Return(owned, nil).Twice()
		svc := newTestService(store, nil, nil)

		got, err := svc.GetBooking(ctx, "b1", "user-1")
		require.NoError(t, err)
		assert.Equal(t, "b1", got.ID)

		_, err = svc.GetBooking(ctx, "b1", "user-2")
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("user listing is scoped and paged", func(t *testing.T) {
		store := new(mockStore)
		store.On("FindBookings", ctx, models.BookingFilter{UserID: "user-1", CompanyID: "", Page: 1, Limit: 10}).
			Return([]*models.Booking{owned}, 1, nil).Once()

		page, err := newTestService(store, nil, nil).ListUserBookings(ctx, "user-1", models.BookingFilter{CompanyID: "sneaky"})
		require.NoError(t, err)
		assert.Equal(t, 1, page.Total)
		assert.Equal(t, 1, page.Page)
		assert.Equal(t, 10, page.Limit)
		store.AssertExpectations(t)
	})

	t.Run("company listing validates statuses", func(t *testing.T) {
		_, err := newTestService(new(mockStore), nil, nil).ListCompanyBookings(ctx, "co-1",
			models.BookingFilter{Statuses: []models.BookingStatus{"rescheduled"}})
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	})
}
