package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"slotbook/internal/domain"
	"slotbook/internal/events"
	"slotbook/internal/metrics"
	"slotbook/internal/models"
	"slotbook/internal/scheduling"
	"slotbook/internal/timeslot"
)

// BookingService is the booking lifecycle manager. All storage goes through
// the injected store. One active booking per slot is enforced by the
// store's uniqueness constraint; the pre-check only gives a clear error.
type BookingService struct {
	store          domain.BookingStore
	eventBus       domain.EventPublisher
	sheetsWorker   domain.SyncWorker
	maxBookingDays int
	location       *time.Location
	now            func() time.Time
	logger         *zerolog.Logger
}

type BookingOption func(*BookingService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) BookingOption {
	return func(s *BookingService) { s.now = now }
}

// WithLocation sets the zone calendar dates are interpreted in.
func WithLocation(loc *time.Location) BookingOption {
	return func(s *BookingService) {
		if loc != nil {
			s.location = loc
		}
	}
}

func NewBookingService(
	store domain.BookingStore,
	eventBus domain.EventPublisher,
	sheetsWorker domain.SyncWorker,
	maxBookingDays int,
	logger *zerolog.Logger,
	opts ...BookingOption,
) *BookingService {
	if maxBookingDays <= 0 {
		maxBookingDays = models.DefaultMaxBookingDays
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	s := &BookingService{
		store:          store,
		eventBus:       eventBus,
		sheetsWorker:   sheetsWorker,
		maxBookingDays: maxBookingDays,
		location:       time.UTC,
		now:            time.Now,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateBookingRequest carries a client's booking request. Date is
// YYYY-MM-DD and TimeSlot is HH:MM.
type CreateBookingRequest struct {
	UserID    string
	ServiceID string
	Date      string
	TimeSlot  string
	Notes     string
}

func (s *BookingService) parseDate(date string) (time.Time, error) {
	d, err := timeslot.ParseDate(date, s.location)
	if err != nil {
		return time.Time{}, domain.Reject(domain.ReasonInvalidArgument, "date must be YYYY-MM-DD")
	}
	return d, nil
}

// Availability lists every slot of the service on date and whether it is
// free. Past dates may be queried.
func (s *BookingService) Availability(ctx context.Context, serviceID, date string) (*models.Availability, error) {
	day, err := s.parseDate(date)
	if err != nil {
		return nil, err
	}

	service, err := s.store.FindService(ctx, serviceID)
	if err != nil {
		return nil, wrapStore("find service", err)
	}

	windows, err := s.store.FindOperatingWindows(ctx, service.CompanyID)
	if err != nil {
		return nil, wrapStore("find operating windows", err)
	}

	bookings, err := s.activeBookings(ctx, service.ID, day)
	if err != nil {
		return nil, err
	}

	slots := scheduling.ComputeAvailability(service, day, windows, bookings)
	metrics.ObserveSlots(len(slots))
	return &models.Availability{Date: day.Format(timeslot.Layout), Slots: slots}, nil
}

func (s *BookingService) activeBookings(ctx context.Context, serviceID string, day time.Time) ([]*models.Booking, error) {
	bookings, _, err := s.store.FindBookings(ctx, models.BookingFilter{
		ServiceID: serviceID,
		Statuses:  []models.BookingStatus{models.StatusPending, models.StatusConfirmed},
		From:      day,
		To:        day,
	})
	if err != nil {
		return nil, wrapStore("find bookings", err)
	}
	return bookings, nil
}

// CreateBooking validates the request against the conflict guard and stores
// a PENDING booking priced at the service's current price.
func (s *BookingService) CreateBooking(ctx context.Context, req CreateBookingRequest) (*models.Booking, error) {
	booking, err := s.createBooking(ctx, req)
	if err != nil {
		s.recordRejection("create", err)
		return nil, err
	}

	metrics.IncBookingCreated()
	s.logger.Info().
		Str("booking_id", booking.ID).
		Str("service_id", booking.ServiceID).
		Str("date", booking.DateString()).
		Str("time_slot", booking.TimeSlot).
		Msg("Booking created")

	s.publishEvent(events.EventBookingCreated, booking, "", req.UserID)
	s.enqueueSync(ctx, booking, domain.SyncTaskUpsert)
	return booking, nil
}

func (s *BookingService) createBooking(ctx context.Context, req CreateBookingRequest) (*models.Booking, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, domain.Reject(domain.ReasonInvalidArgument, "user id is required")
	}
	if _, err := timeslot.Parse(req.TimeSlot); err != nil {
		return nil, domain.Reject(domain.ReasonInvalidTimeFormat, "time slot %q must be HH:MM", req.TimeSlot)
	}
	day, err := s.parseDate(req.Date)
	if err != nil {
		return nil, err
	}

	service, err := s.store.FindService(ctx, req.ServiceID)
	if err != nil {
		return nil, wrapStore("find service", err)
	}
	windows, err := s.store.FindOperatingWindows(ctx, service.CompanyID)
	if err != nil {
		return nil, wrapStore("find operating windows", err)
	}
	existing, err := s.activeBookings(ctx, service.ID, day)
	if err != nil {
		return nil, err
	}

	now := s.now().In(s.location)
	err = scheduling.ValidateNewBooking(scheduling.BookingCheck{
		Service:        service,
		Date:           day,
		TimeSlot:       req.TimeSlot,
		Windows:        windows,
		Bookings:       existing,
		Now:            now,
		MaxBookingDays: s.maxBookingDays,
	})
	if err != nil {
		return nil, err
	}

	booking := &models.Booking{
		ID:              uuid.NewString(),
		UserID:          req.UserID,
		ServiceID:       service.ID,
		CompanyID:       service.CompanyID,
		ServiceName:     service.Name,
		Date:            day,
		TimeSlot:        req.TimeSlot,
		Status:          models.StatusPending,
		TotalPriceCents: service.PriceCents,
		Notes:           req.Notes,
		CreatedAt:       now.UTC(),
	}
	if err := s.store.InsertBooking(ctx, booking); err != nil {
		if errors.Is(err, domain.ErrUniqueViolation) {
			return nil, domain.Reject(domain.ReasonSlotAlreadyBooked, "%s on %s is already booked", req.TimeSlot, req.Date)
		}
		s.logger.Error().Err(err).Str("service_id", service.ID).Msg("Failed to insert booking")
		return nil, fmt.Errorf("insert booking: %w", err)
	}
	return booking, nil
}

// CancelBooking lets the booking's owner cancel it, keeping the record and
// the reason.
func (s *BookingService) CancelBooking(ctx context.Context, bookingID, userID, reason string) (*models.Booking, error) {
	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		err = wrapStore("get booking", err)
		s.recordRejection("cancel", err)
		return nil, err
	}
	if booking.UserID != userID {
		err := domain.Reject(domain.ReasonForbidden, "booking %s belongs to another user", bookingID)
		s.recordRejection("cancel", err)
		return nil, err
	}

	prev := booking.Status
	if err := scheduling.Cancel(booking, reason); err != nil {
		s.recordRejection("cancel", err)
		return nil, err
	}
	if err := s.save(ctx, booking); err != nil {
		s.recordRejection("cancel", err)
		return nil, err
	}

	metrics.IncTransition(string(prev), string(booking.Status))
	s.publishEvent(events.EventBookingCancelled, booking, prev, userID)
	s.enqueueSync(ctx, booking, domain.SyncTaskUpdateStatus)
	return booking, nil
}

// UpdateStatus applies a company-side transition to a booking of one of the
// company's services.
func (s *BookingService) UpdateStatus(ctx context.Context, bookingID, companyID string, status models.BookingStatus) (*models.Booking, error) {
	booking, err := s.updateStatus(ctx, bookingID, companyID, status)
	if err != nil {
		s.recordRejection("update_status", err)
		return nil, err
	}
	return booking, nil
}

func (s *BookingService) updateStatus(ctx context.Context, bookingID, companyID string, status models.BookingStatus) (*models.Booking, error) {
	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, wrapStore("get booking", err)
	}
	service, err := s.store.FindService(ctx, booking.ServiceID)
	if err != nil {
		return nil, wrapStore("find service", err)
	}
	if service.CompanyID != companyID {
		return nil, domain.Reject(domain.ReasonForbidden, "booking %s belongs to another company", bookingID)
	}

	prev := booking.Status
	if err := scheduling.ApplyTransition(booking, status); err != nil {
		return nil, err
	}
	if err := s.save(ctx, booking); err != nil {
		return nil, err
	}

	metrics.IncTransition(string(prev), string(booking.Status))
	eventType := events.EventBookingStatusChanged
	if booking.Status == models.StatusCancelled {
		eventType = events.EventBookingCancelled
	}
	s.publishEvent(eventType, booking, prev, companyID)
	s.enqueueSync(ctx, booking, domain.SyncTaskUpdateStatus)
	return booking, nil
}

func (s *BookingService) save(ctx context.Context, booking *models.Booking) error {
	booking.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateBooking(ctx, booking); err != nil {
		if domain.IsRejection(err) {
			return err
		}
		s.logger.Error().Err(err).Str("booking_id", booking.ID).Msg("Failed to update booking")
		return fmt.Errorf("update booking: %w", err)
	}
	return nil
}

// GetBooking returns a booking to its owner.
func (s *BookingService) GetBooking(ctx context.Context, bookingID, userID string) (*models.Booking, error) {
	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, wrapStore("get booking", err)
	}
	if booking.UserID != userID {
		return nil, domain.Reject(domain.ReasonForbidden, "booking %s belongs to another user", bookingID)
	}
	return booking, nil
}

// ListUserBookings pages through a user's bookings.
func (s *BookingService) ListUserBookings(ctx context.Context, userID string, filter models.BookingFilter) (*models.BookingPage, error) {
	if userID == "" {
		return nil, domain.Reject(domain.ReasonInvalidArgument, "user id is required")
	}
	filter.UserID = userID
	filter.CompanyID = ""
	return s.list(ctx, filter)
}

// ListCompanyBookings pages through bookings of a company's services.
func (s *BookingService) ListCompanyBookings(ctx context.Context, companyID string, filter models.BookingFilter) (*models.BookingPage, error) {
	if companyID == "" {
		return nil, domain.Reject(domain.ReasonInvalidArgument, "company id is required")
	}
	filter.CompanyID = companyID
	filter.UserID = ""
	return s.list(ctx, filter)
}

func (s *BookingService) list(ctx context.Context, filter models.BookingFilter) (*models.BookingPage, error) {
	filter = filter.Normalize()
	for _, st := range filter.Statuses {
		if !st.Valid() {
			return nil, domain.Reject(domain.ReasonInvalidArgument, "unknown status %q", st)
		}
	}
	bookings, total, err := s.store.FindBookings(ctx, filter)
	if err != nil {
		return nil, wrapStore("find bookings", err)
	}
	return &models.BookingPage{Bookings: bookings, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}

// AllCompanyBookings returns every booking of a company in [from, to],
// oldest first.
func (s *BookingService) AllCompanyBookings(ctx context.Context, companyID string, from, to time.Time) ([]*models.Booking, error) {
	bookings, _, err := s.store.FindBookings(ctx, models.BookingFilter{
		CompanyID: companyID, From: from, To: to, Chronological: true,
	})
	if err != nil {
		return nil, wrapStore("find bookings", err)
	}
	return bookings, nil
}

func (s *BookingService) recordRejection(operation string, err error) {
	if reason, ok := domain.ReasonOf(err); ok {
		metrics.IncRejection(operation, string(reason))
		s.logger.Debug().Str("operation", operation).Str("reason", string(reason)).Msg("Booking request rejected")
	}
}

func (s *BookingService) publishEvent(eventType string, booking *models.Booking, prev models.BookingStatus, changedBy string) {
	if s.eventBus == nil {
		return
	}
	payload := events.NewBookingPayload(booking, prev, changedBy)
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("booking_id", booking.ID).Msg("publish event error")
	}
}

func (s *BookingService) enqueueSync(ctx context.Context, booking *models.Booking, taskType string) {
	if s.sheetsWorker == nil {
		return
	}
	if err := s.sheetsWorker.EnqueueTask(ctx, taskType, booking); err != nil {
		s.logger.Error().Err(err).Str("booking_id", booking.ID).Str("task", taskType).Msg("sheets enqueue error")
	}
}

// wrapStore passes rejections such as NOT_FOUND through unchanged and wraps
// infrastructure failures.
func wrapStore(op string, err error) error {
	if domain.IsRejection(err) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
