package scheduling

import (
	"time"

	"slotbook/internal/domain"
	"slotbook/internal/models"
	"slotbook/internal/timeslot"
)

// BookingCheck is everything the conflict guard needs to judge a request.
type BookingCheck struct {
	Service  *models.Service
	Date     time.Time
	TimeSlot string
	Windows  []*models.OperatingWindow
	Bookings []*models.Booking
	Now      time.Time
	// MaxBookingDays rejects dates further ahead than now plus this many
	// days. Zero disables the check.
	MaxBookingDays int
}

// ValidateNewBooking runs the conflict guard. Checks are ordered: time
// format, service active, not in the past, booking horizon, operating
// hours, slot free. The first failing check wins.
func ValidateNewBooking(c BookingCheck) error {
	minute, err := timeslot.Parse(c.TimeSlot)
	if err != nil {
		return domain.Reject(domain.ReasonInvalidTimeFormat, "time slot %q must be HH:MM", c.TimeSlot)
	}
	if c.Service == nil {
		return domain.Reject(domain.ReasonNotFound, "service not found")
	}
	if !c.Service.Active {
		return domain.Reject(domain.ReasonServiceInactive, "service %s is not active", c.Service.ID)
	}

	start := timeslot.At(c.Date, minute)
	if start.Before(c.Now) {
		return domain.Reject(domain.ReasonPastDateTime, "%s %s is in the past", c.Date.Format(timeslot.Layout), c.TimeSlot)
	}
	if c.MaxBookingDays > 0 {
		limit := timeslot.Truncate(c.Now.In(c.Date.Location())).AddDate(0, 0, c.MaxBookingDays)
		if timeslot.Truncate(c.Date).After(limit) {
			return domain.Reject(domain.ReasonDateTooFar, "bookings are accepted at most %d days ahead", c.MaxBookingDays)
		}
	}

	if !WithinOperatingHours(c.Windows, c.Date, minute) {
		return domain.Reject(domain.ReasonOutsideOperatingHours, "%s is outside operating hours", c.TimeSlot)
	}

	if _, busy := TakenSlots(c.Service.ID, c.Date, c.Bookings)[c.TimeSlot]; busy {
		return domain.Reject(domain.ReasonSlotAlreadyBooked, "%s on %s is already booked", c.TimeSlot, c.Date.Format(timeslot.Layout))
	}
	return nil
}

// WithinOperatingHours reports whether minute lies in [start, end) of any
// active window matching date.
func WithinOperatingHours(windows []*models.OperatingWindow, date time.Time, minute int) bool {
	for _, w := range MatchingWindows(windows, date) {
		if w.Covers(minute) {
			return true
		}
	}
	return false
}
