// Package scheduling holds the pure booking rules: slot enumeration, the
// conflict guard and the status transition table. Nothing here touches
// storage.
package scheduling

import (
	"sort"
	"time"

	"slotbook/internal/models"
	"slotbook/internal/timeslot"
)

// MatchingWindows returns the active windows that apply to date's weekday.
func MatchingWindows(windows []*models.OperatingWindow, date time.Time) []*models.OperatingWindow {
	day := date.Weekday()
	var out []*models.OperatingWindow
	for _, w := range windows {
		if w != nil && w.AppliesTo(day) {
			out = append(out, w)
		}
	}
	return out
}

// TakenSlots collects the start times held by active bookings of the
// service on date.
func TakenSlots(serviceID string, date time.Time, bookings []*models.Booking) map[string]struct{} {
	day := date.Format(timeslot.Layout)
	taken := make(map[string]struct{})
	for _, b := range bookings {
		if b == nil || b.ServiceID != serviceID || !b.Status.Active() {
			continue
		}
		if b.Date.Format(timeslot.Layout) != day {
			continue
		}
		taken[b.TimeSlot] = struct{}{}
	}
	return taken
}

// ComputeAvailability enumerates the slot starts for service on date. Each
// matching window contributes starts stepped by the service duration while a
// full booking still fits before the window end. Starts are de-duplicated
// and returned in ascending order. A day with no matching window yields an
// empty result.
func ComputeAvailability(
	service *models.Service,
	date time.Time,
	windows []*models.OperatingWindow,
	bookings []*models.Booking,
) []models.Slot {
	slots := []models.Slot{}
	if service == nil || service.DurationMinutes <= 0 {
		return slots
	}

	starts := make(map[int]struct{})
	for _, w := range MatchingWindows(windows, date) {
		for cur := w.StartTime; cur+service.DurationMinutes <= w.EndTime; cur += service.DurationMinutes {
			starts[cur] = struct{}{}
		}
	}
	if len(starts) == 0 {
		return slots
	}

	ordered := make([]int, 0, len(starts))
	for m := range starts {
		if m >= 0 && m < timeslot.MinutesPerDay {
			ordered = append(ordered, m)
		}
	}
	sort.Ints(ordered)

	taken := TakenSlots(service.ID, date, bookings)
	for _, m := range ordered {
		label := timeslot.MustFormat(m)
		_, busy := taken[label]
		slots = append(slots, models.Slot{Time: label, IsAvailable: !busy})
	}
	return slots
}
