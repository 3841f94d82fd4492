package scheduling

import (
	"slotbook/internal/domain"
	"slotbook/internal/models"
)

// transitions is the complete booking state machine.
var transitions = map[models.BookingStatus][]models.BookingStatus{
	models.StatusPending:   {models.StatusConfirmed, models.StatusCancelled},
	models.StatusConfirmed: {models.StatusCancelled, models.StatusCompleted},
	models.StatusCancelled: nil,
	models.StatusCompleted: nil,
}

// AllowedTransitions lists the statuses reachable from s.
func AllowedTransitions(s models.BookingStatus) []models.BookingStatus {
	next := transitions[s]
	out := make([]models.BookingStatus, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether from -> to is legal.
func CanTransition(from, to models.BookingStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ApplyTransition moves b to status `to` or rejects with
// INVALID_TRANSITION. Every status change goes through here.
func ApplyTransition(b *models.Booking, to models.BookingStatus) error {
	if !to.Valid() {
		return domain.Reject(domain.ReasonInvalidArgument, "unknown status %q", to)
	}
	if !CanTransition(b.Status, to) {
		return domain.Reject(domain.ReasonInvalidTransition, "cannot move booking from %s to %s", b.Status, to)
	}
	b.Status = to
	return nil
}

// CancelCheck reports why a booking in status s cannot be cancelled by its
// owner, or nil when it can.
func CancelCheck(s models.BookingStatus) error {
	switch s {
	case models.StatusCancelled:
		return domain.Reject(domain.ReasonAlreadyCancelled, "booking is already cancelled")
	case models.StatusCompleted:
		return domain.Reject(domain.ReasonCannotCancelCompleted, "completed bookings cannot be cancelled")
	}
	return nil
}

// Cancel applies an owner cancellation and records the reason.
func Cancel(b *models.Booking, reason string) error {
	if err := CancelCheck(b.Status); err != nil {
		return err
	}
	if err := ApplyTransition(b, models.StatusCancelled); err != nil {
		return err
	}
	b.CancellationReason = reason
	return nil
}
