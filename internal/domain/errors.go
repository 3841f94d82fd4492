package domain

import (
	"errors"
	"fmt"
)

// Reason is a stable machine-readable rejection code.
type Reason string

const (
	ReasonInvalidTimeFormat      Reason = "INVALID_TIME_FORMAT"
	ReasonInvalidTimeRange       Reason = "INVALID_TIME_RANGE"
	ReasonInvalidArgument        Reason = "INVALID_ARGUMENT"
	ReasonServiceInactive        Reason = "SERVICE_INACTIVE"
	ReasonPastDateTime           Reason = "PAST_DATE_TIME"
	ReasonDateTooFar             Reason = "DATE_TOO_FAR"
	ReasonOutsideOperatingHours  Reason = "OUTSIDE_OPERATING_HOURS"
	ReasonSlotAlreadyBooked      Reason = "SLOT_ALREADY_BOOKED"
	ReasonForbidden              Reason = "FORBIDDEN"
	ReasonNotFound               Reason = "NOT_FOUND"
	ReasonInvalidTransition      Reason = "INVALID_TRANSITION"
	ReasonAlreadyCancelled       Reason = "ALREADY_CANCELLED"
	ReasonCannotCancelCompleted  Reason = "CANNOT_CANCEL_COMPLETED"
	ReasonCompanyNotApproved     Reason = "COMPANY_NOT_APPROVED"
	ReasonConcurrentModification Reason = "CONCURRENT_MODIFICATION"
	ReasonBookingNotCompleted    Reason = "BOOKING_NOT_COMPLETED"
	ReasonAlreadyReviewed        Reason = "ALREADY_REVIEWED"
)

// RejectionError is an expected business outcome carrying a Reason.
// errors.Is matches any RejectionError with the same Reason.
type RejectionError struct {
	Reason  Reason
	Message string
}

func (e *RejectionError) Error() string {
	if e.Message == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func (e *RejectionError) Is(target error) bool {
	var t *RejectionError
	if errors.As(target, &t) {
		return t.Reason == e.Reason
	}
	return false
}

// Reject builds a RejectionError with a formatted message.
func Reject(reason Reason, format string, args ...interface{}) error {
	return &RejectionError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrInvalidTimeFormat      = &RejectionError{Reason: ReasonInvalidTimeFormat}
	ErrInvalidTimeRange       = &RejectionError{Reason: ReasonInvalidTimeRange}
	ErrInvalidArgument        = &RejectionError{Reason: ReasonInvalidArgument}
	ErrServiceInactive        = &RejectionError{Reason: ReasonServiceInactive}
	ErrPastDateTime           = &RejectionError{Reason: ReasonPastDateTime}
	ErrDateTooFar             = &RejectionError{Reason: ReasonDateTooFar}
	ErrOutsideOperatingHours  = &RejectionError{Reason: ReasonOutsideOperatingHours}
	ErrSlotAlreadyBooked      = &RejectionError{Reason: ReasonSlotAlreadyBooked}
	ErrForbidden              = &RejectionError{Reason: ReasonForbidden}
	ErrNotFound               = &RejectionError{Reason: ReasonNotFound}
	ErrInvalidTransition      = &RejectionError{Reason: ReasonInvalidTransition}
	ErrAlreadyCancelled       = &RejectionError{Reason: ReasonAlreadyCancelled}
	ErrCannotCancelCompleted  = &RejectionError{Reason: ReasonCannotCancelCompleted}
	ErrCompanyNotApproved     = &RejectionError{Reason: ReasonCompanyNotApproved}
	ErrConcurrentModification = &RejectionError{Reason: ReasonConcurrentModification}
	ErrBookingNotCompleted    = &RejectionError{Reason: ReasonBookingNotCompleted}
	ErrAlreadyReviewed        = &RejectionError{Reason: ReasonAlreadyReviewed}
)

// ErrUniqueViolation is returned by stores when an insert breaks a
// uniqueness constraint. It is storage-level and never reaches callers of
// the booking and review services unmapped.
var ErrUniqueViolation = errors.New("unique constraint violation")

// ReasonOf returns the rejection reason carried by err, if any.
func ReasonOf(err error) (Reason, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Reason, true
	}
	return "", false
}

// IsRejection reports whether err is an expected business outcome.
func IsRejection(err error) bool {
	_, ok := ReasonOf(err)
	return ok
}
