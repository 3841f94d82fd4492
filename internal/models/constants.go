package models

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusConfirmed BookingStatus = "confirmed"
	StatusCancelled BookingStatus = "cancelled"
	StatusCompleted BookingStatus = "completed"
)

// Active reports whether a booking in this status occupies its slot.
func (s BookingStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Terminal reports whether no further transition may leave this status.
func (s BookingStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// Valid reports whether s is one of the known statuses.
func (s BookingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// CompanyStatus is the moderation state of a company.
type CompanyStatus string

const (
	CompanyPending   CompanyStatus = "pending"
	CompanyApproved  CompanyStatus = "approved"
	CompanyRejected  CompanyStatus = "rejected"
	CompanySuspended CompanyStatus = "suspended"
)

func (s CompanyStatus) Valid() bool {
	switch s {
	case CompanyPending, CompanyApproved, CompanyRejected, CompanySuspended:
		return true
	}
	return false
}

const (
	// DefaultMaxBookingDays limits how far ahead a booking may be placed.
	DefaultMaxBookingDays = 365

	// DefaultPageSize and MaxPageSize bound booking listings.
	DefaultPageSize = 10
	MaxPageSize     = 100

	// WorkerQueueSize is the capacity of the in-memory sync queue.
	WorkerQueueSize = 1000
)
