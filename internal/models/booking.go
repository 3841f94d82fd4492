package models

import (
	"encoding/json"
	"time"
)

type Booking struct {
	ID                 string        `json:"id"`
	UserID             string        `json:"user_id"`
	ServiceID          string        `json:"service_id"`
	CompanyID          string        `json:"company_id,omitempty"`
	ServiceName        string        `json:"service_name,omitempty"`
	Date               time.Time     `json:"-"`
	TimeSlot           string        `json:"time_slot"`
	Status             BookingStatus `json:"status"`
	TotalPriceCents    int64         `json:"total_price_cents"`
	Notes              string        `json:"notes,omitempty"`
	CancellationReason string        `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
	Version            int64         `json:"version"`
}

// DateString returns the booking date as YYYY-MM-DD.
func (b *Booking) DateString() string {
	return b.Date.Format("2006-01-02")
}

// MarshalJSON renders Date as a calendar date.
func (b Booking) MarshalJSON() ([]byte, error) {
	type plain Booking
	return json.Marshal(struct {
		plain
		Date string `json:"date"`
	}{plain: plain(b), Date: b.DateString()})
}

// Slot is a computed candidate start time for a service on a date.
type Slot struct {
	Time        string `json:"time"`
	IsAvailable bool   `json:"isAvailable"`
}

// Availability is the slot listing for a single date.
type Availability struct {
	Date  string `json:"date"`
	Slots []Slot `json:"slots"`
}

// BookingFilter narrows booking listings. Zero fields are ignored.
// Listings are newest first unless Chronological is set.
type BookingFilter struct {
	UserID        string
	CompanyID     string
	ServiceID     string
	Statuses      []BookingStatus
	From          time.Time
	To            time.Time
	Page          int
	Limit         int
	Chronological bool
}

// Normalize fills in paging defaults and clamps the page size.
func (f BookingFilter) Normalize() BookingFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	return f
}

// Offset is the row offset of the current page.
func (f BookingFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// BookingPage is one page of a booking listing.
type BookingPage struct {
	Bookings []*Booking `json:"bookings"`
	Total    int        `json:"total"`
	Page     int        `json:"page"`
	Limit    int        `json:"limit"`
}

// CompanyStats summarises a company's catalog, bookings and reviews.
type CompanyStats struct {
	CompanyID         string  `json:"company_id"`
	TotalServices     int     `json:"total_services"`
	TotalBookings     int     `json:"total_bookings"`
	CompletedBookings int     `json:"completed_bookings"`
	CancelledBookings int     `json:"cancelled_bookings"`
	TotalReviews      int     `json:"total_reviews"`
	AverageRating     float64 `json:"average_rating"`
}

// UnmarshalJSON accepts the shape produced by MarshalJSON.
func (b *Booking) UnmarshalJSON(data []byte) error {
	type plain Booking
	aux := struct {
		*plain
		Date string `json:"date"`
	}{plain: (*plain)(b)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Date == "" {
		b.Date = time.Time{}
		return nil
	}
	d, err := time.Parse("2006-01-02", aux.Date)
	if err != nil {
		return err
	}
	b.Date = d
	return nil
}
