package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type Company struct {
	ID        string        `json:"id" yaml:"id"`
	OwnerID   string        `json:"owner_id" yaml:"owner_id"`
	Name      string        `json:"name" yaml:"name"`
	Status    CompanyStatus `json:"status" yaml:"status"`
	Rating    float64       `json:"rating" yaml:"-"`
	CreatedAt time.Time     `json:"created_at" yaml:"-"`
	UpdatedAt time.Time     `json:"updated_at" yaml:"-"`
}

type Service struct {
	ID              string    `json:"id"`
	CompanyID       string    `json:"company_id"`
	Name            string    `json:"name"`
	DurationMinutes int       `json:"duration_minutes"`
	PriceCents      int64     `json:"price_cents"`
	Active          bool      `json:"active"`
	Rating          float64   `json:"rating"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// OperatingWindow is a recurring weekly interval during which a company
// accepts bookings. StartTime and EndTime are minute offsets from midnight
// with StartTime < EndTime.
type OperatingWindow struct {
	ID              string    `json:"id"`
	CompanyID       string    `json:"company_id"`
	DayOfWeek       DayOfWeek `json:"day_of_week"`
	StartTime       int       `json:"-"`
	EndTime         int       `json:"-"`
	SlotGranularity int       `json:"slot_granularity"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Covers reports whether minute falls in [StartTime, EndTime).
func (w *OperatingWindow) Covers(minute int) bool {
	return minute >= w.StartTime && minute < w.EndTime
}

// AppliesTo reports whether the window is active on the given weekday.
func (w *OperatingWindow) AppliesTo(day time.Weekday) bool {
	return w.Active && w.DayOfWeek.Matches(day)
}

// Bounds renders the window as HH:MM strings. An end at midnight is "24:00".
func (w *OperatingWindow) Bounds() (start, end string) {
	return clock(w.StartTime), clock(w.EndTime)
}

func clock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func (w OperatingWindow) MarshalJSON() ([]byte, error) {
	type plain OperatingWindow
	start, end := w.Bounds()
	return json.Marshal(struct {
		plain
		StartTime string `json:"start_time"`
		EndTime   string `json:"end_time"`
	}{plain: plain(w), StartTime: start, EndTime: end})
}

// Paging is the page request of catalog and review listings.
type Paging struct {
	Page  int
	Limit int
}

// Normalize fills in the page, uses defaultLimit for an unset size and
// clamps the size to MaxPageSize.
func (p Paging) Normalize(defaultLimit int) Paging {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = defaultLimit
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	return p
}

func (p Paging) Offset() int {
	return (p.Page - 1) * p.Limit
}

type CompanySort string

const (
	CompanySortRating    CompanySort = "rating"
	CompanySortName      CompanySort = "name"
	CompanySortCreatedAt CompanySort = "created_at"
)

// CompanySearch narrows company browsing. Query matches the name,
// case-insensitively.
type CompanySearch struct {
	Query     string
	Status    CompanyStatus
	MinRating float64
	SortBy    CompanySort
	Ascending bool
	Paging
}

type CompanyPage struct {
	Companies []*Company `json:"companies"`
	Total     int        `json:"total"`
	Page      int        `json:"page"`
	Limit     int        `json:"limit"`
}

type ServiceSort string

const (
	ServiceSortPrice     ServiceSort = "price"
	ServiceSortRating    ServiceSort = "rating"
	ServiceSortName      ServiceSort = "name"
	ServiceSortCreatedAt ServiceSort = "created_at"
)

// ServiceSearch narrows service browsing. Query matches the service or
// company name. A nil Active lists services of either state.
type ServiceSearch struct {
	Query         string
	CompanyID     string
	MinPriceCents *int64
	MaxPriceCents *int64
	Active        *bool
	SortBy        ServiceSort
	Ascending     bool
	Paging
}

type ServicePage struct {
	Services []*Service `json:"services"`
	Total    int        `json:"total"`
	Page     int        `json:"page"`
	Limit    int        `json:"limit"`
}

// CompanyDetail is the public company page.
type CompanyDetail struct {
	*Company
	Services []*Service         `json:"services"`
	Windows  []*OperatingWindow `json:"windows"`
	Stats    *CompanyStats      `json:"stats"`
}

// ServiceDetail is the public service page with its latest reviews.
type ServiceDetail struct {
	*Service
	Company       *Company  `json:"company"`
	RecentReviews []*Review `json:"recent_reviews"`
}
