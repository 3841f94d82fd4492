package models

import (
	"math"
	"time"
)

// Review bounds.
const (
	MinRating        = 1
	MaxRating        = 5
	MinCommentLength = 10
	MaxCommentLength = 1000

	DefaultReviewPageSize = 20
	// RecentReviewCount is how many reviews a service detail carries.
	RecentReviewCount = 10
)

// Review is a customer's rating of a completed booking. ServiceID and
// CompanyID are copied from the booking when the review is written.
type Review struct {
	ID        string    `json:"id"`
	BookingID string    `json:"booking_id"`
	UserID    string    `json:"user_id"`
	ServiceID string    `json:"service_id"`
	CompanyID string    `json:"company_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RatingStats summarises the reviews of a service or company.
type RatingStats struct {
	AverageRating float64     `json:"average_rating"`
	TotalReviews  int         `json:"total_reviews"`
	Distribution  map[int]int `json:"distribution"`
}

// NewRatingStats builds stats from per-rating counts. The average is
// rounded to two decimals and every rating from 1 to 5 appears in the
// distribution.
func NewRatingStats(counts map[int]int) RatingStats {
	stats := RatingStats{Distribution: make(map[int]int, MaxRating)}
	sum := 0
	for r := MinRating; r <= MaxRating; r++ {
		n := counts[r]
		stats.Distribution[r] = n
		stats.TotalReviews += n
		sum += r * n
	}
	if stats.TotalReviews > 0 {
		stats.AverageRating = math.Round(float64(sum)/float64(stats.TotalReviews)*100) / 100
	}
	return stats
}

type ReviewSort string

const (
	ReviewSortCreatedAt ReviewSort = "created_at"
	ReviewSortRating    ReviewSort = "rating"
)

// ReviewFilter narrows review listings. Zero fields are ignored.
type ReviewFilter struct {
	ServiceID string
	CompanyID string
	UserID    string
	MinRating int
	SortBy    ReviewSort
	Ascending bool
	Paging
}

type ReviewPage struct {
	Reviews []*Review `json:"reviews"`
	Total   int       `json:"total"`
	Page    int       `json:"page"`
	Limit   int       `json:"limit"`
}
