package domain

import (
	"context"
	"time"

	"slotbook/internal/models"
)

// BookingStore is the persistence contract the booking core depends on.
// InsertBooking returns ErrUniqueViolation when an active booking already
// holds the same (service, date, time slot). Lookups return ErrNotFound.
type BookingStore interface {
	FindBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, int, error)
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	InsertBooking(ctx context.Context, booking *models.Booking) error
	// UpdateBooking persists status, cancellation reason and timestamps when
	// the stored version equals booking.Version, then bumps the version.
	// A version mismatch yields ErrConcurrentModification.
	UpdateBooking(ctx context.Context, booking *models.Booking) error
	FindOperatingWindows(ctx context.Context, companyID string) ([]*models.OperatingWindow, error)
	FindService(ctx context.Context, id string) (*models.Service, error)
}

// CatalogStore manages companies, services and operating windows.
type CatalogStore interface {
	CreateCompany(ctx context.Context, company *models.Company) error
	GetCompany(ctx context.Context, id string) (*models.Company, error)
	UpdateCompanyStatus(ctx context.Context, id string, status models.CompanyStatus) error
	CreateService(ctx context.Context, service *models.Service) error
	FindService(ctx context.Context, id string) (*models.Service, error)
	ListServices(ctx context.Context, companyID string) ([]*models.Service, error)
	SetServiceActive(ctx context.Context, id string, active bool) error
	CreateOperatingWindow(ctx context.Context, window *models.OperatingWindow) error
	GetOperatingWindow(ctx context.Context, id string) (*models.OperatingWindow, error)
	UpdateOperatingWindow(ctx context.Context, window *models.OperatingWindow) error
	DeleteOperatingWindow(ctx context.Context, id string) error
	FindOperatingWindows(ctx context.Context, companyID string) ([]*models.OperatingWindow, error)
	CompanyStats(ctx context.Context, companyID string) (*models.CompanyStats, error)
	SearchCompanies(ctx context.Context, search models.CompanySearch) ([]*models.Company, int, error)
	SearchServices(ctx context.Context, search models.ServiceSearch) ([]*models.Service, int, error)
}

// ReviewStore persists reviews and the rating columns derived from them.
// InsertReview returns ErrUniqueViolation when the booking already has a
// review.
type ReviewStore interface {
	InsertReview(ctx context.Context, review *models.Review) error
	GetReview(ctx context.Context, id string) (*models.Review, error)
	UpdateReview(ctx context.Context, review *models.Review) error
	DeleteReview(ctx context.Context, id string) error
	FindReviews(ctx context.Context, filter models.ReviewFilter) ([]*models.Review, int, error)
	// RatingCounts groups the reviews matching filter's ServiceID,
	// CompanyID and UserID by rating.
	RatingCounts(ctx context.Context, filter models.ReviewFilter) (map[int]int, error)
	SetServiceRating(ctx context.Context, serviceID string, rating float64) error
	SetCompanyRating(ctx context.Context, companyID string, rating float64) error
}

// CatalogRepository is what catalog browsing reads, including the latest
// reviews on a service page.
type CatalogRepository interface {
	CatalogStore
	FindReviews(ctx context.Context, filter models.ReviewFilter) ([]*models.Review, int, error)
}

// ReviewRepository is what the review service needs to check ownership
// and booking state.
type ReviewRepository interface {
	ReviewStore
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	FindService(ctx context.Context, id string) (*models.Service, error)
	GetCompany(ctx context.Context, id string) (*models.Company, error)
}

// Repository is implemented by the sqlite and postgres stores.
type Repository interface {
	BookingStore
	CatalogStore
	ReviewStore
	Ping(ctx context.Context) error
	Close() error
}

// SyncQueue persists spreadsheet mirror tasks.
type SyncQueue interface {
	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
	GetPendingSyncTasks(ctx context.Context, limit int) ([]*models.SyncTask, error)
	UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
}

// RateLimiter answers whether another request for key fits in the window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// SheetsWriter mirrors bookings into a spreadsheet.
type SheetsWriter interface {
	UpsertBooking(ctx context.Context, booking *models.Booking) error
	UpdateBookingStatus(ctx context.Context, bookingID string, status models.BookingStatus) error
}

// Spreadsheet mirror task types.
const (
	SyncTaskUpsert       = "upsert"
	SyncTaskUpdateStatus = "update_status"
)

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, booking *models.Booking) error
}
