package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"slotbook/internal/domain"
	"slotbook/internal/models"
)

// ReviewService lets customers rate their completed bookings and keeps the
// service and company rating columns in step with the reviews.
type ReviewService struct {
	store  domain.ReviewRepository
	logger *zerolog.Logger
}

func NewReviewService(store domain.ReviewRepository, logger *zerolog.Logger) *ReviewService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &ReviewService{store: store, logger: logger}
}

type CreateReviewRequest struct {
	UserID    string
	BookingID string
	Rating    int
	// Comment is optional. An empty string means no comment.
	Comment string
}

// UpdateReviewRequest changes only the fields that are set.
type UpdateReviewRequest struct {
	Rating  *int
	Comment *string
}

func validateRating(rating int) error {
	if rating < models.MinRating || rating > models.MaxRating {
		return domain.Reject(domain.ReasonInvalidArgument, "rating must be between %d and %d", models.MinRating, models.MaxRating)
	}
	return nil
}

func normalizeComment(comment string) (string, error) {
	comment = strings.TrimSpace(comment)
	n := utf8.RuneCountInString(comment)
	if n < models.MinCommentLength || n > models.MaxCommentLength {
		return "", domain.Reject(domain.ReasonInvalidArgument, "comment must be %d to %d characters",
			models.MinCommentLength, models.MaxCommentLength)
	}
	return comment, nil
}

// CreateReview rates a completed booking owned by the caller. Each booking
// takes at most one review.
func (s *ReviewService) CreateReview(ctx context.Context, req CreateReviewRequest) (*models.Review, error) {
	if err := validateRating(req.Rating); err != nil {
		return nil, err
	}
	comment := ""
	if req.Comment != "" {
		var err error
		if comment, err = normalizeComment(req.Comment); err != nil {
			return nil, err
		}
	}

	booking, err := s.store.GetBooking(ctx, req.BookingID)
	if err != nil {
		return nil, wrapStore("get booking", err)
	}
	if booking.UserID != req.UserID {
		return nil, domain.Reject(domain.ReasonForbidden, "booking %s belongs to another user", req.BookingID)
	}
	if booking.Status != models.StatusCompleted {
		return nil, domain.Reject(domain.ReasonBookingNotCompleted, "booking %s is %s", req.BookingID, booking.Status)
	}
	companyID := booking.CompanyID
	if companyID == "" {
		svc, err := s.store.FindService(ctx, booking.ServiceID)
		if err != nil {
			return nil, wrapStore("find service", err)
		}
		companyID = svc.CompanyID
	}

	review := &models.Review{
		ID:        uuid.NewString(),
		BookingID: booking.ID,
		UserID:    req.UserID,
		ServiceID: booking.ServiceID,
		CompanyID: companyID,
		Rating:    req.Rating,
		Comment:   comment,
	}
	if err := s.store.InsertReview(ctx, review); err != nil {
		if errors.Is(err, domain.ErrUniqueViolation) {
			return nil, domain.Reject(domain.ReasonAlreadyReviewed, "booking %s already has a review", booking.ID)
		}
		return nil, wrapStore("insert review", err)
	}
	if err := s.refreshRatings(ctx, review); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("review_id", review.ID).
		Str("booking_id", review.BookingID).
		Int("rating", review.Rating).
		Msg("Review created")
	return review, nil
}

func (s *ReviewService) GetReview(ctx context.Context, reviewID string) (*models.Review, error) {
	review, err := s.store.GetReview(ctx, reviewID)
	if err != nil {
		return nil, wrapStore("get review", err)
	}
	return review, nil
}

// UpdateReview edits the caller's own review. Ratings are recomputed only
// when the rating changes.
func (s *ReviewService) UpdateReview(ctx context.Context, userID, reviewID string, req UpdateReviewRequest) (*models.Review, error) {
	if req.Rating != nil {
		if err := validateRating(*req.Rating); err != nil {
			return nil, err
		}
	}
	var comment string
	if req.Comment != nil {
		var err error
		if comment, err = normalizeComment(*req.Comment); err != nil {
			return nil, err
		}
	}

	review, err := s.ownedReview(ctx, userID, reviewID)
	if err != nil {
		return nil, err
	}
	ratingChanged := req.Rating != nil && *req.Rating != review.Rating
	if req.Rating != nil {
		review.Rating = *req.Rating
	}
	if req.Comment != nil {
		review.Comment = comment
	}
	if err := s.store.UpdateReview(ctx, review); err != nil {
		return nil, wrapStore("update review", err)
	}
	if ratingChanged {
		if err := s.refreshRatings(ctx, review); err != nil {
			return nil, err
		}
	}
	return review, nil
}

// DeleteReview removes the caller's own review.
func (s *ReviewService) DeleteReview(ctx context.Context, userID, reviewID string) error {
	review, err := s.ownedReview(ctx, userID, reviewID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteReview(ctx, reviewID); err != nil {
		return wrapStore("delete review", err)
	}
	if err := s.refreshRatings(ctx, review); err != nil {
		return err
	}
	s.logger.Info().Str("review_id", reviewID).Msg("Review deleted")
	return nil
}

func (s *ReviewService) ownedReview(ctx context.Context, userID, reviewID string) (*models.Review, error) {
	review, err := s.store.GetReview(ctx, reviewID)
	if err != nil {
		return nil, wrapStore("get review", err)
	}
	if review.UserID != userID {
		return nil, domain.Reject(domain.ReasonForbidden, "review %s belongs to another user", reviewID)
	}
	return review, nil
}

// ListReviews returns one page of reviews, newest first by default.
func (s *ReviewService) ListReviews(ctx context.Context, filter models.ReviewFilter) (*models.ReviewPage, error) {
	if filter.MinRating != 0 {
		if err := validateRating(filter.MinRating); err != nil {
			return nil, err
		}
	}
	switch filter.SortBy {
	case "":
		filter.SortBy = models.ReviewSortCreatedAt
	case models.ReviewSortCreatedAt, models.ReviewSortRating:
	default:
		return nil, domain.Reject(domain.ReasonInvalidArgument, "cannot sort reviews by %q", filter.SortBy)
	}
	filter.Paging = filter.Paging.Normalize(models.DefaultReviewPageSize)

	reviews, total, err := s.store.FindReviews(ctx, filter)
	if err != nil {
		return nil, wrapStore("find reviews", err)
	}
	return &models.ReviewPage{Reviews: reviews, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}

func (s *ReviewService) ServiceRatingStats(ctx context.Context, serviceID string) (*models.RatingStats, error) {
	if _, err := s.store.FindService(ctx, serviceID); err != nil {
		return nil, wrapStore("find service", err)
	}
	return s.stats(ctx, models.ReviewFilter{ServiceID: serviceID})
}

func (s *ReviewService) CompanyRatingStats(ctx context.Context, companyID string) (*models.RatingStats, error) {
	if _, err := s.store.GetCompany(ctx, companyID); err != nil {
		return nil, wrapStore("get company", err)
	}
	return s.stats(ctx, models.ReviewFilter{CompanyID: companyID})
}

func (s *ReviewService) stats(ctx context.Context, scope models.ReviewFilter) (*models.RatingStats, error) {
	counts, err := s.store.RatingCounts(ctx, scope)
	if err != nil {
		return nil, wrapStore("count ratings", err)
	}
	stats := models.NewRatingStats(counts)
	return &stats, nil
}

// refreshRatings recomputes the rating columns of the review's service and
// company.
func (s *ReviewService) refreshRatings(ctx context.Context, review *models.Review) error {
	stats, err := s.stats(ctx, models.ReviewFilter{ServiceID: review.ServiceID})
	if err != nil {
		return err
	}
	if err := s.store.SetServiceRating(ctx, review.ServiceID, stats.AverageRating); err != nil {
		return wrapStore("set service rating", err)
	}

	if stats, err = s.stats(ctx, models.ReviewFilter{CompanyID: review.CompanyID}); err != nil {
		return err
	}
	if err := s.store.SetCompanyRating(ctx, review.CompanyID, stats.AverageRating); err != nil {
		return wrapStore("set company rating", err)
	}
	return nil
}
