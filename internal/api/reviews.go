package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"slotbook/internal/models"
	"slotbook/internal/service"
)

type createReviewBody struct {
	BookingID string `json:"booking_id"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
}

func (s *HTTPServer) handleCreateReview(w http.ResponseWriter, r *http.Request) {
	var body createReviewBody
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	review, err := s.deps.Reviews.CreateReview(r.Context(), service.CreateReviewRequest{
		UserID:    r.Header.Get(headerUserID),
		BookingID: body.BookingID,
		Rating:    body.Rating,
		Comment:   body.Comment,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, review)
}

func (s *HTTPServer) handleListReviews(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	paging, ascending, err := parseListing(q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	filter := models.ReviewFilter{
		ServiceID: strings.TrimSpace(q.Get("service_id")),
		CompanyID: strings.TrimSpace(q.Get("company_id")),
		UserID:    strings.TrimSpace(q.Get("user_id")),
		SortBy:    models.ReviewSort(strings.TrimSpace(q.Get("sort_by"))),
		Ascending: ascending,
		Paging:    paging,
	}
	if filter.MinRating, err = optionalInt(q.Get("min_rating"), "min_rating"); err != nil {
		s.fail(w, r, err)
		return
	}

	page, err := s.deps.Reviews.ListReviews(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *HTTPServer) handleGetReview(w http.ResponseWriter, r *http.Request) {
	review, err := s.deps.Reviews.GetReview(r.Context(), chi.URLParam(r, "reviewID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

func (s *HTTPServer) handleUpdateReview(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Rating  *int    `json:"rating"`
		Comment *string `json:"comment"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	review, err := s.deps.Reviews.UpdateReview(r.Context(), r.Header.Get(headerUserID), chi.URLParam(r, "reviewID"),
		service.UpdateReviewRequest{Rating: body.Rating, Comment: body.Comment})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

func (s *HTTPServer) handleDeleteReview(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Reviews.DeleteReview(r.Context(), r.Header.Get(headerUserID), chi.URLParam(r, "reviewID")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleServiceRatingStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Reviews.ServiceRatingStats(r.Context(), chi.URLParam(r, "serviceID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *HTTPServer) handleCompanyRatingStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Reviews.CompanyRatingStats(r.Context(), chi.URLParam(r, "companyID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
