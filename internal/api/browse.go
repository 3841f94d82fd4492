package api

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"slotbook/internal/domain"
	"slotbook/internal/models"
)

func (s *HTTPServer) handleSearchCompanies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	paging, ascending, err := parseListing(q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	search := models.CompanySearch{
		Query:     strings.TrimSpace(q.Get("search")),
		Status:    models.CompanyStatus(strings.ToLower(strings.TrimSpace(q.Get("status")))),
		SortBy:    models.CompanySort(strings.TrimSpace(q.Get("sort_by"))),
		Ascending: ascending,
		Paging:    paging,
	}
	if search.MinRating, err = optionalFloat(q.Get("min_rating"), "min_rating"); err != nil {
		s.fail(w, r, err)
		return
	}

	page, err := s.deps.Catalog.SearchCompanies(r.Context(), search)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *HTTPServer) handlePendingCompanies(w http.ResponseWriter, r *http.Request) {
	paging, _, err := parseListing(r.URL.Query())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page, err := s.deps.Catalog.PendingCompanies(r.Context(), paging)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *HTTPServer) handleCompanyDetail(w http.ResponseWriter, r *http.Request) {
	detail, err := s.deps.Catalog.CompanyDetail(r.Context(), chi.URLParam(r, "companyID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *HTTPServer) handleSearchServices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	paging, ascending, err := parseListing(q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	search := models.ServiceSearch{
		Query:     strings.TrimSpace(q.Get("search")),
		CompanyID: strings.TrimSpace(q.Get("company_id")),
		SortBy:    models.ServiceSort(strings.TrimSpace(q.Get("sort_by"))),
		Ascending: ascending,
		Paging:    paging,
	}
	if search.MinPriceCents, err = optionalCents(q.Get("min_price_cents"), "min_price_cents"); err != nil {
		s.fail(w, r, err)
		return
	}
	if search.MaxPriceCents, err = optionalCents(q.Get("max_price_cents"), "max_price_cents"); err != nil {
		s.fail(w, r, err)
		return
	}
	if v := strings.TrimSpace(q.Get("active")); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			s.fail(w, r, domain.Reject(domain.ReasonInvalidArgument, "active must be true or false"))
			return
		}
		search.Active = &active
	}

	page, err := s.deps.Catalog.SearchServices(r.Context(), search)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *HTTPServer) handleServiceDetail(w http.ResponseWriter, r *http.Request) {
	detail, err := s.deps.Catalog.ServiceDetail(r.Context(), chi.URLParam(r, "serviceID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// parseListing reads page, limit and order. Order is "asc" or "desc".
func parseListing(q url.Values) (models.Paging, bool, error) {
	var (
		p   models.Paging
		err error
	)
	if p.Page, err = optionalInt(q.Get("page"), "page"); err != nil {
		return p, false, err
	}
	if p.Limit, err = optionalInt(q.Get("limit"), "limit"); err != nil {
		return p, false, err
	}
	switch strings.ToLower(strings.TrimSpace(q.Get("order"))) {
	case "", "desc":
		return p, false, nil
	case "asc":
		return p, true, nil
	default:
		return p, false, domain.Reject(domain.ReasonInvalidArgument, "order must be asc or desc")
	}
}

func optionalFloat(raw, name string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, domain.Reject(domain.ReasonInvalidArgument, "%s must be a number", name)
	}
	return f, nil
}

func optionalCents(raw, name string) (*int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, domain.Reject(domain.ReasonInvalidArgument, "%s must be an integer", name)
	}
	return &n, nil
}
