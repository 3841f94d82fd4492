package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"slotbook/internal/domain"
	"slotbook/internal/export"
	"slotbook/internal/models"
	"slotbook/internal/service"
	"slotbook/internal/timeslot"
)

// Actor identity is established upstream and forwarded in these headers.
const (
	headerUserID    = "X-User-ID"
	headerCompanyID = "X-Company-ID"

	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.deps.Store.Ping(ctx); err != nil {
		s.log.Warn().Err(err).Msg("readiness check failed")
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "storage unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	serviceID := chi.URLParam(r, "serviceID")
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		s.fail(w, r, domain.Reject(domain.ReasonInvalidArgument, "date is required"))
		return
	}

	avail, err := s.deps.Bookings.Availability(r.Context(), serviceID, date)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, avail)
}

type createBookingBody struct {
	ServiceID string `json:"service_id"`
	Date      string `json:"date"`
	TimeSlot  string `json:"time_slot"`
	Notes     string `json:"notes"`
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var body createBookingBody
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}

	booking, err := s.deps.Bookings.CreateBooking(r.Context(), service.CreateBookingRequest{
		UserID:    r.Header.Get(headerUserID),
		ServiceID: body.ServiceID,
		Date:      body.Date,
		TimeSlot:  body.TimeSlot,
		Notes:     body.Notes,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r, s.deps.location())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page, err := s.deps.Bookings.ListUserBookings(r.Context(), r.Header.Get(headerUserID), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := s.deps.Bookings.GetBooking(r.Context(), chi.URLParam(r, "bookingID"), r.Header.Get(headerUserID))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &body); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	booking, err := s.deps.Bookings.CancelBooking(r.Context(), chi.URLParam(r, "bookingID"), r.Header.Get(headerUserID), body.Reason)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	companyID := r.Header.Get(headerCompanyID)
	if companyID == "" {
		s.fail(w, r, domain.Reject(domain.ReasonForbidden, "%s header is required", headerCompanyID))
		return
	}

	status := models.BookingStatus(strings.ToLower(strings.TrimSpace(body.Status)))
	booking, err := s.deps.Bookings.UpdateStatus(r.Context(), chi.URLParam(r, "bookingID"), companyID, status)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleCreateCompany(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	owner := r.Header.Get(headerUserID)
	if owner == "" {
		s.fail(w, r, domain.Reject(domain.ReasonInvalidArgument, "%s header is required", headerUserID))
		return
	}

	company, err := s.deps.Catalog.CreateCompany(r.Context(), owner, body.Name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, company)
}

func (s *HTTPServer) handleCompanyStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}

	status := models.CompanyStatus(strings.ToLower(strings.TrimSpace(body.Status)))
	company, err := s.deps.Catalog.UpdateCompanyStatus(r.Context(), chi.URLParam(r, "companyID"), status)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, company)
}

func (s *HTTPServer) handleListServices(w http.ResponseWriter, r *http.Request) {
	services, err := s.deps.Catalog.ListServices(r.Context(), chi.URLParam(r, "companyID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": services})
}

func (s *HTTPServer) handleCreateService(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyScope(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body struct {
		Name            string `json:"name"`
		DurationMinutes int    `json:"duration_minutes"`
		PriceCents      int64  `json:"price_cents"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}

	svc, err := s.deps.Catalog.CreateService(r.Context(), service.CreateServiceRequest{
		CompanyID:       companyID,
		Name:            body.Name,
		DurationMinutes: body.DurationMinutes,
		PriceCents:      body.PriceCents,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, svc)
}

func (s *HTTPServer) handleSetServiceActive(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyScope(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body struct {
		Active *bool `json:"active"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if body.Active == nil {
		s.fail(w, r, domain.Reject(domain.ReasonInvalidArgument, "active is required"))
		return
	}

	serviceID := chi.URLParam(r, "serviceID")
	if err := s.deps.Catalog.SetServiceActive(r.Context(), companyID, serviceID, *body.Active); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": serviceID, "active": *body.Active})
}

type windowBody struct {
	DayOfWeek       *int   `json:"day_of_week"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	SlotGranularity int    `json:"slot_granularity"`
	Active          *bool  `json:"active"`
}

func (b windowBody) request() service.WindowRequest {
	return service.WindowRequest{
		DayOfWeek:       b.DayOfWeek,
		StartTime:       b.StartTime,
		EndTime:         b.EndTime,
		SlotGranularity: b.SlotGranularity,
		Active:          b.Active,
	}
}

func (s *HTTPServer) handleListWindows(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyScope(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	windows, err := s.deps.Catalog.ListOperatingWindows(r.Context(), companyID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"windows": windows})
}

func (s *HTTPServer) handleAddWindow(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyScope(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body windowBody
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}

	window, err := s.deps.Catalog.AddOperatingWindow(r.Context(), companyID, body.request())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, window)
}

// optionalDay tells an omitted day_of_week apart from an explicit null,
// which means every day.
type optionalDay struct {
	set bool
	day models.DayOfWeek
}

func (o *optionalDay) UnmarshalJSON(data []byte) error {
	o.set = true
	if err := o.day.UnmarshalJSON(data); err != nil {
		return domain.Reject(domain.ReasonInvalidArgument, "day_of_week: %v", err)
	}
	return nil
}

type windowPatchBody struct {
	DayOfWeek       optionalDay `json:"day_of_week"`
	StartTime       *string     `json:"start_time"`
	EndTime         *string     `json:"end_time"`
	SlotGranularity *int        `json:"slot_granularity"`
	Active          *bool       `json:"active"`
}

func (b windowPatchBody) patch() service.WindowPatch {
	p := service.WindowPatch{
		StartTime:       b.StartTime,
		EndTime:         b.EndTime,
		SlotGranularity: b.SlotGranularity,
		Active:          b.Active,
	}
	if b.DayOfWeek.set {
		day := b.DayOfWeek.day
		p.DayOfWeek = &day
	}
	return p
}

func (s *HTTPServer) handleUpdateWindow(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyScope(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body windowPatchBody
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}

	window, err := s.deps.Catalog.UpdateOperatingWindow(r.Context(), companyID, chi.URLParam(r, "windowID"), body.patch())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, window)
}

func (s *HTTPServer) handleDeleteWindow(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyScope(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.deps.Catalog.DeleteOperatingWindow(r.Context(), companyID, chi.URLParam(r, "windowID")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleCompanyBookings(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyScope(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	filter, err := parseFilter(r, s.deps.location())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page, err := s.deps.Bookings.ListCompanyBookings(r.Context(), companyID, filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyScope(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	stats, err := s.deps.Catalog.CompanyStats(r.Context(), companyID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleExport renders the company's bookings in [from, to] as a workbook.
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyScope(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	loc := s.deps.location()
	from, err := requiredDate(r, "from", loc)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	to, err := requiredDate(r, "to", loc)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if to.Before(from) {
		s.fail(w, r, domain.Reject(domain.ReasonInvalidArgument, "to must not be before from"))
		return
	}

	company, err := s.deps.Catalog.GetCompany(r.Context(), companyID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	bookings, err := s.deps.Bookings.AllCompanyBookings(r.Context(), companyID, from, to)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	report := export.Report{CompanyName: company.Name, From: from, To: to, Bookings: bookings}
	var buf bytes.Buffer
	if err := export.Write(&buf, report); err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(report)))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// companyScope returns the company in the path once the caller's company
// header matches it.
func companyScope(r *http.Request) (string, error) {
	companyID := chi.URLParam(r, "companyID")
	actor := strings.TrimSpace(r.Header.Get(headerCompanyID))
	if actor == "" || actor != companyID {
		return "", domain.Reject(domain.ReasonForbidden, "not a member of company %s", companyID)
	}
	return companyID, nil
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return domain.Reject(domain.ReasonInvalidArgument, "invalid JSON body")
	}
	return nil
}

// parseFilter reads page, limit, status, service_id, from and to.
func parseFilter(r *http.Request, loc *time.Location) (models.BookingFilter, error) {
	q := r.URL.Query()
	var f models.BookingFilter

	var err error
	if f.Page, err = optionalInt(q.Get("page"), "page"); err != nil {
		return f, err
	}
	if f.Limit, err = optionalInt(q.Get("limit"), "limit"); err != nil {
		return f, err
	}
	for _, st := range splitCSV(q.Get("status")) {
		f.Statuses = append(f.Statuses, models.BookingStatus(strings.ToLower(st)))
	}
	f.ServiceID = strings.TrimSpace(q.Get("service_id"))

	if v := strings.TrimSpace(q.Get("from")); v != "" {
		if f.From, err = timeslot.ParseDate(v, loc); err != nil {
			return f, domain.Reject(domain.ReasonInvalidArgument, "from must be YYYY-MM-DD")
		}
	}
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		if f.To, err = timeslot.ParseDate(v, loc); err != nil {
			return f, domain.Reject(domain.ReasonInvalidArgument, "to must be YYYY-MM-DD")
		}
	}
	return f, nil
}

func requiredDate(r *http.Request, name string, loc *time.Location) (time.Time, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return time.Time{}, domain.Reject(domain.ReasonInvalidArgument, "%s is required", name)
	}
	d, err := timeslot.ParseDate(v, loc)
	if err != nil {
		return time.Time{}, domain.Reject(domain.ReasonInvalidArgument, "%s must be YYYY-MM-DD", name)
	}
	return d, nil
}

func optionalInt(raw, name string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.Reject(domain.ReasonInvalidArgument, "%s must be a non-negative integer", name)
	}
	return n, nil
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
