package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"slotbook/internal/domain"
	"slotbook/internal/models"
	"slotbook/internal/timeslot"
)

// CatalogService manages companies, their services and operating windows.
// Deactivation never removes bookings.
type CatalogService struct {
	store  domain.CatalogRepository
	logger *zerolog.Logger
}

func NewCatalogService(store domain.CatalogRepository, logger *zerolog.Logger) *CatalogService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &CatalogService{store: store, logger: logger}
}

// CreateCompany registers a company awaiting approval.
func (s *CatalogService) CreateCompany(ctx context.Context, ownerID, name string) (*models.Company, error) {
	if strings.TrimSpace(name) == "" {
		return nil, domain.Reject(domain.ReasonInvalidArgument, "company name is required")
	}
	c := &models.Company{ID: uuid.NewString(), OwnerID: ownerID, Name: name, Status: models.CompanyPending}
	if err := s.store.CreateCompany(ctx, c); err != nil {
		return nil, wrapStore("create company", err)
	}
	s.logger.Info().Str("company_id", c.ID).Msg("Company registered")
	return c, nil
}

// UpdateCompanyStatus is the admin moderation action.
func (s *CatalogService) UpdateCompanyStatus(ctx context.Context, companyID string, status models.CompanyStatus) (*models.Company, error) {
	if !status.Valid() {
		return nil, domain.Reject(domain.ReasonInvalidArgument, "unknown company status %q", status)
	}
	if err := s.store.UpdateCompanyStatus(ctx, companyID, status); err != nil {
		return nil, wrapStore("update company status", err)
	}
	s.logger.Info().Str("company_id", companyID).Str("status", string(status)).Msg("Company status changed")
	return s.store.GetCompany(ctx, companyID)
}

func (s *CatalogService) GetCompany(ctx context.Context, companyID string) (*models.Company, error) {
	c, err := s.store.GetCompany(ctx, companyID)
	if err != nil {
		return nil, wrapStore("get company", err)
	}
	return c, nil
}

// SearchCompanies browses companies. Only approved companies are listed
// unless another status is asked for, best rated first by default.
func (s *CatalogService) SearchCompanies(ctx context.Context, search models.CompanySearch) (*models.CompanyPage, error) {
	if search.Status == "" {
		search.Status = models.CompanyApproved
	}
	if !search.Status.Valid() {
		return nil, domain.Reject(domain.ReasonInvalidArgument, "unknown company status %q", search.Status)
	}
	if search.MinRating < 0 || search.MinRating > models.MaxRating {
		return nil, domain.Reject(domain.ReasonInvalidArgument, "min rating must be between 0 and %d", models.MaxRating)
	}
	switch search.SortBy {
	case "":
		search.SortBy = models.CompanySortRating
	case models.CompanySortRating, models.CompanySortName, models.CompanySortCreatedAt:
	default:
		return nil, domain.Reject(domain.ReasonInvalidArgument, "cannot sort companies by %q", search.SortBy)
	}
	search.Paging = search.Paging.Normalize(models.DefaultPageSize)

	companies, total, err := s.store.SearchCompanies(ctx, search)
	if err != nil {
		return nil, wrapStore("search companies", err)
	}
	return &models.CompanyPage{Companies: companies, Total: total, Page: search.Page, Limit: search.Limit}, nil
}

// PendingCompanies is the moderation queue, oldest registration first.
func (s *CatalogService) PendingCompanies(ctx context.Context, paging models.Paging) (*models.CompanyPage, error) {
	search := models.CompanySearch{
		Status:    models.CompanyPending,
		SortBy:    models.CompanySortCreatedAt,
		Ascending: true,
		Paging:    paging.Normalize(models.MaxPageSize),
	}
	companies, total, err := s.store.SearchCompanies(ctx, search)
	if err != nil {
		return nil, wrapStore("search companies", err)
	}
	return &models.CompanyPage{Companies: companies, Total: total, Page: search.Page, Limit: search.Limit}, nil
}

// CompanyDetail is the public company page: active services, active
// windows and booking and review stats.
func (s *CatalogService) CompanyDetail(ctx context.Context, companyID string) (*models.CompanyDetail, error) {
	company, err := s.store.GetCompany(ctx, companyID)
	if err != nil {
		return nil, wrapStore("get company", err)
	}
	services, err := s.store.ListServices(ctx, companyID)
	if err != nil {
		return nil, wrapStore("list services", err)
	}
	windows, err := s.store.FindOperatingWindows(ctx, companyID)
	if err != nil {
		return nil, wrapStore("find operating windows", err)
	}
	stats, err := s.store.CompanyStats(ctx, companyID)
	if err != nil {
		return nil, wrapStore("company stats", err)
	}

	detail := &models.CompanyDetail{
		Company:  company,
		Services: []*models.Service{},
		Windows:  []*models.OperatingWindow{},
		Stats:    stats,
	}
	for _, svc := range services {
		if svc.Active {
			detail.Services = append(detail.Services, svc)
		}
	}
	for _, w := range windows {
		if w.Active {
			detail.Windows = append(detail.Windows, w)
		}
	}
	return detail, nil
}

// SearchServices browses services. Only active services are listed unless
// Active says otherwise, newest first by default.
func (s *CatalogService) SearchServices(ctx context.Context, search models.ServiceSearch) (*models.ServicePage, error) {
	if search.Active == nil {
		active := true
		search.Active = &active
	}
	if (search.MinPriceCents != nil && *search.MinPriceCents < 0) || (search.MaxPriceCents != nil && *search.MaxPriceCents < 0) {
		return nil, domain.Reject(domain.ReasonInvalidArgument, "price bounds must not be negative")
	}
	if search.MinPriceCents != nil && search.MaxPriceCents != nil && *search.MinPriceCents > *search.MaxPriceCents {
		return nil, domain.Reject(domain.ReasonInvalidArgument, "min price exceeds max price")
	}
	switch search.SortBy {
	case "":
		search.SortBy = models.ServiceSortCreatedAt
	case models.ServiceSortPrice, models.ServiceSortRating, models.ServiceSortName, models.ServiceSortCreatedAt:
	default:
		return nil, domain.Reject(domain.ReasonInvalidArgument, "cannot sort services by %q", search.SortBy)
	}
	search.Paging = search.Paging.Normalize(models.DefaultPageSize)

	services, total, err := s.store.SearchServices(ctx, search)
	if err != nil {
		return nil, wrapStore("search services", err)
	}
	return &models.ServicePage{Services: services, Total: total, Page: search.Page, Limit: search.Limit}, nil
}

// ServiceDetail is the public service page with its company and the most
// recent reviews.
func (s *CatalogService) ServiceDetail(ctx context.Context, serviceID string) (*models.ServiceDetail, error) {
	svc, err := s.store.FindService(ctx, serviceID)
	if err != nil {
		return nil, wrapStore("find service", err)
	}
	company, err := s.store.GetCompany(ctx, svc.CompanyID)
	if err != nil {
		return nil, wrapStore("get company", err)
	}
	reviews, _, err := s.store.FindReviews(ctx, models.ReviewFilter{
		ServiceID: serviceID,
		SortBy:    models.ReviewSortCreatedAt,
		Paging:    models.Paging{Page: 1, Limit: models.RecentReviewCount},
	})
	if err != nil {
		return nil, wrapStore("find reviews", err)
	}
	return &models.ServiceDetail{Service: svc, Company: company, RecentReviews: reviews}, nil
}

func (s *CatalogService) approvedCompany(ctx context.Context, companyID string) (*models.Company, error) {
	c, err := s.store.GetCompany(ctx, companyID)
	if err != nil {
		return nil, wrapStore("get company", err)
	}
	if c.Status != models.CompanyApproved {
		return nil, domain.Reject(domain.ReasonCompanyNotApproved, "company %s is %s", companyID, c.Status)
	}
	return c, nil
}

type CreateServiceRequest struct {
	CompanyID       string
	Name            string
	DurationMinutes int
	PriceCents      int64
}

// CreateService adds an active service to an approved company.
func (s *CatalogService) CreateService(ctx context.Context, req CreateServiceRequest) (*models.Service, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, domain.Reject(domain.ReasonInvalidArgument, "service name is required")
	}
	if req.DurationMinutes <= 0 || req.DurationMinutes >= timeslot.MinutesPerDay {
		return nil, domain.Reject(domain.ReasonInvalidArgument, "duration must be between 1 and %d minutes", timeslot.MinutesPerDay-1)
	}
	if req.PriceCents < 0 {
		return nil, domain.Reject(domain.ReasonInvalidArgument, "price must not be negative")
	}
	if _, err := s.approvedCompany(ctx, req.CompanyID); err != nil {
		return nil, err
	}

	svc := &models.Service{
		ID:              uuid.NewString(),
		CompanyID:       req.CompanyID,
		Name:            req.Name,
		DurationMinutes: req.DurationMinutes,
		PriceCents:      req.PriceCents,
		Active:          true,
	}
	if err := s.store.CreateService(ctx, svc); err != nil {
		return nil, wrapStore("create service", err)
	}
	return svc, nil
}

// SetServiceActive toggles a service of companyID.
func (s *CatalogService) SetServiceActive(ctx context.Context, companyID, serviceID string, active bool) error {
	svc, err := s.store.FindService(ctx, serviceID)
	if err != nil {
		return wrapStore("find service", err)
	}
	if svc.CompanyID != companyID {
		return domain.Reject(domain.ReasonForbidden, "service %s belongs to another company", serviceID)
	}
	return wrapNil("set service active", s.store.SetServiceActive(ctx, serviceID, active))
}

func (s *CatalogService) ListServices(ctx context.Context, companyID string) ([]*models.Service, error) {
	services, err := s.store.ListServices(ctx, companyID)
	if err != nil {
		return nil, wrapStore("list services", err)
	}
	return services, nil
}

// WindowRequest describes a new operating window in wall-clock terms. A nil
// DayOfWeek means every day.
type WindowRequest struct {
	DayOfWeek       *int
	StartTime       string
	EndTime         string
	SlotGranularity int
	Active          *bool
}

func (r WindowRequest) apply(w *models.OperatingWindow) error {
	day := models.EveryDay()
	if r.DayOfWeek != nil {
		var err error
		if day, err = models.DayOfWeekFromInt(*r.DayOfWeek); err != nil {
			return domain.Reject(domain.ReasonInvalidArgument, "%v", err)
		}
	}
	patch := WindowPatch{
		DayOfWeek:       &day,
		StartTime:       &r.StartTime,
		EndTime:         &r.EndTime,
		SlotGranularity: &r.SlotGranularity,
		Active:          r.Active,
	}
	return patch.apply(w)
}

// WindowPatch changes only the fields that are set. A DayOfWeek holding
// models.EveryDay() widens the window to every day.
type WindowPatch struct {
	DayOfWeek       *models.DayOfWeek
	StartTime       *string
	EndTime         *string
	SlotGranularity *int
	Active          *bool
}

func (p WindowPatch) apply(w *models.OperatingWindow) error {
	start, end := w.StartTime, w.EndTime
	if p.StartTime != nil {
		m, err := timeslot.Parse(*p.StartTime)
		if err != nil {
			return domain.Reject(domain.ReasonInvalidTimeFormat, "start time %q must be HH:MM", *p.StartTime)
		}
		start = m
	}
	if p.EndTime != nil {
		m, err := parseEnd(*p.EndTime)
		if err != nil {
			return err
		}
		end = m
	}
	if start >= end {
		return domain.Reject(domain.ReasonInvalidTimeRange, "start %s must be before end %s",
			timeslot.MustFormat(start), clockEnd(end))
	}
	if p.SlotGranularity != nil && *p.SlotGranularity < 0 {
		return domain.Reject(domain.ReasonInvalidArgument, "slot granularity must not be negative")
	}

	w.StartTime, w.EndTime = start, end
	if p.DayOfWeek != nil {
		w.DayOfWeek = *p.DayOfWeek
	}
	if p.SlotGranularity != nil {
		w.SlotGranularity = *p.SlotGranularity
	}
	if p.Active != nil {
		w.Active = *p.Active
	}
	return nil
}

func clockEnd(m int) string {
	if m == timeslot.MinutesPerDay {
		return "24:00"
	}
	return timeslot.MustFormat(m)
}

// parseEnd accepts "24:00" as the end of the day in addition to HH:MM.
func parseEnd(s string) (int, error) {
	if s == "24:00" {
		return timeslot.MinutesPerDay, nil
	}
	end, err := timeslot.Parse(s)
	if err != nil {
		return 0, domain.Reject(domain.ReasonInvalidTimeFormat, "end time %q must be HH:MM", s)
	}
	return end, nil
}

// AddOperatingWindow creates an active window for an approved company.
func (s *CatalogService) AddOperatingWindow(ctx context.Context, companyID string, req WindowRequest) (*models.OperatingWindow, error) {
	w := &models.OperatingWindow{ID: uuid.NewString(), CompanyID: companyID, Active: true}
	if err := req.apply(w); err != nil {
		return nil, err
	}
	if _, err := s.approvedCompany(ctx, companyID); err != nil {
		return nil, err
	}
	if err := s.store.CreateOperatingWindow(ctx, w); err != nil {
		return nil, wrapStore("create operating window", err)
	}
	return w, nil
}

// UpdateOperatingWindow merges patch into a window owned by companyID.
func (s *CatalogService) UpdateOperatingWindow(ctx context.Context, companyID, windowID string, patch WindowPatch) (*models.OperatingWindow, error) {
	w, err := s.ownedWindow(ctx, companyID, windowID)
	if err != nil {
		return nil, err
	}
	if err := patch.apply(w); err != nil {
		return nil, err
	}
	if err := s.store.UpdateOperatingWindow(ctx, w); err != nil {
		return nil, wrapStore("update operating window", err)
	}
	return w, nil
}

// DeleteOperatingWindow removes a window owned by companyID. Existing
// bookings inside it are kept.
func (s *CatalogService) DeleteOperatingWindow(ctx context.Context, companyID, windowID string) error {
	if _, err := s.ownedWindow(ctx, companyID, windowID); err != nil {
		return err
	}
	if err := s.store.DeleteOperatingWindow(ctx, windowID); err != nil {
		return wrapStore("delete operating window", err)
	}
	s.logger.Info().Str("company_id", companyID).Str("window_id", windowID).Msg("Operating window deleted")
	return nil
}

func (s *CatalogService) ownedWindow(ctx context.Context, companyID, windowID string) (*models.OperatingWindow, error) {
	w, err := s.store.GetOperatingWindow(ctx, windowID)
	if err != nil {
		return nil, wrapStore("get operating window", err)
	}
	if w.CompanyID != companyID {
		return nil, domain.Reject(domain.ReasonForbidden, "window %s belongs to another company", windowID)
	}
	return w, nil
}

func (s *CatalogService) ListOperatingWindows(ctx context.Context, companyID string) ([]*models.OperatingWindow, error) {
	windows, err := s.store.FindOperatingWindows(ctx, companyID)
	if err != nil {
		return nil, wrapStore("find operating windows", err)
	}
	return windows, nil
}

// CompanyStats counts services, bookings by outcome and reviews.
func (s *CatalogService) CompanyStats(ctx context.Context, companyID string) (*models.CompanyStats, error) {
	if _, err := s.store.GetCompany(ctx, companyID); err != nil {
		return nil, wrapStore("get company", err)
	}
	stats, err := s.store.CompanyStats(ctx, companyID)
	if err != nil {
		return nil, wrapStore("company stats", err)
	}
	return stats, nil
}

func wrapNil(op string, err error) error {
	if err == nil {
		return nil
	}
	return wrapStore(op, err)
}
