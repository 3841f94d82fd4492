package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"slotbook/internal/domain"
	"slotbook/internal/models"
)

func (s *Store) CreateCompany(ctx context.Context, c *models.Company) error {
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	_, err := s.pool.Exec(ctx,
		`INSERT INTO companies (id, owner_id, name, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.OwnerID, c.Name, string(c.Status), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create company: %w", mapError(err))
	}
	return nil
}

const companyColumns = `c.id, c.owner_id, c.name, c.status, c.rating, c.created_at, c.updated_at`

func scanCompany(row pgx.Row) (*models.Company, error) {
	var (
		c      models.Company
		status string
	)
	if err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &status, &c.Rating, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Status = models.CompanyStatus(status)
	return &c, nil
}

func (s *Store) GetCompany(ctx context.Context, id string) (*models.Company, error) {
	c, err := scanCompany(s.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies c WHERE c.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get company: %w", err)
	}
	return c, nil
}

// SearchCompanies returns one page of companies matching search and the
// total count.
func (s *Store) SearchCompanies(ctx context.Context, search models.CompanySearch) ([]*models.Company, int, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if search.Status != "" {
		conds = append(conds, "c.status = "+arg(string(search.Status)))
	}
	if q := strings.TrimSpace(search.Query); q != "" {
		conds = append(conds, "c.name ILIKE "+arg(likePattern(q)))
	}
	if search.MinRating > 0 {
		conds = append(conds, "c.rating >= "+arg(search.MinRating))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM companies c`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count companies: %w", err)
	}

	column := "c.created_at"
	switch search.SortBy {
	case models.CompanySortRating:
		column = "c.rating"
	case models.CompanySortName:
		column = "c.name"
	}
	query := `SELECT ` + companyColumns + ` FROM companies c` + where +
		` ORDER BY ` + column + direction(search.Ascending) + `, c.id LIMIT ` + arg(search.Limit) + ` OFFSET ` + arg(search.Offset())

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search companies: %w", err)
	}
	defer rows.Close()

	companies := []*models.Company{}
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan company: %w", err)
		}
		companies = append(companies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate companies: %w", err)
	}
	return companies, total, nil
}

func (s *Store) UpdateCompanyStatus(ctx context.Context, id string, status models.CompanyStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE companies SET status = $1, updated_at = $2 WHERE id = $3`, string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update company status: %w", err)
	}
	return requireRow(tag)
}

func (s *Store) CreateService(ctx context.Context, svc *models.Service) error {
	now := time.Now().UTC()
	svc.CreatedAt, svc.UpdatedAt = now, now
	_, err := s.pool.Exec(ctx,
		`INSERT INTO services (id, company_id, name, duration_minutes, price_cents, active, created_at, updated_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		svc.ID, svc.CompanyID, svc.Name, svc.DurationMinutes, svc.PriceCents, svc.Active, svc.CreatedAt, svc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create service: %w", mapError(err))
	}
	return nil
}

const serviceColumns = `id, company_id, name, duration_minutes, price_cents, active, rating, created_at, updated_at`

func scanService(row pgx.Row) (*models.Service, error) {
	var svc models.Service
	err := row.Scan(&svc.ID, &svc.CompanyID, &svc.Name, &svc.DurationMinutes, &svc.PriceCents, &svc.Active, &svc.Rating, &svc.CreatedAt, &svc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &svc, nil
}

func (s *Store) FindService(ctx context.Context, id string) (*models.Service, error) {
	svc, err := scanService(s.pool.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get service: %w", err)
	}
	return svc, nil
}

func (s *Store) ListServices(ctx context.Context, companyID string) ([]*models.Service, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+serviceColumns+` FROM services WHERE company_id = $1 ORDER BY name`, companyID)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	services := []*models.Service{}
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		services = append(services, svc)
	}
	return services, rows.Err()
}

// SearchServices returns one page of services matching search and the
// total count. Query matches the service or the company name.
func (s *Store) SearchServices(ctx context.Context, search models.ServiceSearch) ([]*models.Service, int, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if q := strings.TrimSpace(search.Query); q != "" {
		p := arg(likePattern(q))
		conds = append(conds, "(s.name ILIKE "+p+" OR c.name ILIKE "+p+")")
	}
	if search.CompanyID != "" {
		conds = append(conds, "s.company_id = "+arg(search.CompanyID))
	}
	if search.MinPriceCents != nil {
		conds = append(conds, "s.price_cents >= "+arg(*search.MinPriceCents))
	}
	if search.MaxPriceCents != nil {
		conds = append(conds, "s.price_cents <= "+arg(*search.MaxPriceCents))
	}
	if search.Active != nil {
		conds = append(conds, "s.active = "+arg(*search.Active))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	from := ` FROM services s JOIN companies c ON c.id = s.company_id`

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*)`+from+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count services: %w", err)
	}

	column := "s.created_at"
	switch search.SortBy {
	case models.ServiceSortPrice:
		column = "s.price_cents"
	case models.ServiceSortRating:
		column = "s.rating"
	case models.ServiceSortName:
		column = "s.name"
	}
	query := `SELECT s.id, s.company_id, s.name, s.duration_minutes, s.price_cents, s.active, s.rating, s.created_at, s.updated_at` +
		from + where + ` ORDER BY ` + column + direction(search.Ascending) + `, s.id LIMIT ` + arg(search.Limit) + ` OFFSET ` + arg(search.Offset())

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search services: %w", err)
	}
	defer rows.Close()

	services := []*models.Service{}
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan service: %w", err)
		}
		services = append(services, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate services: %w", err)
	}
	return services, total, nil
}

func (s *Store) SetServiceActive(ctx context.Context, id string, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE services SET active = $1, updated_at = $2 WHERE id = $3`, active, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update service: %w", err)
	}
	return requireRow(tag)
}

const windowColumns = `id, company_id, day_of_week, start_minute, end_minute, slot_granularity, active, created_at, updated_at`

func scanWindow(row pgx.Row) (*models.OperatingWindow, error) {
	var (
		w   models.OperatingWindow
		day *int16
	)
	err := row.Scan(&w.ID, &w.CompanyID, &day, &w.StartTime, &w.EndTime, &w.SlotGranularity, &w.Active, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	w.DayOfWeek = models.EveryDay()
	if day != nil {
		if w.DayOfWeek, err = models.DayOfWeekFromInt(int(*day)); err != nil {
			return nil, err
		}
	}
	return &w, nil
}

func (s *Store) CreateOperatingWindow(ctx context.Context, w *models.OperatingWindow) error {
	now := time.Now().UTC()
	w.CreatedAt, w.UpdatedAt = now, now
	_, err := s.pool.Exec(ctx,
		`INSERT INTO operating_windows (`+windowColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		w.ID, w.CompanyID, w.DayOfWeek.Ptr(), w.StartTime, w.EndTime, w.SlotGranularity, w.Active, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create operating window: %w", mapError(err))
	}
	return nil
}

func (s *Store) GetOperatingWindow(ctx context.Context, id string) (*models.OperatingWindow, error) {
	w, err := scanWindow(s.pool.QueryRow(ctx, `SELECT `+windowColumns+` FROM operating_windows WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get operating window: %w", err)
	}
	return w, nil
}

func (s *Store) UpdateOperatingWindow(ctx context.Context, w *models.OperatingWindow) error {
	w.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE operating_windows
         SET day_of_week = $1, start_minute = $2, end_minute = $3, slot_granularity = $4, active = $5, updated_at = $6
         WHERE id = $7`,
		w.DayOfWeek.Ptr(), w.StartTime, w.EndTime, w.SlotGranularity, w.Active, w.UpdatedAt, w.ID)
	if err != nil {
		return fmt.Errorf("update operating window: %w", err)
	}
	return requireRow(tag)
}

func (s *Store) DeleteOperatingWindow(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM operating_windows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete operating window: %w", err)
	}
	return requireRow(tag)
}

func (s *Store) FindOperatingWindows(ctx context.Context, companyID string) ([]*models.OperatingWindow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+windowColumns+` FROM operating_windows WHERE company_id = $1 ORDER BY start_minute`, companyID)
	if err != nil {
		return nil, fmt.Errorf("find operating windows: %w", err)
	}
	defer rows.Close()

	windows := []*models.OperatingWindow{}
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan operating window: %w", err)
		}
		windows = append(windows, w)
	}
	return windows, rows.Err()
}

func (s *Store) CompanyStats(ctx context.Context, companyID string) (*models.CompanyStats, error) {
	stats := &models.CompanyStats{CompanyID: companyID}
	err := s.pool.QueryRow(ctx, `
        SELECT (SELECT COUNT(*) FROM services WHERE company_id = $1),
               COUNT(b.id),
               COUNT(b.id) FILTER (WHERE b.status = 'completed'),
               COUNT(b.id) FILTER (WHERE b.status = 'cancelled'),
               (SELECT COUNT(*) FROM reviews WHERE company_id = $1),
               (SELECT COALESCE(MAX(rating), 0) FROM companies WHERE id = $1)
        FROM bookings b JOIN services s ON s.id = b.service_id
        WHERE s.company_id = $1`, companyID,
	).Scan(&stats.TotalServices, &stats.TotalBookings, &stats.CompletedBookings, &stats.CancelledBookings,
		&stats.TotalReviews, &stats.AverageRating)
	if err != nil {
		return nil, fmt.Errorf("company stats: %w", err)
	}
	return stats, nil
}

// likePattern wraps q for a substring ILIKE match; '\' is the default escape.
func likePattern(q string) string {
	q = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(q)
	return "%" + q + "%"
}

func direction(ascending bool) string {
	if ascending {
		return " ASC"
	}
	return " DESC"
}
