package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"slotbook/internal/domain"
	"slotbook/internal/models"
)

func (db *DB) CreateCompany(ctx context.Context, c *models.Company) error {
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	_, err := db.ExecContext(ctx,
		`INSERT INTO companies (id, owner_id, name, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.OwnerID, c.Name, string(c.Status), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create company: %w", mapError(err))
	}
	return nil
}

const companyColumns = `c.id, c.owner_id, c.name, c.status, c.rating, c.created_at, c.updated_at`

func scanCompany(row rowScanner) (*models.Company, error) {
	var c models.Company
	if err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Status, &c.Rating, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (db *DB) GetCompany(ctx context.Context, id string) (*models.Company, error) {
	c, err := scanCompany(db.QueryRowContext(ctx, `SELECT `+companyColumns+` FROM companies c WHERE c.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return c, nil
}

// SearchCompanies returns one page of companies matching search and the
// total count.
func (db *DB) SearchCompanies(ctx context.Context, search models.CompanySearch) ([]*models.Company, int, error) {
	var (
		conds []string
		args  []interface{}
	)
	if search.Status != "" {
		conds = append(conds, "c.status = ?")
		args = append(args, string(search.Status))
	}
	if q := strings.TrimSpace(search.Query); q != "" {
		conds = append(conds, `c.name LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(q))
	}
	if search.MinRating > 0 {
		conds = append(conds, "c.rating >= ?")
		args = append(args, search.MinRating)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM companies c`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count companies: %w", err)
	}

	column := "c.created_at"
	switch search.SortBy {
	case models.CompanySortRating:
		column = "c.rating"
	case models.CompanySortName:
		column = "c.name"
	}
	query := `SELECT ` + companyColumns + ` FROM companies c` + where +
		` ORDER BY ` + column + direction(search.Ascending) + `, c.id LIMIT ? OFFSET ?`
	args = append(args, search.Limit, search.Offset())

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search companies: %w", err)
	}
	defer rows.Close()

	companies := []*models.Company{}
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan company: %w", err)
		}
		companies = append(companies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate companies: %w", err)
	}
	return companies, total, nil
}

func (db *DB) UpdateCompanyStatus(ctx context.Context, id string, status models.CompanyStatus) error {
	res, err := db.ExecContext(ctx,
		`UPDATE companies SET status = ?, updated_at = ? WHERE id = ?`, string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update company status: %w", err)
	}
	return requireRow(res)
}

func (db *DB) CreateService(ctx context.Context, s *models.Service) error {
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	_, err := db.ExecContext(ctx,
		`INSERT INTO services (id, company_id, name, duration_minutes, price_cents, active, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.CompanyID, s.Name, s.DurationMinutes, s.PriceCents, s.Active, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", mapError(err))
	}
	return nil
}

const serviceColumns = `id, company_id, name, duration_minutes, price_cents, active, rating, created_at, updated_at`

func scanService(row rowScanner) (*models.Service, error) {
	var s models.Service
	err := row.Scan(&s.ID, &s.CompanyID, &s.Name, &s.DurationMinutes, &s.PriceCents, &s.Active, &s.Rating, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (db *DB) FindService(ctx context.Context, id string) (*models.Service, error) {
	s, err := scanService(db.QueryRowContext(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	return s, nil
}

func (db *DB) ListServices(ctx context.Context, companyID string) ([]*models.Service, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+serviceColumns+` FROM services WHERE company_id = ? ORDER BY name`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	defer rows.Close()

	services := []*models.Service{}
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		services = append(services, s)
	}
	return services, rows.Err()
}

// SearchServices returns one page of services matching search and the
// total count. Query matches the service or the company name.
func (db *DB) SearchServices(ctx context.Context, search models.ServiceSearch) ([]*models.Service, int, error) {
	var (
		conds []string
		args  []interface{}
	)
	if q := strings.TrimSpace(search.Query); q != "" {
		conds = append(conds, `(s.name LIKE ? ESCAPE '\' OR c.name LIKE ? ESCAPE '\')`)
		args = append(args, likePattern(q), likePattern(q))
	}
	if search.CompanyID != "" {
		conds = append(conds, "s.company_id = ?")
		args = append(args, search.CompanyID)
	}
	if search.MinPriceCents != nil {
		conds = append(conds, "s.price_cents >= ?")
		args = append(args, *search.MinPriceCents)
	}
	if search.MaxPriceCents != nil {
		conds = append(conds, "s.price_cents <= ?")
		args = append(args, *search.MaxPriceCents)
	}
	if search.Active != nil {
		conds = append(conds, "s.active = ?")
		args = append(args, *search.Active)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	from := ` FROM services s JOIN companies c ON c.id = s.company_id`

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*)`+from+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count services: %w", err)
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
		from + where + ` ORDER BY ` + column + direction(search.Ascending) + `, s.id LIMIT ? OFFSET ?`
	args = append(args, search.Limit, search.Offset())

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search services: %w", err)
	}
	defer rows.Close()

	services := []*models.Service{}
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan service: %w", err)
		}
		services = append(services, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate services: %w", err)
	}
	return services, total, nil
}

func (db *DB) SetServiceActive(ctx context.Context, id string, active bool) error {
	res, err := db.ExecContext(ctx,
		`UPDATE services SET active = ?, updated_at = ? WHERE id = ?`, active, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update service: %w", err)
	}
	return requireRow(res)
}

const windowColumns = `id, company_id, day_of_week, start_minute, end_minute, slot_granularity, active, created_at, updated_at`

func scanWindow(row rowScanner) (*models.OperatingWindow, error) {
	var w models.OperatingWindow
	err := row.Scan(&w.ID, &w.CompanyID, &w.DayOfWeek, &w.StartTime, &w.EndTime, &w.SlotGranularity, &w.Active, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (db *DB) CreateOperatingWindow(ctx context.Context, w *models.OperatingWindow) error {
	now := time.Now().UTC()
	w.CreatedAt, w.UpdatedAt = now, now
	_, err := db.ExecContext(ctx,
		`INSERT INTO operating_windows (`+windowColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.CompanyID, w.DayOfWeek, w.StartTime, w.EndTime, w.SlotGranularity, w.Active, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create operating window: %w", mapError(err))
	}
	return nil
}

func (db *DB) GetOperatingWindow(ctx context.Context, id string) (*models.OperatingWindow, error) {
	w, err := scanWindow(db.QueryRowContext(ctx, `SELECT `+windowColumns+` FROM operating_windows WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get operating window: %w", err)
	}
	return w, nil
}

func (db *DB) UpdateOperatingWindow(ctx context.Context, w *models.OperatingWindow) error {
	w.UpdatedAt = time.Now().UTC()
	res, err := db.ExecContext(ctx,
		`UPDATE operating_windows
         SET day_of_week = ?, start_minute = ?, end_minute = ?, slot_granularity = ?, active = ?, updated_at = ?
         WHERE id = ?`,
		w.DayOfWeek, w.StartTime, w.EndTime, w.SlotGranularity, w.Active, w.UpdatedAt, w.ID)
	if err != nil {
		return fmt.Errorf("failed to update operating window: %w", err)
	}
	return requireRow(res)
}

func (db *DB) DeleteOperatingWindow(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM operating_windows WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete operating window: %w", err)
	}
	return requireRow(res)
}

func (db *DB) FindOperatingWindows(ctx context.Context, companyID string) ([]*models.OperatingWindow, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+windowColumns+` FROM operating_windows WHERE company_id = ? ORDER BY start_minute`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to find operating windows: %w", err)
	}
	defer rows.Close()

	windows := []*models.OperatingWindow{}
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operating window: %w", err)
		}
		windows = append(windows, w)
	}
	return windows, rows.Err()
}

func (db *DB) CompanyStats(ctx context.Context, companyID string) (*models.CompanyStats, error) {
	stats := &models.CompanyStats{CompanyID: companyID}
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM services WHERE company_id = ?`, companyID).Scan(&stats.TotalServices)
	if err != nil {
		return nil, fmt.Errorf("failed to count services: %w", err)
	}
	err = db.QueryRowContext(ctx, `
        SELECT COUNT(*),
               COALESCE(SUM(CASE WHEN b.status = 'completed' THEN 1 ELSE 0 END), 0),
               COALESCE(SUM(CASE WHEN b.status = 'cancelled' THEN 1 ELSE 0 END), 0)
        FROM bookings b JOIN services s ON s.id = b.service_id
        WHERE s.company_id = ?`, companyID,
	).Scan(&stats.TotalBookings, &stats.CompletedBookings, &stats.CancelledBookings)
	if err != nil {
		return nil, fmt.Errorf("failed to count bookings: %w", err)
	}
	err = db.QueryRowContext(ctx, `
        SELECT (SELECT COUNT(*) FROM reviews WHERE company_id = ?), rating
        FROM companies WHERE id = ?`, companyID, companyID,
	).Scan(&stats.TotalReviews, &stats.AverageRating)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to count reviews: %w", err)
	}
	return stats, nil
}

// likePattern wraps q for a substring LIKE match with '\' as the escape.
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

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
