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

const bookingColumns = `b.id, b.user_id, b.service_id, s.company_id, s.name, b.date, b.time_slot, b.status,
        b.total_price_cents, b.notes, b.cancellation_reason, b.created_at, b.updated_at, b.version`

const bookingFrom = ` FROM bookings b JOIN services s ON s.id = b.service_id`

func scanBooking(row pgx.Row) (*models.Booking, error) {
	var (
		b      models.Booking
		status string
	)
	err := row.Scan(
		&b.ID, &b.UserID, &b.ServiceID, &b.CompanyID, &b.ServiceName, &b.Date, &b.TimeSlot, &status,
		&b.TotalPriceCents, &b.Notes, &b.CancellationReason, &b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}
	b.Status = models.BookingStatus(status)
	b.Date = time.Date(b.Date.Year(), b.Date.Month(), b.Date.Day(), 0, 0, 0, 0, time.UTC)
	return &b, nil
}

func (s *Store) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	b, err := scanBooking(s.pool.QueryRow(ctx, `SELECT `+bookingColumns+bookingFrom+` WHERE b.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

// bookingWhere builds the WHERE clause shared by listing and counting.
func bookingWhere(f models.BookingFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.UserID != "" {
		conds = append(conds, "b.user_id = "+arg(f.UserID))
	}
	if f.CompanyID != "" {
		conds = append(conds, "s.company_id = "+arg(f.CompanyID))
	}
	if f.ServiceID != "" {
		conds = append(conds, "b.service_id = "+arg(f.ServiceID))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		conds = append(conds, "b.status = ANY("+arg(statuses)+")")
	}
	if !f.From.IsZero() {
		conds = append(conds, "b.date >= "+arg(f.From.Format(dateLayout))+"::date")
	}
	if !f.To.IsZero() {
		conds = append(conds, "b.date <= "+arg(f.To.Format(dateLayout))+"::date")
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

const dateLayout = "2006-01-02"

func bookingOrder(f models.BookingFilter) string {
	if f.Chronological {
		return ` ORDER BY b.date, b.time_slot, b.created_at`
	}
	return ` ORDER BY b.date DESC, b.time_slot DESC, b.created_at DESC`
}

// FindBookings returns one page of bookings matching f and the total count.
// A zero Limit returns every match.
func (s *Store) FindBookings(ctx context.Context, f models.BookingFilter) ([]*models.Booking, int, error) {
	where, args := bookingWhere(f)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*)`+bookingFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count bookings: %w", err)
	}

	query := `SELECT ` + bookingColumns + bookingFrom + where + bookingOrder(f)
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
		args = append(args, f.Limit, f.Offset())
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("find bookings: %w", err)
	}
	defer rows.Close()

	bookings := []*models.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate bookings: %w", err)
	}
	return bookings, total, nil
}

// InsertBooking stores a new booking at version 1. A second active booking
// for the same slot fails with domain.ErrUniqueViolation.
func (s *Store) InsertBooking(ctx context.Context, b *models.Booking) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	b.UpdatedAt = b.CreatedAt

	_, err := s.pool.Exec(ctx, `INSERT INTO bookings (
            id, user_id, service_id, date, time_slot, status, total_price_cents,
            notes, cancellation_reason, created_at, updated_at, version
        ) VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8, $9, $10, $11, 1)`,
		b.ID, b.UserID, b.ServiceID, b.DateString(), b.TimeSlot, string(b.Status), b.TotalPriceCents,
		b.Notes, b.CancellationReason, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create booking: %w", mapError(err))
	}
	b.Version = 1
	return nil
}

// UpdateBooking is a compare-and-set on the booking version.
func (s *Store) UpdateBooking(ctx context.Context, b *models.Booking) error {
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = time.Now().UTC()
	}
	tag, err := s.pool.Exec(ctx, `UPDATE bookings
        SET status = $1, cancellation_reason = $2, updated_at = $3, version = version + 1
        WHERE id = $4 AND version = $5`,
		string(b.Status), b.CancellationReason, b.UpdatedAt, b.ID, b.Version)
	if err != nil {
		return fmt.Errorf("update booking: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		var exists int
		err := s.pool.QueryRow(ctx, `SELECT 1 FROM bookings WHERE id = $1`, b.ID).Scan(&exists)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return domain.ErrConcurrentModification
	}
	b.Version++
	return nil
}
