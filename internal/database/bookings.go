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

const bookingColumns = `b.id, b.user_id, b.service_id, s.company_id, s.name, b.date, b.time_slot, b.status,
        b.total_price_cents, b.notes, b.cancellation_reason, b.created_at, b.updated_at, b.version`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b    models.Booking
		date string
	)
	err := row.Scan(
		&b.ID, &b.UserID, &b.ServiceID, &b.CompanyID, &b.ServiceName, &date, &b.TimeSlot, &b.Status,
		&b.TotalPriceCents, &b.Notes, &b.CancellationReason, &b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}
	b.Date, err = time.Parse(dateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("failed to parse booking date %q: %w", date, err)
	}
	return &b, nil
}

func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + `
        FROM bookings b JOIN services s ON s.id = b.service_id
        WHERE b.id = ?`
	b, err := scanBooking(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

// bookingWhere builds the WHERE clause shared by listing and counting.
func bookingWhere(f models.BookingFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	if f.UserID != "" {
		conds = append(conds, "b.user_id = ?")
		args = append(args, f.UserID)
	}
	if f.CompanyID != "" {
		conds = append(conds, "s.company_id = ?")
		args = append(args, f.CompanyID)
	}
	if f.ServiceID != "" {
		conds = append(conds, "b.service_id = ?")
		args = append(args, f.ServiceID)
	}
	if len(f.Statuses) > 0 {
		marks := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		conds = append(conds, "b.status IN ("+strings.Join(marks, ", ")+")")
	}
	if !f.From.IsZero() {
		conds = append(conds, "b.date >= ?")
		args = append(args, f.From.Format(dateLayout))
	}
	if !f.To.IsZero() {
		conds = append(conds, "b.date <= ?")
		args = append(args, f.To.Format(dateLayout))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func bookingOrder(f models.BookingFilter) string {
	if f.Chronological {
		return ` ORDER BY b.date, b.time_slot, b.created_at`
	}
	return ` ORDER BY b.date DESC, b.time_slot DESC, b.created_at DESC`
}

// FindBookings returns one page of bookings matching f and the total count.
// A zero Limit returns every match.
func (db *DB) FindBookings(ctx context.Context, f models.BookingFilter) ([]*models.Booking, int, error) {
	where, args := bookingWhere(f)
	from := ` FROM bookings b JOIN services s ON s.id = b.service_id`

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*)`+from+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	query := `SELECT ` + bookingColumns + from + where + bookingOrder(f)
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset())
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find bookings: %w", err)
	}
	defer rows.Close()

	bookings := []*models.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return bookings, total, nil
}

// InsertBooking stores a new booking at version 1. A second active booking
// for the same slot fails with domain.ErrUniqueViolation.
func (db *DB) InsertBooking(ctx context.Context, b *models.Booking) error {
	query := `INSERT INTO bookings (
                id, user_id, service_id, date, time_slot, status, total_price_cents,
                notes, cancellation_reason, created_at, updated_at, version
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = b.CreatedAt

	_, err := db.ExecContext(ctx, query,
		b.ID, b.UserID, b.ServiceID, b.Date.Format(dateLayout), b.TimeSlot, string(b.Status),
		b.TotalPriceCents, b.Notes, b.CancellationReason, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", mapError(err))
	}
	b.Version = 1
	return nil
}

// UpdateBooking is a compare-and-set on the booking version.
func (db *DB) UpdateBooking(ctx context.Context, b *models.Booking) error {
	query := `UPDATE bookings
              SET status = ?, cancellation_reason = ?, updated_at = ?, version = version + 1
              WHERE id = ? AND version = ?`
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = time.Now().UTC()
	}
	res, err := db.ExecContext(ctx, query, string(b.Status), b.CancellationReason, b.UpdatedAt, b.ID, b.Version)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", mapError(err))
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		var exists int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM bookings WHERE id = ?`, b.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return domain.ErrConcurrentModification
	}
	b.Version++
	return nil
}
