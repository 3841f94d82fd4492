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

const reviewColumns = `id, booking_id, user_id, service_id, company_id, rating, comment, created_at, updated_at`

func scanReview(row rowScanner) (*models.Review, error) {
	var r models.Review
	err := row.Scan(&r.ID, &r.BookingID, &r.UserID, &r.ServiceID, &r.CompanyID, &r.Rating, &r.Comment, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// InsertReview stores a new review. A second review of the same booking
// fails with domain.ErrUniqueViolation.
func (db *DB) InsertReview(ctx context.Context, r *models.Review) error {
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	_, err := db.ExecContext(ctx,
		`INSERT INTO reviews (`+reviewColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.BookingID, r.UserID, r.ServiceID, r.CompanyID, r.Rating, r.Comment, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert review: %w", mapError(err))
	}
	return nil
}

func (db *DB) GetReview(ctx context.Context, id string) (*models.Review, error) {
	r, err := scanReview(db.QueryRowContext(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get review: %w", err)
	}
	return r, nil
}

// UpdateReview persists rating and comment.
func (db *DB) UpdateReview(ctx context.Context, r *models.Review) error {
	r.UpdatedAt = time.Now().UTC()
	res, err := db.ExecContext(ctx,
		`UPDATE reviews SET rating = ?, comment = ?, updated_at = ? WHERE id = ?`,
		r.Rating, r.Comment, r.UpdatedAt, r.ID)
	if err != nil {
		return fmt.Errorf("failed to update review: %w", err)
	}
	return requireRow(res)
}

func (db *DB) DeleteReview(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM reviews WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete review: %w", err)
	}
	return requireRow(res)
}

func reviewWhere(f models.ReviewFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	if f.ServiceID != "" {
		conds = append(conds, "service_id = ?")
		args = append(args, f.ServiceID)
	}
	if f.CompanyID != "" {
		conds = append(conds, "company_id = ?")
		args = append(args, f.CompanyID)
	}
	if f.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.MinRating > 0 {
		conds = append(conds, "rating >= ?")
		args = append(args, f.MinRating)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// FindReviews returns one page of reviews matching f and the total count.
func (db *DB) FindReviews(ctx context.Context, f models.ReviewFilter) ([]*models.Review, int, error) {
	where, args := reviewWhere(f)

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reviews`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count reviews: %w", err)
	}

	column := "created_at"
	if f.SortBy == models.ReviewSortRating {
		column = "rating"
	}
	query := `SELECT ` + reviewColumns + ` FROM reviews` + where +
		` ORDER BY ` + column + direction(f.Ascending) + `, id LIMIT ? OFFSET ?`
	args = append(args, f.Limit, f.Offset())

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find reviews: %w", err)
	}
	defer rows.Close()

	reviews := []*models.Review{}
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate reviews: %w", err)
	}
	return reviews, total, nil
}

func (db *DB) RatingCounts(ctx context.Context, f models.ReviewFilter) (map[int]int, error) {
	f.MinRating = 0
	where, args := reviewWhere(f)
	rows, err := db.QueryContext(ctx, `SELECT rating, COUNT(*) FROM reviews`+where+` GROUP BY rating`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count ratings: %w", err)
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var rating, n int
		if err := rows.Scan(&rating, &n); err != nil {
			return nil, fmt.Errorf("failed to scan rating count: %w", err)
		}
		counts[rating] = n
	}
	return counts, rows.Err()
}

func (db *DB) SetServiceRating(ctx context.Context, serviceID string, rating float64) error {
	res, err := db.ExecContext(ctx, `UPDATE services SET rating = ? WHERE id = ?`, rating, serviceID)
	if err != nil {
		return fmt.Errorf("failed to set service rating: %w", err)
	}
	return requireRow(res)
}

func (db *DB) SetCompanyRating(ctx context.Context, companyID string, rating float64) error {
	res, err := db.ExecContext(ctx, `UPDATE companies SET rating = ? WHERE id = ?`, rating, companyID)
	if err != nil {
		return fmt.Errorf("failed to set company rating: %w", err)
	}
	return requireRow(res)
}
