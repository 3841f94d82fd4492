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

const reviewColumns = `id, booking_id, user_id, service_id, company_id, rating, comment, created_at, updated_at`

func scanReview(row pgx.Row) (*models.Review, error) {
	var r models.Review
	err := row.Scan(&r.ID, &r.BookingID, &r.UserID, &r.ServiceID, &r.CompanyID, &r.Rating, &r.Comment, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// InsertReview stores a new review. A second review of the same booking
// fails with domain.ErrUniqueViolation.
func (s *Store) InsertReview(ctx context.Context, r *models.Review) error {
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	_, err := s.pool.Exec(ctx,
		`INSERT INTO reviews (`+reviewColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, r.BookingID, r.UserID, r.ServiceID, r.CompanyID, r.Rating, r.Comment, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert review: %w", mapError(err))
	}
	return nil
}

func (s *Store) GetReview(ctx context.Context, id string) (*models.Review, error) {
	r, err := scanReview(s.pool.QueryRow(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get review: %w", err)
	}
	return r, nil
}

func (s *Store) UpdateReview(ctx context.Context, r *models.Review) error {
	r.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE reviews SET rating = $1, comment = $2, updated_at = $3 WHERE id = $4`,
		r.Rating, r.Comment, r.UpdatedAt, r.ID)
	if err != nil {
		return fmt.Errorf("update review: %w", err)
	}
	return requireRow(tag)
}

func (s *Store) DeleteReview(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	return requireRow(tag)
}

func reviewWhere(f models.ReviewFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.ServiceID != "" {
		conds = append(conds, "service_id = "+arg(f.ServiceID))
	}
	if f.CompanyID != "" {
		conds = append(conds, "company_id = "+arg(f.CompanyID))
	}
	if f.UserID != "" {
		conds = append(conds, "user_id = "+arg(f.UserID))
	}
	if f.MinRating > 0 {
		conds = append(conds, "rating >= "+arg(f.MinRating))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// FindReviews returns one page of reviews matching f and the total count.
func (s *Store) FindReviews(ctx context.Context, f models.ReviewFilter) ([]*models.Review, int, error) {
	where, args := reviewWhere(f)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM reviews`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count reviews: %w", err)
	}

	column := "created_at"
	if f.SortBy == models.ReviewSortRating {
		column = "rating"
	}
	query := fmt.Sprintf(`SELECT %s FROM reviews%s ORDER BY %s%s, id LIMIT $%d OFFSET $%d`,
		reviewColumns, where, column, direction(f.Ascending), len(args)+1, len(args)+2)
	args = append(args, f.Limit, f.Offset())

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("find reviews: %w", err)
	}
	defer rows.Close()

	reviews := []*models.Review{}
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate reviews: %w", err)
	}
	return reviews, total, nil
}

func (s *Store) RatingCounts(ctx context.Context, f models.ReviewFilter) (map[int]int, error) {
	f.MinRating = 0
	where, args := reviewWhere(f)
	rows, err := s.pool.Query(ctx, `SELECT rating, COUNT(*) FROM reviews`+where+` GROUP BY rating`, args...)
	if err != nil {
		return nil, fmt.Errorf("count ratings: %w", err)
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var rating, n int
		if err := rows.Scan(&rating, &n); err != nil {
			return nil, fmt.Errorf("scan rating count: %w", err)
		}
		counts[rating] = n
	}
	return counts, rows.Err()
}

func (s *Store) SetServiceRating(ctx context.Context, serviceID string, rating float64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE services SET rating = $1 WHERE id = $2`, rating, serviceID)
	if err != nil {
		return fmt.Errorf("set service rating: %w", err)
	}
	return requireRow(tag)
}

func (s *Store) SetCompanyRating(ctx context.Context, companyID string, rating float64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE companies SET rating = $1 WHERE id = $2`, rating, companyID)
	if err != nil {
		return fmt.Errorf("set company rating: %w", err)
	}
	return requireRow(tag)
}
