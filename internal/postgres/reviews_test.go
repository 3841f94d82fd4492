package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotbook/internal/domain"
	"slotbook/internal/models"
)

var reviewCols = []string{"id", "booking_id", "user_id", "service_id", "company_id", "rating", "comment", "created_at", "updated_at"}

func TestInsertReview_Duplicate(t *testing.T) {
	mock, store := newMock(t)
	mock.ExpectExec("INSERT INTO reviews").WithArgs(
		"r1", "b1", "user-1", "svc-1", "co-1", 5, "", pgxmock.AnyArg(), pgxmock.AnyArg(),
	).WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "reviews_booking_id_key"})

	err := store.InsertReview(context.Background(), &models.Review{
		ID: "r1", BookingID: "b1", UserID: "user-1", ServiceID: "svc-1", CompanyID: "co-1", Rating: 5,
	})
	assert.ErrorIs(t, err, domain.ErrUniqueViolation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindReviews(t *testing.T) {
	mock, store := newMock(t)
	now := time.Now().UTC()
	filter := models.ReviewFilter{
		CompanyID: "co-1", MinRating: 3, SortBy: models.ReviewSortRating,
		Paging: models.Paging{Page: 3, Limit: 20},
	}

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM reviews WHERE company_id = \$1 AND rating >= \$2`).
		WithArgs("co-1", 3).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(41))
	mock.ExpectQuery(`ORDER BY rating DESC, id LIMIT \$3 OFFSET \$4`).
		WithArgs("co-1", 3, 20, 40).
		WillReturnRows(pgxmock.NewRows(reviewCols).AddRow("r41", "b41", "user-1", "svc-1", "co-1", 3, "", now, now))

	reviews, total, err := store.FindReviews(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, 41, total)
	require.Len(t, reviews, 1)
	assert.Equal(t, 3, reviews[0].Rating)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRatingCounts(t *testing.T) {
	mock, store := newMock(t)
	mock.ExpectQuery(`SELECT rating, COUNT\(\*\) FROM reviews WHERE service_id = \$1 GROUP BY rating`).
		WithArgs("svc-1").
		WillReturnRows(pgxmock.NewRows([]string{"rating", "count"}).AddRow(5, 2).AddRow(1, 1))

	counts, err := store.RatingCounts(context.Background(), models.ReviewFilter{ServiceID: "svc-1", MinRating: 4})
	require.NoError(t, err)
	assert.Equal(t, map[int]int{5: 2, 1: 1}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewNotFound(t *testing.T) {
	ctx := context.Background()
	mock, store := newMock(t)

	mock.ExpectQuery("FROM reviews WHERE id").WithArgs("x").WillReturnError(pgx.ErrNoRows)
	_, err := store.GetReview(ctx, "x")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	mock.ExpectExec("DELETE FROM reviews").WithArgs("x").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	assert.ErrorIs(t, store.DeleteReview(ctx, "x"), domain.ErrNotFound)

	mock.ExpectExec("UPDATE companies SET rating").WithArgs(4.5, "x").WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	assert.ErrorIs(t, store.SetCompanyRating(ctx, "x", 4.5), domain.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}
