package database

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"slotbook/internal/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

type fixture struct {
	company *models.Company
	service *models.Service
}

func seedCatalog(t *testing.T, db *DB) fixture {
	t.Helper()
	ctx := context.Background()
	company := &models.Company{ID: uuid.NewString(), OwnerID: "owner-1", Name: "Barber", Status: models.CompanyApproved}
	require.NoError(t, db.CreateCompany(ctx, company))
	service := &models.Service{
		ID: uuid.NewString(), CompanyID: company.ID, Name: "Haircut",
		DurationMinutes: 60, PriceCents: 2500, Active: true,
	}
	require.NoError(t, db.CreateService(ctx, service))
	return fixture{company: company, service: service}
}

func newBooking(serviceID string, date time.Time, slot string) *models.Booking {
	return &models.Booking{
		ID:              uuid.NewString(),
		UserID:          "user-1",
		ServiceID:       serviceID,
		Date:            date,
		TimeSlot:        slot,
		Status:          models.StatusPending,
		TotalPriceCents: 2500,
	}
}
