package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"slotbook/internal/config"
	"slotbook/internal/database"
	"slotbook/internal/domain"
	"slotbook/internal/models"
	"slotbook/internal/service"
)

// 2030-06-03 is a Monday.
var (
	fixedNow = time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)
	monday   = "2030-06-03"
)

type testEnv struct {
	deps    Deps
	company *models.Company
	service *models.Service
	ts      *httptest.Server
}

func newTestDeps(t *testing.T, limiter domain.RateLimiter) (Deps, *models.Company, *models.Service) {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.New(io.Discard)

	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	catalog := service.NewCatalogService(db, &logger)
	company, err := catalog.CreateCompany(ctx, "owner-1", "Studio")
	require.NoError(t, err)
	company, err = catalog.UpdateCompanyStatus(ctx, company.ID, models.CompanyApproved)
	require.NoError(t, err)

	svc, err := catalog.CreateService(ctx, service.CreateServiceRequest{
		CompanyID: company.ID, Name: "Massage", DurationMinutes: 60, PriceCents: 5000,
	})
	require.NoError(t, err)

	day := int(time.Monday)
	_, err = catalog.AddOperatingWindow(ctx, company.ID, service.WindowRequest{
		DayOfWeek: &day, StartTime: "09:00", EndTime: "12:00",
	})
	require.NoError(t, err)

	bookings := service.NewBookingService(db, nil, nil, 90, &logger,
		service.WithClock(func() time.Time { return fixedNow }))

	deps := Deps{Bookings: bookings, Catalog: catalog, Reviews: service.NewReviewService(db, &logger), Store: db, Limiter: limiter}
	return deps, company, svc
}

func newTestEnv(t *testing.T, cfg config.APIConfig, limiter domain.RateLimiter) *testEnv {
	t.Helper()
	deps, company, svc := newTestDeps(t, limiter)
	logger := zerolog.New(io.Discard)
	server := NewHTTPServer(&cfg, deps, &logger)

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{deps: deps, company: company, service: svc, ts: ts}
}

func openConfig() config.APIConfig {
	return config.APIConfig{Enabled: true, HTTP: config.APIHTTPConfig{Enabled: true}}
}

func (e *testEnv) do(t *testing.T, method, path string, headers map[string]string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func asUser(id string) map[string]string {
	return map[string]string{headerUserID: id}
}

func asCompany(id string) map[string]string {
	return map[string]string{headerCompanyID: id}
}

// stubLimiter allows the first max calls per key.
type stubLimiter struct {
	mu    sync.Mutex
	max   int
	calls map[string]int
	err   error
}

func (l *stubLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if l.calls == nil {
		l.calls = map[string]int{}
	}
	l.calls[key]++
	return l.calls[key] <= l.max, nil
}
