package api

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"slotbook/internal/config"
)

func authConfig() config.APIConfig {
	return config.APIConfig{
		Enabled: true,
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			HeaderExtra:  "x-api-extra",
			APIKeys: []config.APIClientKey{
				{Key: "reader", Extra: "r-extra", Permissions: []string{permRead}},
				{Key: "client", Extra: "c-extra", Permissions: []string{permRead, permWrite}},
				{Key: "root", Extra: "a-extra", Permissions: []string{permAdmin}},
				{Key: "legacy", Extra: "l-extra"},
			},
		},
		RateLimit: config.APIRateLimitConfig{Requests: 100, Window: time.Minute},
	}
}

func TestAuthInterceptor(t *testing.T) {
	cfg := authConfig()
	auth := NewAuthenticator(&cfg, nil, nil)
	interceptor := auth.Unary()

	handler := func(_ context.Context, req any) (any, error) {
		return "ok", nil
	}
	call := func(method string, pairs ...string) error {
		ctx := context.Background()
		if len(pairs) > 0 {
			ctx = metadata.NewIncomingContext(ctx, metadata.Pairs(pairs...))
		}
		_, err := interceptor(ctx, "req", &grpc.UnaryServerInfo{FullMethod: method}, handler)
		return err
	}

	t.Run("Success", func(t *testing.T) {
		assert.NoError(t, call(methodGetAvailability, "x-api-key", "reader", "x-api-extra", "r-extra"))
		assert.NoError(t, call(methodCreateBooking, "x-api-key", "client", "x-api-extra", "c-extra"))
	})

	t.Run("MissingMetadata", func(t *testing.T) {
		assert.Equal(t, codes.Unauthenticated, status.Code(call(methodCreateBooking)))
	})

	t.Run("InvalidKey", func(t *testing.T) {
		err := call(methodCreateBooking, "x-api-key", "invalid", "x-api-extra", "c-extra")
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("InvalidExtra", func(t *testing.T) {
		err := call(methodCreateBooking, "x-api-key", "client", "x-api-extra", "invalid")
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("AvailabilityIsPublic", func(t *testing.T) {
		assert.NoError(t, call(methodGetAvailability))
		assert.NoError(t, call(methodGetAvailability, "x-api-key", "invalid", "x-api-extra", "invalid"))
	})

	t.Run("PermissionDenied", func(t *testing.T) {
		err := call(methodCreateBooking, "x-api-key", "reader", "x-api-extra", "r-extra")
		assert.Equal(t, codes.PermissionDenied, status.Code(err))
		err = call(methodUpdateBookingStatus, "x-api-key", "client", "x-api-extra", "c-extra")
		assert.Equal(t, codes.PermissionDenied, status.Code(err))
	})

	t.Run("AdminAndEmptyPermissions", func(t *testing.T) {
		assert.NoError(t, call(methodUpdateBookingStatus, "x-api-key", "root", "x-api-extra", "a-extra"))
		assert.NoError(t, call(methodUpdateBookingStatus, "x-api-key", "legacy", "x-api-extra", "l-extra"))
	})

	t.Run("HealthIsOpen", func(t *testing.T) {
		assert.NoError(t, call("/grpc.health.v1.Health/Check"))
	})
}

func TestAuthInterceptor_RateLimit(t *testing.T) {
	cfg := authConfig()
	cfg.Auth.Enabled = false
	limiter := &stubLimiter{max: 2}
	interceptor := NewAuthenticator(&cfg, limiter, nil).Unary()

	handler := func(_ context.Context, req any) (any, error) { return "ok", nil }
	info := &grpc.UnaryServerInfo{FullMethod: methodGetAvailability}
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-api-key", "anyone"))

	for i := 0; i < 2; i++ {
		_, err := interceptor(ctx, "req", info, handler)
		assert.NoError(t, err)
	}
	_, err := interceptor(ctx, "req", info, handler)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))

	limiter.err = errors.New("redis down")
	_, err = interceptor(ctx, "req", info, handler)
	assert.NoError(t, err, "limiter failures must not block traffic")
}

func TestAuthInterceptor_EnforcedWhenAPIFlagOff(t *testing.T) {
	cfg := authConfig()
	cfg.Enabled = false
	limiter := &stubLimiter{max: 1}
	interceptor := NewAuthenticator(&cfg, limiter, nil).Unary()
	handler := func(_ context.Context, req any) (any, error) { return "ok", nil }

	_, err := interceptor(context.Background(), "req", &grpc.UnaryServerInfo{FullMethod: methodCreateBooking}, handler)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	info := &grpc.UnaryServerInfo{FullMethod: methodGetAvailability}
	_, err = interceptor(context.Background(), "req", info, handler)
	assert.NoError(t, err)
	_, err = interceptor(context.Background(), "req", info, handler)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
}

func TestHTTPAuth(t *testing.T) {
	cfg := authConfig()
	limiter := &stubLimiter{max: 3}
	env := newTestEnv(t, cfg, limiter)
	availability := "/api/v1/services/" + env.service.ID + "/availability?date=" + monday

	creds := func(key, extra string) map[string]string {
		return map[string]string{"X-Api-Key": key, "X-Api-Extra": extra, headerUserID: "user-1"}
	}

	t.Run("health is open", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/healthz", nil, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("missing credentials", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/v1/bookings", asUser("user-1"), nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "UNAUTHENTICATED", decode[errorBody](t, resp).Code)
	})

	t.Run("availability needs no credentials", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, availability, nil, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("wrong permission", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/v1/bookings", creds("reader", "r-extra"),
			createBookingBody{ServiceID: env.service.ID, Date: monday, TimeSlot: "09:00"})
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("rate limited per key", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			resp := env.do(t, http.MethodGet, availability, creds("client", "c-extra"), nil)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		}
		resp := env.do(t, http.MethodGet, availability, creds("client", "c-extra"), nil)
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

		resp = env.do(t, http.MethodGet, availability, creds("root", "a-extra"), nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestHTTPAuth_PublicRateLimit(t *testing.T) {
	limiter := &stubLimiter{max: 2}
	env := newTestEnv(t, authConfig(), limiter)
	availability := "/api/v1/services/" + env.service.ID + "/availability?date=" + monday

	for i := 0; i < 2; i++ {
		resp := env.do(t, http.MethodGet, availability, nil, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp := env.do(t, http.MethodGet, availability, nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// An unknown key does not buy a fresh bucket.
	resp = env.do(t, http.MethodGet, availability, map[string]string{"X-Api-Key": "made-up"}, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	resp = env.do(t, http.MethodGet, availability, map[string]string{"X-Api-Key": "reader", "X-Api-Extra": "r-extra"}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHTTPAuth_EnforcedWhenAPIFlagOff(t *testing.T) {
	cfg := authConfig()
	cfg.Enabled = false
	env := newTestEnv(t, cfg, nil)

	resp := env.do(t, http.MethodGet, "/api/v1/bookings", asUser("user-1"), nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHasPermission(t *testing.T) {
	assert.True(t, hasPermission(config.APIClientKey{}, permAdmin))
	assert.True(t, hasPermission(config.APIClientKey{Permissions: []string{" manage "}}, permManage))
	assert.False(t, hasPermission(config.APIClientKey{Permissions: []string{permRead}}, permManage))
	assert.True(t, hasPermission(config.APIClientKey{Permissions: []string{permRead}}, ""))
}
