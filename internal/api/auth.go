package api

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"slotbook/internal/config"
	"slotbook/internal/domain"
)

const (
	apiKeyHeaderDefault   = "x-api-key"
	apiExtraHeaderDefault = "x-api-extra"
	clientKeyUnknown      = "unknown"

	// permPublic marks calls that need no credentials but are still
	// rate-limited.
	permPublic = ""
	permRead   = "read"
	permWrite  = "write"
	permManage = "manage"
	permAdmin  = "admin"
)

// Authenticator checks API keys, their permissions and the per-client rate
// limit. The HTTP middleware and the gRPC interceptor share it.
type Authenticator struct {
	cfg     *config.APIConfig
	clients map[string]config.APIClientKey
	limiter domain.RateLimiter
	log     zerolog.Logger
}

func NewAuthenticator(cfg *config.APIConfig, limiter domain.RateLimiter, logger *zerolog.Logger) *Authenticator {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}

	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "auth").Logger()
	}

	return &Authenticator{cfg: cfg, clients: m, limiter: limiter, log: log}
}

func (a *Authenticator) apiKeyHeader() string {
	h := strings.ToLower(strings.TrimSpace(a.cfg.Auth.HeaderAPIKey))
	if h == "" {
		return apiKeyHeaderDefault
	}
	return h
}

func (a *Authenticator) extraHeader() string {
	h := strings.ToLower(strings.TrimSpace(a.cfg.Auth.HeaderExtra))
	if h == "" {
		return apiExtraHeaderDefault
	}
	return h
}

// check validates the credentials against the permission the call needs.
func (a *Authenticator) check(apiKey, extra, required string) error {
	if !a.cfg.Auth.Enabled {
		return nil
	}
	if apiKey == "" || extra == "" {
		return errUnauthenticated
	}

	client, ok := a.clients[apiKey]
	if !ok {
		return errUnauthenticated
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return errUnauthenticated
	}

	if !hasPermission(client, required) {
		return errPermissionDenied
	}
	return nil
}

// hasPermission treats an empty permission list as allow-all; admin implies
// every other permission.
func hasPermission(client config.APIClientKey, required string) bool {
	if required == "" || len(client.Permissions) == 0 {
		return true
	}
	for _, p := range client.Permissions {
		p = strings.TrimSpace(p)
		if p == required || p == permAdmin {
			return true
		}
	}
	return false
}

// allow fails open when the limiter itself errors.
func (a *Authenticator) allow(ctx context.Context, key string) error {
	rl := a.cfg.RateLimit
	if a.limiter == nil || rl.Requests <= 0 || rl.Window <= 0 {
		return nil
	}
	ok, err := a.limiter.Allow(ctx, key, rl.Requests, rl.Window)
	if err != nil {
		a.log.Warn().Err(err).Str("client", key).Msg("rate limiter unavailable")
		return nil
	}
	if !ok {
		return errRateLimited
	}
	return nil
}

// Require returns chi-compatible middleware guarding routes with perm.
// Credentials are only checked when auth is enabled; the rate limit always
// applies.
func (a *Authenticator) Require(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := strings.TrimSpace(r.Header.Get(a.apiKeyHeader()))
			extra := strings.TrimSpace(r.Header.Get(a.extraHeader()))
			switch err := a.check(apiKey, extra, perm); err {
			case nil:
			case errPermissionDenied:
				writeError(w, http.StatusForbidden, "FORBIDDEN", err.Error())
				return
			default:
				writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", err.Error())
				return
			}

			if err := a.allow(r.Context(), a.httpClientKey(r)); err != nil {
				writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", err.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Public rate-limits anonymous routes. Callers presenting valid credentials
// get their own bucket, everyone else is limited per remote address.
func (a *Authenticator) Public() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := remoteHost(r)
			apiKey := strings.TrimSpace(r.Header.Get(a.apiKeyHeader()))
			extra := strings.TrimSpace(r.Header.Get(a.extraHeader()))
			if apiKey != "" && a.check(apiKey, extra, "") == nil {
				key = apiKey
			}
			if err := a.allow(r.Context(), key); err != nil {
				writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", err.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *Authenticator) httpClientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.apiKeyHeader())); apiKey != "" {
		return apiKey
	}
	return remoteHost(r)
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return clientKeyUnknown
}

func (a *Authenticator) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !isBookingMethod(info.FullMethod) {
			return handler(ctx, req)
		}

		md, _ := metadata.FromIncomingContext(ctx)
		apiKey := first(md.Get(a.apiKeyHeader()))
		extra := first(md.Get(a.extraHeader()))
		perm := requiredPermission(info.FullMethod)

		key := apiKey
		if perm == permPublic {
			if apiKey == "" || a.check(apiKey, extra, "") != nil {
				key = ""
			}
		} else {
			switch err := a.check(apiKey, extra, perm); err {
			case nil:
			case errPermissionDenied:
				return nil, status.Error(codes.PermissionDenied, err.Error())
			default:
				return nil, status.Error(codes.Unauthenticated, err.Error())
			}
		}

		if key == "" {
			key = peerAddr(ctx)
		}
		if err := a.allow(ctx, key); err != nil {
			return nil, status.Error(codes.ResourceExhausted, err.Error())
		}
		return handler(ctx, req)
	}
}

func requiredPermission(fullMethod string) string {
	switch fullMethod {
	case methodGetAvailability:
		return permPublic
	case methodCreateBooking, methodCancelBooking:
		return permWrite
	case methodUpdateBookingStatus:
		return permManage
	default:
		return permAdmin
	}
}

func isBookingMethod(fullMethod string) bool {
	return strings.HasPrefix(fullMethod, "/"+bookingServiceName+"/")
}

func peerAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return clientKeyUnknown
}

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}
