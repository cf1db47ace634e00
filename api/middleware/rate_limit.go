package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/printlab/printlab-backend/api/responses"
	pkgerrors "github.com/printlab/printlab-backend/pkg/errors"
	"github.com/printlab/printlab-backend/pkg/logger"
)

type rateLimiterStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimitPolicy throttles one route group by client IP and by
// authenticated user. A limit of zero switches that dimension off.
type RateLimitPolicy struct {
	name      string
	window    time.Duration
	ipLimit   int
	userLimit int
}

func NewRateLimitPolicy(name string, window time.Duration, ipLimit, userLimit int) RateLimitPolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "default"
	}
	return RateLimitPolicy{name: name, window: window, ipLimit: ipLimit, userLimit: userLimit}
}

type limitDimension struct {
	kind  string
	limit int
	key   func(*http.Request) string
}

func (p RateLimitPolicy) dimensions() []limitDimension {
	if p.window <= 0 {
		return nil
	}
	var dims []limitDimension
	if p.ipLimit > 0 {
		dims = append(dims, limitDimension{kind: "ip", limit: p.ipLimit, key: clientIP})
	}
	if p.userLimit > 0 {
		dims = append(dims, limitDimension{kind: "user", limit: p.userLimit, key: func(r *http.Request) string {
			return UserIDFromContext(r.Context())
		}})
	}
	return dims
}

// retryAfter is the window rounded up to whole seconds.
func (p RateLimitPolicy) retryAfter() string {
	return strconv.Itoa(int(math.Ceil(p.window.Seconds())))
}

// RateLimit rejects a request with 429 once any dimension exceeds its limit
// inside the current window. A dimension with no key for the request (an
// anonymous caller on the user dimension) is skipped. Store failures are 503.
func RateLimit(policy RateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return limiter(policy, store, logg, false, func(ctx context.Context, w http.ResponseWriter) {
		w.Header().Set("Retry-After", policy.retryAfter())
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
	})
}

// WebhookRateLimit throttles gateway deliveries without ever leaving the 200
// contract: a blocked delivery gets a failed ack, and a store failure lets the
// delivery through.
func WebhookRateLimit(policy RateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return limiter(policy, store, logg, true, func(_ context.Context, w http.ResponseWriter) {
		responses.WriteWebhookAck(w, false, "rate limited")
	})
}

func limiter(
	policy RateLimitPolicy,
	store rateLimiterStore,
	logg *logger.Logger,
	failOpen bool,
	reject func(context.Context, http.ResponseWriter),
) func(http.Handler) http.Handler {
	dims := policy.dimensions()
	return func(next http.Handler) http.Handler {
		if len(dims) == 0 || store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			for _, dim := range dims {
				subject := dim.key(r)
				if subject == "" {
					continue
				}
				scope := policy.name + ":" + dim.kind + ":" + subject
				allowed, hits, err := store.FixedWindowAllow(ctx, scope, int64(dim.limit), policy.window)
				if err != nil {
					if failOpen {
						if logg != nil {
							logg.Warn(logg.WithFields(ctx, map[string]any{
								"policy": policy.name,
								"error":  err.Error(),
							}), "rate_limit.store_unavailable")
						}
						break
					}
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiter unavailable"))
					return
				}
				if !allowed {
					if logg != nil {
						logg.Warn(logg.WithFields(ctx, map[string]any{
							"policy":    policy.name,
							"dimension": dim.kind,
							"hits":      hits,
							"limit":     dim.limit,
						}), "rate_limit.blocked")
					}
					reject(ctx, w)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP takes the first X-Forwarded-For hop, then X-Real-IP, then the
// socket peer. Header values that are not IP addresses are ignored.
func clientIP(r *http.Request) string {
	if first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); first != "" {
		if addr, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
			return addr.String()
		}
	}
	if addr, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return addr.String()
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
