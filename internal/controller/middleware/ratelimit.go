// Package middleware contains HTTP middleware for the controller API.
package middleware

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"sandplane/pkg/api"

	"golang.org/x/time/rate"
)

// Category groups endpoints that share a rate-limit quota.
type Category string

const (
	CategoryHealth    Category = "health"
	CategoryBrowse    Category = "browse"
	CategoryProjects  Category = "projects"
	CategoryPreview   Category = "preview"
	CategoryTelemetry Category = "telemetry"
	CategoryAI        Category = "ai"
	CategoryOther     Category = "other"
)

// Quotas maps a category to its requests-per-minute allowance.
// A zero or missing quota means unlimited.
type Quotas map[Category]int

// DefaultQuotas are the per-minute allowances applied when no override is given.
func DefaultQuotas() Quotas {
	return Quotas{
		CategoryHealth:    300,
		CategoryBrowse:    120,
		CategoryProjects:  60,
		CategoryPreview:   60,
		CategoryTelemetry: 600,
		CategoryAI:        20,
		CategoryOther:     60,
	}
}

// RateLimitError reports that a category's token bucket is empty. RetryAfter
// is the earliest time a token will be available, computed from the bucket
// state rather than a fixed constant.
type RateLimitError struct {
	Category   Category
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Category, e.RetryAfter)
}

// RateLimiter applies per-category token buckets. Limiter instances are
// cached by (category, rpm) so a quota change picks up a fresh bucket while
// unchanged categories keep their state.
type RateLimiter struct {
	mu            sync.Mutex
	limiters      map[string]*rate.Limiter
	quotas        Quotas
	burstFraction float64
	log           *slog.Logger
}

// RateLimiterOption configures a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithQuotas overrides the per-category quotas.
func WithQuotas(q Quotas) RateLimiterOption {
	return func(rl *RateLimiter) { rl.quotas = q }
}

// WithBurstFraction sets the burst size as a fraction of the per-minute
// quota. The burst is always at least 1.
func WithBurstFraction(f float64) RateLimiterOption {
	return func(rl *RateLimiter) { rl.burstFraction = f }
}

// NewRateLimiter creates a rate limiter with the default quotas.
func NewRateLimiter(log *slog.Logger, opts ...RateLimiterOption) *RateLimiter {
	rl := &RateLimiter{
		limiters:      make(map[string]*rate.Limiter),
		quotas:        DefaultQuotas(),
		burstFraction: 0.5,
		log:           log,
	}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

// Check consumes one token from the category's bucket. On exceed it returns
// a RateLimitError carrying the earliest time a token becomes available.
func (rl *RateLimiter) Check(category Category) (time.Duration, error) {
	return rl.checkAt(category, time.Now())
}

func (rl *RateLimiter) checkAt(category Category, now time.Time) (time.Duration, error) {
	rpm, ok := rl.quotas[category]
	if !ok || rpm <= 0 {
		return 0, nil
	}

	limiter := rl.limiterFor(category, rpm)
	res := limiter.ReserveN(now, 1)
	if !res.OK() {
		return 0, &RateLimitError{Category: category, RetryAfter: time.Minute}
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return delay, &RateLimitError{Category: category, RetryAfter: delay}
	}
	return 0, nil
}

func (rl *RateLimiter) limiterFor(category Category, rpm int) *rate.Limiter {
	key := fmt.Sprintf("%s:%d", category, rpm)

	var limiter *rate.Limiter
	rl.locked(func() {
		if cached, ok := rl.limiters[key]; ok {
			limiter = cached
			return
		}
		burst := int(math.Max(1, float64(rpm)*rl.burstFraction))
		limiter = rate.NewLimiter(rate.Limit(rpm)/60, burst)
		rl.limiters[key] = limiter
	})
	return limiter
}

// locked runs f holding the cache mutex. A panic inside f is recovered and
// logged so the limiter keeps serving other requests with its last known
// state.
func (rl *RateLimiter) locked(f func()) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			rl.log.Warn("recovered panic in rate limiter cache", "panic", fmt.Sprint(r))
		}
	}()
	f()
}

// Middleware classifies each request into a category and rejects it with
// 429 when the category's bucket is empty. Rejections are expected under
// heavy load and are logged at warning level, not as errors.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			category := Classify(r)
			retryAfter, err := rl.Check(category)
			if err != nil {
				rl.log.Warn("rate limit exceeded",
					"category", string(category),
					"path", r.URL.Path,
					"retry_after", retryAfter.String(),
				)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(retryAfter)))
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(api.ErrorResponse{
					Error: err.Error(),
					Code:  "rate_limit_exceeded",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// retryAfterSeconds rounds a delay up to whole seconds, minimum 1.
func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Classify maps a request path to its rate-limit category.
func Classify(r *http.Request) Category {
	path := r.URL.Path
	switch {
	case path == "/healthz" || path == "/readyz" || path == "/metrics":
		return CategoryHealth
	case strings.HasPrefix(path, "/projects"):
		return CategoryProjects
	case strings.HasPrefix(path, "/preview"):
		return CategoryPreview
	case strings.HasPrefix(path, "/telemetry"):
		return CategoryTelemetry
	case strings.HasPrefix(path, "/ai"):
		return CategoryAI
	case r.Method == http.MethodGet &&
		(strings.HasPrefix(path, "/providers") ||
			strings.HasPrefix(path, "/artifacts") ||
			strings.HasPrefix(path, "/executions")):
		return CategoryBrowse
	default:
		return CategoryOther
	}
}
