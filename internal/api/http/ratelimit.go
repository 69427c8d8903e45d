package http

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"

	"github.com/deskflow/helpdesk-assistant/internal/auth"
	apperrors "github.com/deskflow/helpdesk-assistant/pkg/util/errorutil"
)

const limiterIdleTTL = 10 * time.Minute

type callerLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter bounds requests per authenticated caller, falling back to the
// client IP for anonymous routes.
type RateLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	callers map[string]*callerLimiter
	now     func() time.Time
}

// NewRateLimiter builds a limiter allowing perSecond sustained requests with
// the given burst. A non-positive rate disables limiting.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		callers: make(map[string]*callerLimiter),
		now:     time.Now,
	}
}

// Handle is the fiber middleware.
func (l *RateLimiter) Handle(c *fiber.Ctx) error {
	if l.limit <= 0 {
		return c.Next()
	}
	key := c.IP()
	if principal, ok := auth.PrincipalFromContext(c); ok {
		key = "user:" + principal.UserID
	}
	if !l.allow(key) {
		return apperrors.NewTooManyRequests("too many requests, slow down")
	}
	return c.Next()
}

func (l *RateLimiter) allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.callers[key]
	if !ok {
		entry = &callerLimiter{limiter: rate.NewLimiter(l.limit, l.burst), lastSeen: now}
		l.callers[key] = entry
		l.sweep(now)
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// sweep drops limiters idle for longer than limiterIdleTTL. Called with mu held.
func (l *RateLimiter) sweep(now time.Time) {
	for key, entry := range l.callers {
		if now.Sub(entry.lastSeen) > limiterIdleTTL {
			delete(l.callers, key)
		}
	}
}
