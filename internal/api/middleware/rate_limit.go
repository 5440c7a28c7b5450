package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"ontohub/internal/pkg/errors"
	"ontohub/internal/platform/config"
)

const (
	LimitRead  = "api_read"
	LimitWrite = "api_write"
)

const idleClientTTL = 10 * time.Minute

type RateLimiter struct {
	store  sync.Map // map[string]*client
	limits map[string]rate.Limit
	burst  int
	done   chan struct{}
	once   sync.Once
}

type client struct {
	limiter *rate.Limiter

	mu         sync.Mutex
	lastAccess time.Time
}

func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	rl := &RateLimiter{
		limits: map[string]rate.Limit{},
		burst:  burst,
		done:   make(chan struct{}),
	}
	if cfg.ReadPerMinute > 0 {
		rl.limits[LimitRead] = rate.Limit(float64(cfg.ReadPerMinute) / 60.0)
	}
	if cfg.WritePerMinute > 0 {
		rl.limits[LimitWrite] = rate.Limit(float64(cfg.WritePerMinute) / 60.0)
	}

	go rl.cleanupLoop()

	return rl
}

// Stop ends the cleanup loop.
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.done) })
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(idleClientTTL)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case now := <-ticker.C:
			rl.evictIdle(now)
		}
	}
}

func (rl *RateLimiter) evictIdle(now time.Time) {
	rl.store.Range(func(key, value interface{}) bool {
		c := value.(*client)
		c.mu.Lock()
		if now.Sub(c.lastAccess) > idleClientTTL {
			rl.store.Delete(key)
		}
		c.mu.Unlock()
		return true
	})
}

// Allow reports whether key may spend one token of the limitType budget.
// Budgets that are not configured always allow.
func (rl *RateLimiter) Allow(key, limitType string) bool {
	limit, ok := rl.limits[limitType]
	if !ok {
		return true
	}

	now := time.Now()
	val, _ := rl.store.LoadOrStore(key+":"+limitType, &client{
		limiter:    rate.NewLimiter(limit, rl.burst),
		lastAccess: now,
	})

	c := val.(*client)
	c.mu.Lock()
	c.lastAccess = now
	c.mu.Unlock()

	return c.limiter.AllowN(now, 1)
}

func (rl *RateLimiter) Limit(limitType string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(clientIP(r), limitType) {
				w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfter(limitType)))
				errors.WriteError(w, http.StatusTooManyRequests, errors.ErrCodeRateLimited, "Rate limit exceeded", nil)
				return
			}

			next(w, r)
		}
	}
}

// retryAfter is the whole number of seconds until one token refills.
func (rl *RateLimiter) retryAfter(limitType string) int {
	limit := rl.limits[limitType]
	if limit <= 0 {
		return 60
	}
	return int(math.Max(1, math.Ceil(1/float64(limit))))
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
