package middleware

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tidb-charts/internal/chartresult"
)

const (
	clientIdleTTL     = 10 * time.Minute
	maxTrackedClients = 10000
)

// RateLimitConfig configures token bucket limiting. With PerClient set each
// remote host gets its own bucket; otherwise one bucket is shared.
type RateLimitConfig struct {
	Enabled   bool
	RPS       float64
	Burst     int
	PerClient bool
}

// RateLimitMiddleware rejects requests over the configured rate with 429
// and a Retry-After hint. A non-positive rate or burst disables limiting.
func RateLimitMiddleware(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if !cfg.Enabled || cfg.RPS <= 0 || cfg.Burst <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	limiters := newLimiterSet(rate.Limit(cfg.RPS), cfg.Burst, cfg.PerClient)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wait, ok := limiters.take(clientKey(r), time.Now())
			if !ok {
				writeRateLimited(w, wait)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type limiterSet struct {
	limit     rate.Limit
	burst     int
	perClient bool

	mu      sync.Mutex
	shared  *rate.Limiter
	clients map[string]*clientLimiter
}

func newLimiterSet(limit rate.Limit, burst int, perClient bool) *limiterSet {
	return &limiterSet{
		limit:     limit,
		burst:     burst,
		perClient: perClient,
		shared:    rate.NewLimiter(limit, burst),
		clients:   make(map[string]*clientLimiter),
	}
}

// take consumes a token for key. When none is available it reports how
// long until one will be.
func (s *limiterSet) take(key string, now time.Time) (time.Duration, bool) {
	limiter := s.limiterFor(key, now)

	reservation := limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return time.Second, false
	}
	if wait := reservation.DelayFrom(now); wait > 0 {
		reservation.CancelAt(now)
		return wait, false
	}
	return 0, true
}

func (s *limiterSet) limiterFor(key string, now time.Time) *rate.Limiter {
	if !s.perClient {
		return s.shared
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.clients[key]; ok {
		entry.lastSeen = now
		return entry.limiter
	}
	if len(s.clients) >= maxTrackedClients {
		s.evictIdleLocked(now)
	}
	entry := &clientLimiter{limiter: rate.NewLimiter(s.limit, s.burst), lastSeen: now}
	s.clients[key] = entry
	return entry.limiter
}

func (s *limiterSet) evictIdleLocked(now time.Time) {
	for key, entry := range s.clients {
		if now.Sub(entry.lastSeen) > clientIdleTTL {
			delete(s.clients, key)
		}
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeRateLimited(w http.ResponseWriter, wait time.Duration) {
	seconds := int(math.Ceil(wait.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(chartresult.ErrorResponse{Success: false, Error: "rate limit exceeded"})
}
