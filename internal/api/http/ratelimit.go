package httpapi

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"netscope/internal/domain"
	"netscope/internal/infra"
	"netscope/internal/pkg/clientip"
)

// maxTrackedClients bounds the number of per-client buckets each limiter keeps.
const maxTrackedClients = 10000

// RateLimiter is a per-client token bucket refilled at Requests per Window.
type RateLimiter struct {
	name  string
	limit rate.Limit
	burst int
	retry int

	mu      sync.Mutex
	clients *lru.Cache[string, *rate.Limiter]
}

// NewRateLimiter builds a limiter from a request quota; a non-positive quota disables it.
func NewRateLimiter(name string, cfg infra.RateLimit) (*RateLimiter, error) {
	clients, err := lru.New[string, *rate.Limiter](maxTrackedClients)
	if err != nil {
		return nil, fmt.Errorf("rate limiter %s: %w", name, err)
	}

	l := &RateLimiter{name: name, clients: clients, limit: rate.Inf}
	if cfg.Requests > 0 && cfg.Window > 0 {
		interval := cfg.Window / time.Duration(cfg.Requests)
		l.limit = rate.Every(interval)
		l.burst = cfg.Requests
		l.retry = int(math.Ceil(interval.Seconds()))
	}
	return l, nil
}

// Allow consumes one token for key.
func (l *RateLimiter) Allow(key string) bool {
	if l.limit == rate.Inf {
		return true
	}

	l.mu.Lock()
	limiter, ok := l.clients.Get(key)
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.clients.Add(key, limiter)
	}
	l.mu.Unlock()

	return limiter.Allow()
}

// Middleware rejects requests over quota with 429.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.Allow(clientip.Resolve(r, "")) {
			next.ServeHTTP(w, r)
			return
		}

		infra.RateLimitedTotal.WithLabelValues(l.name).Inc()
		if l.retry > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(l.retry))
		}
		status, body := translateError(fmt.Errorf("%w: %s limiter", domain.ErrRateLimited, l.name), false)
		writeJSON(w, status, body)
	})
}
