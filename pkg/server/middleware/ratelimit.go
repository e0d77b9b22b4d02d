package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/golang/groupcache/lru"
	"golang.org/x/time/rate"

	"aegis-hq/firewall/pkg/server/types"
)

// DefaultMaxClients bounds how many per-client limiters are remembered.
// The least recently seen client is evicted first.
const DefaultMaxClients = 10000

// ClientLimiter hands out one token bucket per client address.
type ClientLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters *lru.Cache
}

// NewClientLimiter creates a limiter allowing rps requests per second with
// the given burst for each client. maxClients <= 0 uses DefaultMaxClients.
func NewClientLimiter(rps float64, burst, maxClients int) *ClientLimiter {
	if maxClients <= 0 {
		maxClients = DefaultMaxClients
	}
	if burst <= 0 {
		burst = int(math.Max(1, math.Ceil(rps)))
	}
	return &ClientLimiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		limiters: lru.New(maxClients),
	}
}

// Allow reports whether the client may make a request now.
func (l *ClientLimiter) Allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if v, ok := l.limiters.Get(client); ok {
		return v.(*rate.Limiter).Allow()
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	l.limiters.Add(client, lim)
	return lim.Allow()
}

// Clients returns the number of tracked clients.
func (l *ClientLimiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limiters.Len()
}

// RateLimitMiddleware rejects requests from clients that exceed their token
// bucket with 429 Too Many Requests. onLimited, when set, is called for each
// rejected request.
//
// Example usage:
//
//	limiter := NewClientLimiter(50, 100, 0)
//	handler = RateLimitMiddleware(limiter, collector.RecordRateLimited)(handler)
func RateLimitMiddleware(limiter *ClientLimiter, onLimited func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter.Allow(ClientAddress(r)) {
				next.ServeHTTP(w, r)
				return
			}
			if onLimited != nil {
				onLimited()
			}
			retry := 1
			if limiter.limit > 0 {
				retry = int(math.Ceil(1 / float64(limiter.limit)))
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			types.NewErrorResponse("Rate limit exceeded", types.ErrorTypeRateLimitExceeded, "", "").Write(w)
		})
	}
}

// ClientAddress returns the host part of the request's remote address.
func ClientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
