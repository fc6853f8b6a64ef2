// Package middleware holds HTTP middleware for the bridge's public
// surface: throttling of the SMS callback route, CORS for the bindings
// admin page, and structured request logging.
package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// staleAfter is how long a sender's bucket may sit idle before it is
// dropped from the limiter.
const staleAfter = 10 * time.Minute

// senderLimiter keeps a token bucket per client address. Buckets refill
// continuously at rate tokens/sec up to burst.
type senderLimiter struct {
	mu        sync.Mutex
	clients   map[string]*tokenBucket
	rate      float64
	burst     float64
	lastSweep time.Time

	now func() time.Time
}

type tokenBucket struct {
	tokens float64
	seen   time.Time
}

func newSenderLimiter(rate float64, burst int) *senderLimiter {
	if burst < 1 {
		burst = 1
	}
	return &senderLimiter{
		clients: make(map[string]*tokenBucket),
		rate:    rate,
		burst:   float64(burst),
		now:     time.Now,
	}
}

// allow refills addr's bucket for the elapsed time, then tries to spend
// one token.
func (l *senderLimiter) allow(addr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	b, ok := l.clients[addr]
	if !ok {
		b = &tokenBucket{tokens: l.burst}
		l.clients[addr] = b
	} else {
		b.tokens += now.Sub(b.seen).Seconds() * l.rate
		if b.tokens > l.burst {
			b.tokens = l.burst
		}
	}
	b.seen = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// sweep evicts buckets idle longer than staleAfter. It runs inline on
// the allow path at most once per minute, so the limiter needs no
// background goroutine.
func (l *senderLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < time.Minute {
		return
	}
	l.lastSweep = now
	for addr, b := range l.clients {
		if now.Sub(b.seen) > staleAfter {
			delete(l.clients, addr)
		}
	}
}

// RateLimit throttles requests to rate/sec per client address with the
// given burst, answering 429 once a sender runs dry. Meant for the SMS
// callback route: a gateway redelivering a backlog after an outage can
// otherwise flood the portal API behind the bridge.
func RateLimit(rate float64, burst int) func(http.Handler) http.Handler {
	limiter := newSenderLimiter(rate, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.allow(clientAddr(r)) {
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientAddr trusts X-Real-Ip when chi's RealIP middleware has set it,
// otherwise it uses the connection address with the port stripped so
// one sender cannot dodge the limiter by reconnecting.
func clientAddr(r *http.Request) string {
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
