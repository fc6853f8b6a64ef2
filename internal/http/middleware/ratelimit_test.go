package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSenderLimiterBurstThenRefill(t *testing.T) {
	now := time.Now()
	l := newSenderLimiter(1, 2)
	l.now = func() time.Time { return now }

	if !l.allow("203.0.113.7") || !l.allow("203.0.113.7") {
		t.Fatalf("burst of 2 should pass")
	}
	if l.allow("203.0.113.7") {
		t.Fatalf("third request in the same instant should be rejected")
	}

	now = now.Add(1500 * time.Millisecond)
	if !l.allow("203.0.113.7") {
		t.Fatalf("expected a token back after refill")
	}
	if l.allow("203.0.113.7") {
		t.Fatalf("only one token should have refilled")
	}
}

func TestSenderLimiterIsPerClient(t *testing.T) {
	l := newSenderLimiter(1, 1)

	if !l.allow("203.0.113.7") {
		t.Fatalf("first client should pass")
	}
	if !l.allow("203.0.113.8") {
		t.Fatalf("second client has its own bucket")
	}
	if l.allow("203.0.113.7") {
		t.Fatalf("first client exhausted its burst")
	}
}

func TestSenderLimiterSweepsIdleClients(t *testing.T) {
	now := time.Now()
	l := newSenderLimiter(1, 1)
	l.now = func() time.Time { return now }
	l.allow("203.0.113.7")

	now = now.Add(staleAfter + 2*time.Minute)
	l.allow("203.0.113.8")

	l.mu.Lock()
	_, kept := l.clients["203.0.113.7"]
	l.mu.Unlock()
	if kept {
		t.Fatalf("idle bucket should have been swept")
	}
}

func TestRateLimitRejectsFloodFromOneAddress(t *testing.T) {
	handler := RateLimit(1, 2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/callback/sms", nil)
		req.Header.Set("X-Real-Ip", "203.0.113.7")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		last = rec.Code
	}

	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after the burst, got %d", last)
	}
}

func TestRateLimitKeysOnHostNotPort(t *testing.T) {
	handler := RateLimit(1, 1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRequest(http.MethodPost, "/callback/sms", nil)
	first.RemoteAddr = "198.51.100.4:40001"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", rec.Code)
	}

	second := httptest.NewRequest(http.MethodPost, "/callback/sms", nil)
	second.RemoteAddr = "198.51.100.4:40002"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, second)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("same host on a new port should share the bucket, got %d", rec.Code)
	}
}
