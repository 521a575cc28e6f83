package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestLimiter(t *testing.T, perMinute int) *Limiter {
	t.Helper()
	rl := NewLimiter(Config{RequestsPerMinute: perMinute, CleanupInterval: time.Hour})
	t.Cleanup(rl.Stop)
	return rl
}

func TestAllowEnforcesPerClientBudget(t *testing.T) {
	rl := newTestLimiter(t, 3)

	for i := 0; i < 3; i++ {
		if !rl.Allow("192.0.2.1") {
			t.Fatalf("request %d should fit in the window", i+1)
		}
	}
	if rl.Allow("192.0.2.1") {
		t.Error("fourth request should exceed the budget")
	}

	// A different client has its own window.
	if !rl.Allow("192.0.2.2") {
		t.Error("other client should not be affected")
	}
}

func TestActiveClientsCountsTrackedIPs(t *testing.T) {
	rl := newTestLimiter(t, 10)

	if got := rl.ActiveClients(); got != 0 {
		t.Fatalf("ActiveClients = %d before any request, want 0", got)
	}

	rl.Allow("192.0.2.1")
	rl.Allow("192.0.2.1")
	rl.Allow("192.0.2.2")

	if got := rl.ActiveClients(); got != 2 {
		t.Errorf("ActiveClients = %d, want 2", got)
	}

	rl.cleanupStaleEntries()
	if got := rl.ActiveClients(); got != 2 {
		t.Errorf("ActiveClients = %d after cleanup of fresh entries, want 2", got)
	}
}

func TestCleanupDropsIdleClients(t *testing.T) {
	rl := newTestLimiter(t, 10)

	rl.Allow("192.0.2.1")
	rl.mu.Lock()
	rl.clients["192.0.2.1"].lastRequest = time.Now().Add(-11 * time.Minute)
	rl.mu.Unlock()

	rl.cleanupStaleEntries()
	if got := rl.ActiveClients(); got != 0 {
		t.Errorf("ActiveClients = %d after idle cleanup, want 0", got)
	}
}

func TestMiddlewareRejectsOverBudget(t *testing.T) {
	rl := newTestLimiter(t, 1)

	handler := rl.Middleware(func(r *http.Request) string { return "192.0.2.1" }, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want 429", second.Code)
	}
	if second.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q, want 60", second.Header().Get("Retry-After"))
	}
}
