package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORSMiddleware_AllowedOrigin(t *testing.T) {
	m := NewCORSMiddleware([]string{"https://app.example.com"})
	handler := m.Handler(echoCaller())

	req := httptest.NewRequest(http.MethodGet, "/listings", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("allow origin: %q", got)
	}
}

func TestCORSMiddleware_DisallowedOrigin(t *testing.T) {
	m := NewCORSMiddleware([]string{"https://app.example.com"})
	handler := m.Handler(echoCaller())

	req := httptest.NewRequest(http.MethodGet, "/listings", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow origin: %q", got)
	}
}

func TestCORSMiddleware_Wildcard(t *testing.T) {
	m := NewCORSMiddleware([]string{"*"})
	handler := m.Handler(echoCaller())

	req := httptest.NewRequest(http.MethodGet, "/listings", nil)
	req.Header.Set("Origin", "https://anywhere.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://anywhere.example.com" {
		t.Fatalf("allow origin: %q", got)
	}
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	m := NewCORSMiddleware([]string{"*"})
	nextCalled := false
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/listings", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status: %d", rec.Code)
	}
	if nextCalled {
		t.Fatalf("preflight reached the inner handler")
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got == "" {
		t.Fatalf("allow methods missing")
	}
}
