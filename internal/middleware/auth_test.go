package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/R3E-Network/exchange_layer/pkg/logger"
)

func echoCaller() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Caller", Caller(r.Context()))
		w.Header().Set("X-Role", Role(r.Context()))
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	m := NewAuthMiddleware("secret", logger.NewNop(), nil)
	token, err := m.IssueToken("NAddr1", RoleAdmin, time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/listings", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	m.Handler(echoCaller()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	if got := rec.Header().Get("X-Caller"); got != "NAddr1" {
		t.Fatalf("caller: %s", got)
	}
	if got := rec.Header().Get("X-Role"); got != RoleAdmin {
		t.Fatalf("role: %s", got)
	}
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	m := NewAuthMiddleware("secret", logger.NewNop(), nil)
	other := NewAuthMiddleware("other-secret", logger.NewNop(), nil)

	expired, err := m.IssueToken("NAddr1", "", -time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	forged, err := other.IssueToken("NAddr1", "", time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"garbage token", "Bearer not-a-token"},
		{"expired token", "Bearer " + expired},
		{"wrong secret", "Bearer " + forged},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/listings", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			m.Handler(echoCaller()).ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status: %d", rec.Code)
			}
		})
	}
}

func TestAuthMiddleware_SkipPaths(t *testing.T) {
	m := NewAuthMiddleware("secret", logger.NewNop(), []string{"/healthz"})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	m.Handler(echoCaller()).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("skip path status: %d", rec.Code)
	}
}

func TestRequireCaller(t *testing.T) {
	handler := RequireCaller(echoCaller())

	req := httptest.NewRequest(http.MethodPost, "/listings", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing caller status: %d", rec.Code)
	}

	m := NewAuthMiddleware("secret", logger.NewNop(), nil)
	token, err := m.IssueToken("NAddr1", "", time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	req = httptest.NewRequest(http.MethodPost, "/listings", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	m.Handler(RequireCaller(echoCaller())).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated caller status: %d", rec.Code)
	}
	if got := rec.Header().Get("X-Caller"); got != "NAddr1" {
		t.Fatalf("caller: %s", got)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2, logger.NewNop())
	handler := rl.Handler(echoCaller())

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/listings", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		statuses = append(statuses, rec.Code)
	}
	if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK {
		t.Fatalf("burst requests rejected: %v", statuses)
	}
	if statuses[2] != http.StatusTooManyRequests {
		t.Fatalf("third request not limited: %v", statuses)
	}

	// A different client has its own bucket.
	req := httptest.NewRequest(http.MethodGet, "/listings", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("independent client limited: %d", rec.Code)
	}
}
