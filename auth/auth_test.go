package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSessionRoundTrip(t *testing.T) {
	rec := httptest.NewRecorder()
	CreateSession(rec, 42)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}

	uid, ok := ParseSession(req)
	if !ok || uid != 42 {
		t.Fatalf("expected uid 42, got %d ok=%v", uid, ok)
	}
}

func TestParseSession_TamperedSignature(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: "42.bogus"})

	if _, ok := ParseSession(req); ok {
		t.Fatal("expected tampered session to be rejected")
	}
}

func TestRequireAuth(t *testing.T) {
	called := false
	h := RequireAuth(nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	// No session: 401, handler not reached.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized || called {
		t.Fatalf("expected 401 without session, got %d called=%v", rec.Code, called)
	}

	// Valid session in context: handler reached.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithUserID(req.Context(), 7))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if !called {
		t.Fatal("expected handler to be called with session")
	}
}

func TestRequireAuth_VerifierRejects(t *testing.T) {
	h := RequireAuth(func(_ context.Context, uid uint) bool { return false },
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be reached")
		}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithUserID(req.Context(), 7))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 when verifier rejects, got %d", rec.Code)
	}
}

func TestRequireAuth_VerifierPerHandler(t *testing.T) {
	// Two handlers with different verifiers must not influence each other.
	okCalled := false
	allow := RequireAuth(func(_ context.Context, uid uint) bool { return true },
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { okCalled = true }))
	deny := RequireAuth(func(_ context.Context, uid uint) bool { return false },
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("denying handler should not be reached")
		}))

	newReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		return req.WithContext(WithUserID(req.Context(), 7))
	}

	rec := httptest.NewRecorder()
	deny.ServeHTTP(rec, newReq())
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 from denying verifier, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	allow.ServeHTTP(rec, newReq())
	if rec.Code != http.StatusOK || !okCalled {
		t.Fatalf("expected allowing verifier to pass through, got %d called=%v", rec.Code, okCalled)
	}
}
