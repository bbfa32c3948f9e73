package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHMAC(t *testing.T) {
	secret := []byte("mysecret")
	msg := "hello"
	sig := computeHMAC(msg, secret)
	if !validateHMAC(msg, sig, secret) {
		t.Errorf("validateHMAC failed for valid signature")
	}
	if validateHMAC(msg, sig+"bad", secret) {
		t.Errorf("validateHMAC passed for invalid signature")
	}
}

func TestCookieRoundTrip(t *testing.T) {
	secret := []byte("mysessionsecret")
	u := &UserSessionData{
		UserID:    "user123",
		SignedIn:  true,
		ExpiresAt: time.Now().Add(1 * time.Hour).Unix(),
	}
	// Set the cookie on a response recorder
	rr := httptest.NewRecorder()
	err := SetSessionCookie(rr, u, secret)
	if err != nil {
		t.Fatalf("SetSessionCookie error: %v", err)
	}
	// Extract cookie and add to a new request
	res := rr.Result()
	cookies := res.Cookies()
	if len(cookies) == 0 {
		t.Fatal("no cookie set")
	}
	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(cookies[0])
	got, err := GetSessionFromCookie(req, secret)
	if err != nil {
		t.Fatalf("GetSessionFromCookie error: %v", err)
	}
	if got.UserID != u.UserID {
		t.Errorf("expected UserID %s, got %s", u.UserID, got.UserID)
	}
	if !got.SignedIn {
		t.Errorf("expected SignedIn true")
	}
}

func TestCookieRejectsTampering(t *testing.T) {
	secret := []byte("mysessionsecret")
	u := &UserSessionData{UserID: "user123", SignedIn: true, ExpiresAt: time.Now().Add(time.Hour).Unix()}
	rr := httptest.NewRecorder()
	if err := SetSessionCookie(rr, u, secret); err != nil {
		t.Fatalf("SetSessionCookie error: %v", err)
	}
	cookie := rr.Result().Cookies()[0]
	cookie.Value = cookie.Value[:len(cookie.Value)-2] + "xx"
	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(cookie)
	if _, err := GetSessionFromCookie(req, secret); err == nil {
		t.Error("expected error for tampered cookie")
	}
}

func TestExpiredSessionRejected(t *testing.T) {
	secret := []byte("mysessionsecret")
	u := &UserSessionData{UserID: "user123", SignedIn: true, ExpiresAt: time.Now().Add(-time.Minute).Unix()}
	rr := httptest.NewRecorder()
	if err := SetSessionCookie(rr, u, secret); err != nil {
		t.Fatalf("SetSessionCookie error: %v", err)
	}
	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(rr.Result().Cookies()[0])
	if _, err := GetSessionFromCookie(req, secret); err == nil {
		t.Error("expected error for expired session")
	}
}

func TestContextSession(t *testing.T) {
	u := &UserSessionData{UserID: "ctxuser"}
	ctx := u.WithContext(context.Background())
	got, err := GetSession(ctx)
	if err != nil {
		t.Errorf("GetSession error: %v", err)
	}
	if got.UserID != u.UserID {
		t.Errorf("expected %s, got %s", u.UserID, got.UserID)
	}
	// error case
	_, err = GetSession(context.Background())
	if err == nil {
		t.Errorf("expected error for missing session in context")
	}
}

func TestRequireUser(t *testing.T) {
	secret := []byte("secret")
	handler := RequireUser(secret, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := GetSession(r.Context())
		if err != nil {
			t.Errorf("GetSession in handler: %v", err)
		}
		_, _ = w.Write([]byte(u.UserID))
	}))

	// No cookie => 401
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without cookie, got %d", rr.Code)
	}

	// Anonymous (not signed in) => 401
	anonRR := httptest.NewRecorder()
	_ = SetSessionCookie(anonRR, &UserSessionData{UserID: "anon-1", SignedIn: false, ExpiresAt: time.Now().Add(time.Hour).Unix()}, secret)
	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(anonRR.Result().Cookies()[0])
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for anonymous session, got %d", rr.Code)
	}

	// Invalid cookie => 401 and the stale cookie is cleared
	badRR := httptest.NewRecorder()
	_ = SetSessionCookie(badRR, &UserSessionData{UserID: "user123", SignedIn: true, ExpiresAt: time.Now().Add(time.Hour).Unix()}, secret)
	badCookie := badRR.Result().Cookies()[0]
	badCookie.Value = badCookie.Value[:len(badCookie.Value)-2] + "xx"
	req = httptest.NewRequest("GET", "/", nil)
	req.AddCookie(badCookie)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for tampered cookie, got %d", rr.Code)
	}
	cleared := false
	for _, c := range rr.Result().Cookies() {
		if c.Name == sessionCookieName && c.Value == "" && c.Expires.Before(time.Now()) {
			cleared = true
		}
	}
	if !cleared {
		t.Error("tampered cookie was not cleared")
	}

	// Signed in => handler runs with session in context
	okRR := httptest.NewRecorder()
	_ = SetSessionCookie(okRR, &UserSessionData{UserID: "user123", SignedIn: true, ExpiresAt: time.Now().Add(time.Hour).Unix()}, secret)
	req = httptest.NewRequest("GET", "/", nil)
	req.AddCookie(okRR.Result().Cookies()[0])
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200 for signed-in session, got %d", rr.Code)
	}
	if rr.Body.String() != "user123" {
		t.Errorf("expected user id in body, got %q", rr.Body.String())
	}
}

func TestCookieDomain(t *testing.T) {
	tests := []struct {
		origin string
		want   string
	}{
		{"https://dev.example.com:3000", "example.com"},
		{"https://example.com", "example.com"},
		{"http://localhost:8080", "localhost"},
		{"", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := CookieDomain(req); got != tt.want {
			t.Errorf("CookieDomain(%q) = %q, want %q", tt.origin, got, tt.want)
		}
	}
}
