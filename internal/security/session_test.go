package security

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSessionTokenRoundTrip(t *testing.T) {
	token, errGenerate := GenerateSessionToken("test-secret", 42, "alice", "ADMIN", time.Hour)
	if errGenerate != nil {
		t.Fatalf("generate: %v", errGenerate)
	}

	claims, errParse := ParseSessionToken("test-secret", token)
	if errParse != nil {
		t.Fatalf("parse: %v", errParse)
	}
	if claims.UserID != 42 {
		t.Fatalf("expected user id 42, got %d", claims.UserID)
	}
	if claims.Username != "alice" {
		t.Fatalf("expected username alice, got %s", claims.Username)
	}
	if claims.Role != "ADMIN" {
		t.Fatalf("expected role ADMIN, got %s", claims.Role)
	}
}

func TestSessionTokenWrongSecret(t *testing.T) {
	token, errGenerate := GenerateSessionToken("test-secret", 1, "alice", "USER", time.Hour)
	if errGenerate != nil {
		t.Fatalf("generate: %v", errGenerate)
	}
	if _, errParse := ParseSessionToken("other-secret", token); !errors.Is(errParse, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", errParse)
	}
}

func TestSessionTokenExpired(t *testing.T) {
	token, errGenerate := GenerateSessionToken("test-secret", 1, "alice", "USER", -time.Minute)
	if errGenerate != nil {
		t.Fatalf("generate: %v", errGenerate)
	}
	if _, errParse := ParseSessionToken("test-secret", token); !errors.Is(errParse, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", errParse)
	}
}

func TestSessionTokenMalformed(t *testing.T) {
	for _, token := range []string{"", "garbage", "a.b.c"} {
		if _, errParse := ParseSessionToken("test-secret", token); errParse == nil {
			t.Fatalf("token %q parsed without error", token)
		}
	}
}

func TestSessionCookieAttributes(t *testing.T) {
	recorder := httptest.NewRecorder()
	SetSessionCookie(recorder, "token-value", 7*24*time.Hour, true)

	cookies := recorder.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cookie, got %d", len(cookies))
	}
	cookie := cookies[0]
	if cookie.Name != SessionCookieName {
		t.Fatalf("expected cookie name %s, got %s", SessionCookieName, cookie.Name)
	}
	if !cookie.HttpOnly {
		t.Fatal("cookie must be HttpOnly")
	}
	if !cookie.Secure {
		t.Fatal("cookie must be Secure in production")
	}
	if cookie.SameSite != http.SameSiteStrictMode {
		t.Fatalf("expected SameSite strict, got %v", cookie.SameSite)
	}
	if cookie.Path != "/" {
		t.Fatalf("expected path /, got %s", cookie.Path)
	}
	if cookie.MaxAge != 604800 {
		t.Fatalf("expected max-age 604800, got %d", cookie.MaxAge)
	}
}

func TestClearSessionCookie(t *testing.T) {
	recorder := httptest.NewRecorder()
	ClearSessionCookie(recorder, false)

	cookies := recorder.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cookie, got %d", len(cookies))
	}
	if cookies[0].MaxAge >= 0 {
		t.Fatalf("expected negative max-age, got %d", cookies[0].MaxAge)
	}
	if cookies[0].Value != "" {
		t.Fatalf("expected empty value, got %q", cookies[0].Value)
	}
}

func TestReadSessionToken(t *testing.T) {
	request := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := ReadSessionToken(request); ok {
		t.Fatal("expected absence without cookie")
	}

	request.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "token-value"})
	token, ok := ReadSessionToken(request)
	if !ok || token != "token-value" {
		t.Fatalf("expected token-value, got %q (%v)", token, ok)
	}
}
