package auth

import (
	"errors"
	"testing"
	"time"
)

func TestJWTRoundTrip(t *testing.T) {
	manager := NewJWTManager("test-secret", 15*time.Minute)

	token, expires, err := manager.GenerateAccessToken("user-42", "sid-1", "admin")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if expires.IsZero() {
		t.Fatalf("expected expiry")
	}

	claims, err := manager.ParseAccessToken(token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.UserID != "user-42" || claims.SID != "sid-1" || claims.Role != "admin" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestJWTRejectsForeignAndExpiredTokens(t *testing.T) {
	issuer := NewJWTManager("other-secret", time.Minute)
	verifier := NewJWTManager("test-secret", time.Minute)

	foreign, _, err := issuer.GenerateAccessToken("user-1", "sid-1", "admin")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if _, err := verifier.ParseAccessToken(foreign); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for foreign signature, got %v", err)
	}

	past := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	verifier.now = func() time.Time { return past }
	stale, _, err := verifier.GenerateAccessToken("user-1", "sid-1", "admin")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	verifier.now = func() time.Time { return past.Add(time.Hour) }
	if _, err := verifier.ParseAccessToken(stale); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for expired token, got %v", err)
	}

	if _, err := verifier.ParseAccessToken(""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for empty token, got %v", err)
	}
}

func TestRoleSetIsCaseInsensitive(t *testing.T) {
	roles := NewRoleSet("Admin", " moderator ", "")

	if !roles.Has("ADMIN") || !roles.Has("moderator") {
		t.Fatalf("expected configured roles to match: %v", roles)
	}
	if roles.Has("user") || roles.Has("") {
		t.Fatalf("unexpected role match: %v", roles)
	}
}
