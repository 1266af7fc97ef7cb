package httpapi

import (
	"context"
	"testing"
	"time"

	"pharmastore/backend/internal/domain"
	"pharmastore/backend/internal/storage"
	"pharmastore/backend/internal/users"
)

func newAuthFixture(t *testing.T, ttl time.Duration) *AuthManager {
	t.Helper()
	usr, err := users.New(context.Background(), storage.NewMemory())
	if err != nil {
		t.Fatalf("users: %v", err)
	}
	return NewAuthManager(testSecret, ttl, usr)
}

func TestTokenRoundTrip(t *testing.T) {
	auth := newAuthFixture(t, time.Hour)

	resp, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "password123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "admin" || actor.Type != domain.UserTypeAdmin {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	auth := newAuthFixture(t, time.Hour)
	other := newAuthFixture(t, time.Hour)
	other.secret = []byte("ffffffffffffffffffffffffffffffff")

	resp, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "password123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := other.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("token signed with a different secret must not verify")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	auth := newAuthFixture(t, time.Hour)

	token, err := auth.sign("admin", domain.UserTypeAdmin, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatalf("expired token must not verify")
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	auth := newAuthFixture(t, time.Hour)
	if _, err := auth.ParseToken("not.a.token"); err == nil {
		t.Fatalf("garbage token must not verify")
	}
}
