package httpapi

import (
	"context"
	"testing"
	"time"

	"shopbook/backend/internal/domain"
	"shopbook/backend/internal/store/memory"
)

func TestLoginAndParseToken(t *testing.T) {
	repo := memory.New()
	// Plain-text seed: the manager must upgrade it to a bcrypt hash.
	if err := repo.CreateUser(context.Background(), domain.UserAccount{
		Username: "admin",
		Password: "admin-password",
		Role:     "admin",
		Active:   true,
	}); err != nil {
		t.Fatalf("seed user failed: %v", err)
	}

	auth := NewAuthManager("test-secret-long-enough-for-hmac!", time.Hour, repo)

	resp, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "admin-password"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != "admin" || resp.AccessToken == "" {
		t.Fatalf("unexpected login response: %+v", resp)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "admin" || actor.Role != "admin" {
		t.Fatalf("unexpected actor: %+v", actor)
	}

	users, err := repo.ListUsers(context.Background())
	if err != nil || len(users) != 1 {
		t.Fatalf("list users failed: %v", err)
	}
	if users[0].Password == "admin-password" {
		t.Fatalf("stored password must be upgraded to a hash")
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	repo := memory.New()
	if err := repo.CreateUser(context.Background(), domain.UserAccount{
		Username: "cashier",
		Password: "cashier-password",
		Role:     "cashier",
		Active:   true,
	}); err != nil {
		t.Fatalf("seed user failed: %v", err)
	}

	auth := NewAuthManager("test-secret-long-enough-for-hmac!", time.Hour, repo)

	if _, err := auth.Login(domain.LoginRequest{Username: "cashier", Password: "wrong"}); err == nil {
		t.Fatalf("wrong password must fail")
	}
	if _, err := auth.Login(domain.LoginRequest{Username: "ghost", Password: "cashier-password"}); err == nil {
		t.Fatalf("unknown user must fail")
	}
}

func TestParseTokenRejectsForgedToken(t *testing.T) {
	auth := NewAuthManager("test-secret-long-enough-for-hmac!", time.Hour, nil)
	other := NewAuthManager("a-different-secret-also-long-enough", time.Hour, nil)

	token, err := other.sign("admin", "admin", time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatalf("token signed with another secret must be rejected")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	auth := NewAuthManager("test-secret-long-enough-for-hmac!", time.Hour, nil)

	token, err := auth.sign("admin", "admin", time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatalf("expired token must be rejected")
	}
}
