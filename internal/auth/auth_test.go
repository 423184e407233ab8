package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateAccessToken("user-1", []string{"admin"}, "secret")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := ParseAccessToken(token, "secret")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("expected subject user-1, got %s", claims.Subject)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "admin" {
		t.Fatalf("expected admin role, got %v", claims.Roles)
	}
}

func TestParse_WrongSecret(t *testing.T) {
	token, err := GenerateAccessToken("user-1", nil, "secret")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := ParseAccessToken(token, "other-secret"); err == nil {
		t.Fatal("expected error for wrong secret")
	}
}

func TestParse_Expired(t *testing.T) {
	now := time.Now().Add(-time.Hour)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseAccessToken(token, "secret"); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("changeme")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword("changeme", hash) {
		t.Fatal("correct password rejected")
	}
	if CheckPassword("wrong", hash) {
		t.Fatal("wrong password accepted")
	}
}

func TestUserContext_IsAdmin(t *testing.T) {
	if (&UserContext{Roles: []string{"viewer"}}).IsAdmin() {
		t.Fatal("viewer is not admin")
	}
	if !(&UserContext{Roles: []string{"viewer", "admin"}}).IsAdmin() {
		t.Fatal("admin role not recognized")
	}
}

func TestParseRoles(t *testing.T) {
	if roles := parseRoles(`["admin","viewer"]`); len(roles) != 2 || roles[0] != "admin" {
		t.Fatalf("got %v", roles)
	}
	if roles := parseRoles(""); len(roles) != 0 {
		t.Fatalf("empty column must parse to no roles, got %v", roles)
	}
	if roles := parseRoles("not json"); len(roles) != 0 {
		t.Fatalf("malformed column must parse to no roles, got %v", roles)
	}
}
