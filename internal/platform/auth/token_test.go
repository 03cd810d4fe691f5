package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestStaticToken(t *testing.T) {
	tok, err := StaticToken("  abc  ").Token(context.Background())
	if err != nil || tok != "abc" {
		t.Errorf("expected abc, got %q %v", tok, err)
	}
	if _, err := StaticToken("").Token(context.Background()); err == nil {
		t.Error("expected error for empty token")
	}
}

func TestNewDevTokenSource_RequiresKey(t *testing.T) {
	if _, err := NewDevTokenSource(nil, "p1", ""); err == nil {
		t.Fatal("expected error without signing key")
	}
}

func TestDevTokenSource_MintsVerifiableToken(t *testing.T) {
	src, err := NewDevTokenSource(testSigningKey, "", "healthassist")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tok, err := src.Token(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (interface{}, error) {
		return testSigningKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithIssuer("healthassist"))
	if err != nil || !parsed.Valid {
		t.Fatalf("expected valid token, got %v", err)
	}
	if claims.Subject != DevSubject {
		t.Errorf("expected default subject %s, got %s", DevSubject, claims.Subject)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != RolePatient {
		t.Errorf("expected patient role, got %v", claims.Roles)
	}
}

func TestDevTokenSource_CachesUntilNearExpiry(t *testing.T) {
	src, _ := NewDevTokenSource(testSigningKey, "p1", "")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src.now = func() time.Time { return now }

	first, _ := src.Token(context.Background())

	now = now.Add(30 * time.Minute)
	second, _ := src.Token(context.Background())
	if first != second {
		t.Error("expected cached token within its lifetime")
	}

	now = now.Add(29*time.Minute + 30*time.Second)
	third, _ := src.Token(context.Background())
	if third == first {
		t.Error("expected a fresh token within a minute of expiry")
	}
}
