package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

func TestVerifyRoundTrip(t *testing.T) {
	v := NewVerifier("test-secret")
	tok, err := v.Issue("d1", models.RoleDriver, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	c, err := v.Verify(tok)
	if err != nil {
		t.Fatal(err)
	}
	if c.Subject != "d1" || c.Role != models.RoleDriver {
		t.Fatalf("unexpected claims: %+v", c)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	tok, err := NewVerifier("secret-a").Issue("p1", models.RolePassenger, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewVerifier("secret-b").Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	v := NewVerifier("test-secret")
	tok, err := v.Issue("p1", models.RolePassenger, -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsUnknownRole(t *testing.T) {
	v := NewVerifier("test-secret")
	tok, err := v.Issue("a1", models.Role("admin"), time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	v := NewVerifier("test-secret")
	if _, err := v.Verify("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
