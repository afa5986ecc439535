package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := NewStore("redis://"+mr.Addr(), time.Minute)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestRegisterAndLogin(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	u, err := s.Register(ctx, "Alex", "alex@example.com", "hunter22")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.ID == "" || u.Name != "Alex" {
		t.Fatalf("unexpected user: %+v", u)
	}

	token, got, err := s.Login(ctx, "alex@example.com", "hunter22")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token == "" || got.ID != u.ID {
		t.Fatalf("unexpected login result: token=%q user=%+v", token, got)
	}

	cur, err := s.Current(ctx, token)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if cur.ID != u.ID || cur.Email != "alex@example.com" {
		t.Fatalf("unexpected session user: %+v", cur)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Register(ctx, "Alex", "alex@example.com", "pw"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, err := s.Register(ctx, "Sam", "alex@example.com", "pw2")
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Register(ctx, "Alex", "alex@example.com", "right"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, _, err := s.Login(ctx, "alex@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := s.Login(ctx, "nobody@example.com", "x"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestLogoutEndsSession(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Register(ctx, "Alex", "alex@example.com", "pw"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	token, _, err := s.Login(ctx, "alex@example.com", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := s.Logout(ctx, token); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := s.Current(ctx, token); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession after logout, got %v", err)
	}
}

func TestSessionExpires(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Register(ctx, "Alex", "alex@example.com", "pw"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	token, _, err := s.Login(ctx, "alex@example.com", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := s.Current(ctx, token); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession after TTL, got %v", err)
	}
}
