package jwt

import (
	"errors"
	"testing"
	"time"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		Issuer:          "test",
		AccessTTL:       15 * time.Minute,
		RefreshTTL:      7 * 24 * time.Hour,
		IntermediateTTL: 5 * time.Minute,
		AccessKey:       []byte("0123456789abcdef0123456789abcdef"),
		RefreshKey:      []byte("fedcba9876543210fedcba9876543210"),
		IntermediateKey: []byte("abcdef0123456789abcdef0123456789"),
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestAccessRoundTrip(t *testing.T) {
	m := testManager(t)
	now := time.Now()

	token, err := m.CreateAccess("u1", "s1", "a@example.com", "user", true, now)
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}

	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("ParseAccess: %v", err)
	}
	if claims.Subject != "u1" || claims.SessionID != "s1" || !claims.MFAVerified {
		t.Fatalf("claims mismatch: %+v", claims)
	}
}

func TestRefreshRoundTrip(t *testing.T) {
	m := testManager(t)
	now := time.Now()

	token, err := m.CreateRefresh("u1", "s1", "j1", now)
	if err != nil {
		t.Fatalf("CreateRefresh: %v", err)
	}

	claims, err := m.ParseRefresh(token)
	if err != nil {
		t.Fatalf("ParseRefresh: %v", err)
	}
	if claims.Subject != "u1" || claims.SessionID != "s1" || claims.JTI != "j1" {
		t.Fatalf("claims mismatch: %+v", claims)
	}
}

func TestIntermediateRoundTrip(t *testing.T) {
	m := testManager(t)

	token, err := m.CreateIntermediate("u1", time.Now())
	if err != nil {
		t.Fatalf("CreateIntermediate: %v", err)
	}
	userID, err := m.ParseIntermediate(token)
	if err != nil {
		t.Fatalf("ParseIntermediate: %v", err)
	}
	if userID != "u1" {
		t.Fatalf("subject = %q, want u1", userID)
	}
}

// Tokens of one kind must never verify as another, even though all
// three are HS256 JWTs.
func TestKindConfusionRejected(t *testing.T) {
	m := testManager(t)
	now := time.Now()

	access, err := m.CreateAccess("u1", "s1", "a@example.com", "user", false, now)
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}
	refresh, err := m.CreateRefresh("u1", "s1", "j1", now)
	if err != nil {
		t.Fatalf("CreateRefresh: %v", err)
	}
	intermediate, err := m.CreateIntermediate("u1", now)
	if err != nil {
		t.Fatalf("CreateIntermediate: %v", err)
	}

	if _, err := m.ParseAccess(refresh); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("refresh as access err = %v, want ErrTokenInvalid", err)
	}
	if _, err := m.ParseAccess(intermediate); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("intermediate as access err = %v, want ErrTokenInvalid", err)
	}
	if _, err := m.ParseRefresh(access); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("access as refresh err = %v, want ErrTokenInvalid", err)
	}
	if _, err := m.ParseIntermediate(access); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("access as intermediate err = %v, want ErrTokenInvalid", err)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	m := testManager(t)

	token, err := m.CreateAccess("u1", "s1", "a@example.com", "user", false, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}
	if _, err := m.ParseAccess(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("err = %v, want ErrTokenInvalid", err)
	}
}

func TestTamperedTokenRejected(t *testing.T) {
	m := testManager(t)

	token, err := m.CreateAccess("u1", "s1", "a@example.com", "user", false, time.Now())
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}
	tampered := token[:len(token)-2] + "xx"
	if _, err := m.ParseAccess(tampered); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("err = %v, want ErrTokenInvalid", err)
	}
}
