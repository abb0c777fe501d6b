package trust

import (
	"errors"
	"testing"
	"time"
)

func TestGrantSudoDefaultAndClamp(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "a@example.com", testPassword, "user")
	ctx := testCtx("203.0.113.7", testUA)

	cases := []struct {
		requested time.Duration
		wantTTL   int
	}{
		{0, 300},
		{30 * time.Second, 60},
		{2 * time.Hour, 3600},
		{10 * time.Minute, 600},
	}
	for _, tc := range cases {
		grant, err := env.engine.GrantSudo(ctx, user.UserID, "s1", testPassword, "", tc.requested)
		if err != nil {
			t.Fatalf("GrantSudo(%v): %v", tc.requested, err)
		}
		if grant.ExpiresIn != tc.wantTTL {
			t.Errorf("GrantSudo(%v) ttl = %d, want %d", tc.requested, grant.ExpiresIn, tc.wantTTL)
		}
	}
}

func TestGrantSudoWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "a@example.com", testPassword, "user")
	ctx := testCtx("203.0.113.7", testUA)

	_, err := env.engine.GrantSudo(ctx, user.UserID, "s1", "wrong password 1", "", 0)
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestCheckSudoRequiredVersusExpired(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "a@example.com", testPassword, "user")
	ctx := testCtx("203.0.113.7", testUA)

	// Never elevated: required.
	if err := env.engine.CheckSudo(ctx, "s1"); !errors.Is(err, ErrSudoRequired) {
		t.Fatalf("err = %v, want ErrSudoRequired", err)
	}

	if _, err := env.engine.GrantSudo(ctx, user.UserID, "s1", testPassword, "", 0); err != nil {
		t.Fatalf("GrantSudo: %v", err)
	}
	if err := env.engine.CheckSudo(ctx, "s1"); err != nil {
		t.Fatalf("CheckSudo after grant: %v", err)
	}

	// Lapsed but still cached: expired, not required.
	env.clock.Advance(301 * time.Second)
	if err := env.engine.CheckSudo(ctx, "s1"); !errors.Is(err, ErrSudoExpired) {
		t.Fatalf("err = %v, want ErrSudoExpired", err)
	}

	// The stale record was deleted; a second check reads absence.
	if err := env.engine.CheckSudo(ctx, "s1"); !errors.Is(err, ErrSudoRequired) {
		t.Fatalf("err after expiry cleanup = %v, want ErrSudoRequired", err)
	}
}

func TestRevokeSudo(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "a@example.com", testPassword, "user")
	ctx := testCtx("203.0.113.7", testUA)

	if _, err := env.engine.GrantSudo(ctx, user.UserID, "s1", testPassword, "", 0); err != nil {
		t.Fatalf("GrantSudo: %v", err)
	}
	if err := env.engine.RevokeSudo(ctx, "s1"); err != nil {
		t.Fatalf("RevokeSudo: %v", err)
	}
	if err := env.engine.CheckSudo(ctx, "s1"); !errors.Is(err, ErrSudoRequired) {
		t.Fatalf("err = %v, want ErrSudoRequired", err)
	}
}

func TestGrantSudoDemandsCodeWhenEnrolled(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "a@example.com", testPassword, "user")
	ctx := testCtx("203.0.113.7", testUA)
	secret := enrollTOTP(t, env, user.UserID)

	if _, err := env.engine.GrantSudo(ctx, user.UserID, "s1", testPassword, "", 0); !errors.Is(err, ErrMFARequired) {
		t.Fatalf("err = %v, want ErrMFARequired", err)
	}

	code := hotpCode(secret, env.clock.Now().Unix()/30, 6)
	if _, err := env.engine.GrantSudo(ctx, user.UserID, "s1", testPassword, code, 0); err != nil {
		t.Fatalf("GrantSudo with code: %v", err)
	}
}
