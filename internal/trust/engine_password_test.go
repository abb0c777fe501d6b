package trust

import (
	"errors"
	"testing"
	"time"
)

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "a@example.com", testPassword, "user")
	ctx := testCtx("203.0.113.7", testUA)

	login, err := env.engine.Login(ctx, "a@example.com", testPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	const newPassword = "brand new pass 42"
	if err := env.engine.ChangePassword(ctx, user.UserID, testPassword, newPassword); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	// Old sessions die with the old password.
	env.clock.Advance(30 * time.Second)
	if _, err := env.engine.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrRefreshRevoked) {
		t.Fatalf("err = %v, want ErrRefreshRevoked", err)
	}

	if _, err := env.engine.Login(ctx, "a@example.com", testPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := env.engine.Login(ctx, "a@example.com", newPassword); err != nil {
		t.Fatalf("new password Login: %v", err)
	}
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "a@example.com", testPassword, "user")

	err := env.engine.ChangePassword(testCtx("203.0.113.7", testUA), user.UserID, "wrong password 1", "brand new pass 42")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestChangePasswordRejectsReuse(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "a@example.com", testPassword, "user")
	ctx := testCtx("203.0.113.7", testUA)

	// Re-using the current password is the simplest reuse case: the
	// initial hash is seeded into history at account creation.
	err := env.engine.ChangePassword(ctx, user.UserID, testPassword, testPassword)
	if !errors.Is(err, ErrPasswordReused) {
		t.Fatalf("err = %v, want ErrPasswordReused", err)
	}

	// Rotating away and back inside the history window is also refused.
	const second = "brand new pass 42"
	if err := env.engine.ChangePassword(ctx, user.UserID, testPassword, second); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if err := env.engine.ChangePassword(ctx, user.UserID, second, testPassword); !errors.Is(err, ErrPasswordReused) {
		t.Fatalf("err = %v, want ErrPasswordReused", err)
	}
}

func TestChangePasswordPolicy(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "a@example.com", testPassword, "user")
	ctx := testCtx("203.0.113.7", testUA)

	for _, weak := range []string{"short1", "alllettersonly", "1234567890123"} {
		err := env.engine.ChangePassword(ctx, user.UserID, testPassword, weak)
		if !errors.Is(err, ErrPasswordPolicy) {
			t.Fatalf("ChangePassword(%q) err = %v, want ErrPasswordPolicy", weak, err)
		}
	}
}
