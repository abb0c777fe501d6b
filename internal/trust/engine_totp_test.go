package trust

import (
	"encoding/base32"
	"errors"
	"strings"
	"testing"
)

func decodeTOTPSecret(t *testing.T, encoded string) []byte {
	t.Helper()
	secret, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(encoded)
	if err != nil {
		t.Fatalf("decode secret: %v", err)
	}
	return secret
}

// enrollTOTP drives the two-phase enrollment and returns the raw secret
// so tests can mint valid codes.
func enrollTOTP(t *testing.T, env *testEnv, userID string) []byte {
	t.Helper()
	ctx := testCtx("203.0.113.7", testUA)

	setup, err := env.engine.SetupTOTP(ctx, userID)
	if err != nil {
		t.Fatalf("SetupTOTP: %v", err)
	}
	secret, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(setup.Secret)
	if err != nil {
		t.Fatalf("decode secret: %v", err)
	}

	code := hotpCode(secret, env.clock.Now().Unix()/30, 6)
	if _, err := env.engine.EnableTOTP(ctx, userID, code); err != nil {
		t.Fatalf("EnableTOTP: %v", err)
	}
	return secret
}

func TestTOTPEnrollmentFlow(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "a@example.com", testPassword, "user")
	ctx := testCtx("203.0.113.7", testUA)

	setup, err := env.engine.SetupTOTP(ctx, user.UserID)
	if err != nil {
		t.Fatalf("SetupTOTP: %v", err)
	}
	if !strings.HasPrefix(setup.OTPAuthURI, "otpauth://totp/") {
		t.Fatalf("unexpected provisioning URI: %s", setup.OTPAuthURI)
	}

	secret, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(setup.Secret)
	if err != nil {
		t.Fatalf("decode secret: %v", err)
	}

	// Wrong code first: nothing is committed.
	if _, err := env.engine.EnableTOTP(ctx, user.UserID, "000000"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("err = %v, want ErrInvalidCode", err)
	}
	rec, err := env.store.GetTOTP(ctx, user.UserID)
	if err != nil {
		t.Fatalf("GetTOTP: %v", err)
	}
	if rec.Enabled {
		t.Fatal("a failed enable must not commit the secret")
	}

	code := hotpCode(secret, env.clock.Now().Unix()/30, 6)
	codes, err := env.engine.EnableTOTP(ctx, user.UserID, code)
	if err != nil {
		t.Fatalf("EnableTOTP: %v", err)
	}
	if len(codes) != 10 {
		t.Fatalf("backup codes = %d, want 10", len(codes))
	}

	// Subsequent login now demands the second factor.
	result, err := env.engine.Login(ctx, "a@example.com", testPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !result.MFARequired || result.IntermediateToken == "" {
		t.Fatal("login after enrollment should require MFA")
	}
	if result.AccessToken != "" || result.RefreshToken != "" {
		t.Fatal("no session tokens before the second factor")
	}

	// A second setup attempt is refused.
	if _, err := env.engine.SetupTOTP(ctx, user.UserID); !errors.Is(err, ErrTOTPAlreadyEnabled) {
		t.Fatalf("err = %v, want ErrTOTPAlreadyEnabled", err)
	}
}

func TestEnableTOTPWithoutSetup(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "a@example.com", testPassword, "user")
	ctx := testCtx("203.0.113.7", testUA)

	if _, err := env.engine.EnableTOTP(ctx, user.UserID, "123456"); !errors.Is(err, ErrPendingSecretExpired) {
		t.Fatalf("err = %v, want ErrPendingSecretExpired", err)
	}
}

func TestVerifyMFACompletesLogin(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "a@example.com", testPassword, "user")
	ctx := testCtx("203.0.113.7", testUA)
	secret := enrollTOTP(t, env, user.UserID)

	result, err := env.engine.Login(ctx, "a@example.com", testPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	// Wrong code is rejected without burning the challenge.
	if _, err := env.engine.VerifyMFA(ctx, result.IntermediateToken, "000000"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("err = %v, want ErrInvalidCode", err)
	}

	code := hotpCode(secret, env.clock.Now().Unix()/30, 6)
	final, err := env.engine.VerifyMFA(ctx, result.IntermediateToken, code)
	if err != nil {
		t.Fatalf("VerifyMFA: %v", err)
	}
	if final.AccessToken == "" || final.RefreshToken == "" {
		t.Fatal("expected session tokens after MFA")
	}

	auth, err := env.engine.ValidateAccess(ctx, final.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if !auth.MFAVerified {
		t.Fatal("mfa claim should be set after a verified second factor")
	}
}

func TestVerifyMFAGarbageToken(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.engine.VerifyMFA(testCtx("203.0.113.7", testUA), "garbage", "123456"); !errors.Is(err, ErrIntermediateTokenInvalid) {
		t.Fatalf("err = %v, want ErrIntermediateTokenInvalid", err)
	}
}

func TestDisableTOTP(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "a@example.com", testPassword, "user")
	ctx := testCtx("203.0.113.7", testUA)
	secret := enrollTOTP(t, env, user.UserID)

	code := hotpCode(secret, env.clock.Now().Unix()/30, 6)
	if err := env.engine.DisableTOTP(ctx, user.UserID, "wrong password 1", code); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	if err := env.engine.DisableTOTP(ctx, user.UserID, testPassword, code); err != nil {
		t.Fatalf("DisableTOTP: %v", err)
	}

	// Login is back to password-only.
	result, err := env.engine.Login(ctx, "a@example.com", testPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if result.MFARequired {
		t.Fatal("MFA should not be required after disable")
	}
}
