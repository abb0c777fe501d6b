package trust

import (
	"context"
	"errors"

	"github.com/Kkocaoglan/IncomeExpense-sub000/internal/trust/session"
)

// SetupTOTP starts two-factor enrollment. The generated secret lives
// only in the pending cache until EnableTOTP proves the user's
// authenticator produces matching codes.
func (e *Engine) SetupTOTP(ctx context.Context, userID string) (*TOTPSetup, error) {
	rec, err := e.store.GetTOTP(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec.Enabled {
		return nil, ErrTOTPAlreadyEnabled
	}

	user, err := e.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	secret, secretBase32, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}
	if err := e.pending.Save(ctx, userID, secret, e.config.TOTP.PendingSecretTTL); err != nil {
		return nil, err
	}

	return &TOTPSetup{
		Secret:     secretBase32,
		OTPAuthURI: e.totp.ProvisionURI(secretBase32, user.Email),
	}, nil
}

// EnableTOTP commits the pending secret after verifying one code from
// it and returns the freshly generated backup codes. The plaintext
// codes appear exactly once, here.
func (e *Engine) EnableTOTP(ctx context.Context, userID, code string) ([]string, error) {
	now := e.now()

	secret, err := e.pending.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrPendingSecretExpired
		}
		return nil, err
	}

	ok, err := e.totp.VerifyCode(secret, code, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCode
	}

	plaintexts, records, err := e.generateBackupCodes(userID)
	if err != nil {
		return nil, err
	}
	if err := e.store.EnableTOTP(ctx, userID, secret, records); err != nil {
		return nil, err
	}
	_ = e.pending.Delete(ctx, userID)

	e.emitAudit(ctx, EventTOTPEnabled, userID, "", true, "", nil)
	return plaintexts, nil
}

// DisableTOTP turns two-factor off. It demands a fresh password and a
// valid current code so a hijacked session cannot silently strip the
// account's second factor.
func (e *Engine) DisableTOTP(ctx context.Context, userID, plaintext, code string) error {
	now := e.now()

	user, err := e.store.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	ok, err := e.hasher.Verify(plaintext, user.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCredentials
	}

	rec, err := e.store.GetTOTP(ctx, userID)
	if err != nil {
		return err
	}
	if !rec.Enabled {
		return ErrTOTPNotConfigured
	}

	ok, err = e.totp.VerifyCode(rec.Secret, code, now)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCode
	}

	if err := e.store.DisableTOTP(ctx, userID); err != nil {
		return err
	}
	e.emitAudit(ctx, EventTOTPDisabled, userID, "", true, "", nil)
	return nil
}
