package trust

import (
	"context"
	"log"
	"unicode"
)

const minPasswordLength = 10

// ChangePassword rotates the credential after verifying the current
// one. The new password must clear the policy and must not match any
// hash in the reuse history; afterwards every session of the user is
// revoked so stolen refresh tokens die with the old password.
func (e *Engine) ChangePassword(ctx context.Context, userID, current, next string) error {
	user, err := e.store.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	ok, err := e.hasher.Verify(current, user.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCredentials
	}

	if err := validatePassword(next); err != nil {
		return err
	}

	reused, err := e.isPasswordReused(ctx, userID, next)
	if err == nil && reused {
		e.metrics.Inc(MetricPasswordReuseRejected)
		e.emitAudit(ctx, EventPasswordReused, userID, "", false, "password reuse rejected", nil)
		return ErrPasswordReused
	}
	if err != nil {
		// History lookups fail open: a broken history table must not
		// block a password change.
		log.Printf("trust: password history check failed for user %s: %v", userID, err)
	}

	newHash, err := e.hasher.Hash(next)
	if err != nil {
		return err
	}
	if err := e.store.SetPassword(ctx, userID, newHash, e.config.Password.HistoryLimit); err != nil {
		return err
	}

	if _, err := e.store.RevokeAllForUser(ctx, userID, e.now()); err != nil {
		log.Printf("trust: session revocation after password change failed for user %s: %v", userID, err)
	}

	e.metrics.Inc(MetricPasswordChanged)
	e.emitAudit(ctx, EventPasswordChanged, userID, "", true, "", nil)
	return nil
}

// isPasswordReused checks the candidate against the stored history.
// The history holds hashes, so each entry costs one slow verification.
func (e *Engine) isPasswordReused(ctx context.Context, userID, candidate string) (bool, error) {
	history, err := e.store.PasswordHistory(ctx, userID, e.config.Password.HistoryLimit)
	if err != nil {
		return false, err
	}
	for _, oldHash := range history {
		match, err := e.hasher.Verify(candidate, oldHash)
		if err != nil {
			return false, err
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}

func validatePassword(plaintext string) error {
	if len(plaintext) < minPasswordLength {
		return ErrPasswordPolicy
	}
	var hasLetter, hasDigit bool
	for _, r := range plaintext {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return ErrPasswordPolicy
	}
	return nil
}
