package trust

import (
	"context"
	"errors"
)

// VerifyMFA completes a login that Login answered with MFARequired. The
// code is either a TOTP code or a single-use backup code; the shape of
// the input picks the path. On success a full session is issued with
// the second factor marked as proven.
func (e *Engine) VerifyMFA(ctx context.Context, intermediateToken, code string) (*LoginResult, error) {
	now := e.now()

	userID, err := e.tokens.ParseIntermediate(intermediateToken)
	if err != nil {
		return nil, ErrIntermediateTokenInvalid
	}

	user, err := e.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrIntermediateTokenInvalid
		}
		return nil, err
	}

	rec, err := e.store.GetTOTP(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !rec.Enabled {
		return nil, ErrTOTPNotConfigured
	}

	if looksLikeTOTPCode(code, e.config.TOTP.Digits) {
		ok, err := e.totp.VerifyCode(rec.Secret, code, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			e.metrics.Inc(MetricMFAFailure)
			e.emitAudit(ctx, EventMFAFailed, userID, "", false, "invalid totp code", nil)
			return nil, ErrInvalidCode
		}
	} else {
		consumed, err := e.consumeBackupCode(ctx, userID, code)
		if err != nil {
			return nil, err
		}
		if !consumed {
			e.metrics.Inc(MetricMFAFailure)
			e.emitAudit(ctx, EventMFAFailed, userID, "", false, "invalid backup code", nil)
			return nil, ErrInvalidBackupCode
		}
		e.metrics.Inc(MetricBackupCodeUsed)
		e.emitAudit(ctx, EventBackupCodeUsed, userID, "", true, "", nil)
	}

	pair, sessionID, err := e.issueSessionTokens(ctx, user, true, now)
	if err != nil {
		return nil, err
	}
	e.metrics.Inc(MetricMFASuccess)
	e.metrics.Inc(MetricLoginSuccess)
	e.emitAudit(ctx, EventMFAVerified, userID, sessionID, true, "", nil)
	return &LoginResult{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         user,
	}, nil
}

func looksLikeTOTPCode(code string, digits int) bool {
	return len(code) == digits && isNumericString(code)
}
