package trust

import (
	"context"
	"errors"
	"time"

	"github.com/Kkocaoglan/IncomeExpense-sub000/internal/trust/session"
)

// GrantSudo opens a time-boxed sudo session after fresh credential
// proof: the password always, plus a TOTP code when the account has
// two-factor enabled. The requested duration is clamped into the
// configured bounds; zero means the default.
func (e *Engine) GrantSudo(ctx context.Context, userID, sessionID, plaintext, code string, requested time.Duration) (*SudoGrant, error) {
	now := e.now()

	user, err := e.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	ok, err := e.hasher.Verify(plaintext, user.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		e.metrics.Inc(MetricSudoDenied)
		e.emitAudit(ctx, EventSudoDenied, userID, sessionID, false, "invalid credentials", nil)
		return nil, ErrInvalidCredentials
	}

	if user.TOTPEnabled {
		if code == "" {
			return nil, ErrMFARequired
		}
		rec, err := e.store.GetTOTP(ctx, userID)
		if err != nil {
			return nil, err
		}
		ok, err := e.totp.VerifyCode(rec.Secret, code, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			e.metrics.Inc(MetricSudoDenied)
			e.emitAudit(ctx, EventSudoDenied, userID, sessionID, false, "invalid totp code", nil)
			return nil, ErrInvalidCode
		}
	}

	ttl := e.clampSudoTTL(requested)
	expiresAt := now.Add(ttl)
	grant := &session.SudoRecord{
		UserID:    userID,
		SessionID: sessionID,
		CreatedAt: now.Unix(),
		ExpiresAt: expiresAt.Unix(),
	}
	if err := e.sudo.Save(ctx, grant, ttl); err != nil {
		return nil, err
	}

	e.metrics.Inc(MetricSudoGranted)
	e.emitAudit(ctx, EventSudoGranted, userID, sessionID, true, "", nil)
	return &SudoGrant{
		ExpiresIn: int(ttl / time.Second),
		ExpiresAt: expiresAt,
	}, nil
}

// CheckSudo reports whether the session currently holds sudo. A session
// that never elevated gets ErrSudoRequired; one whose elevation lapsed
// gets ErrSudoExpired, so clients can word the prompt accordingly.
func (e *Engine) CheckSudo(ctx context.Context, sessionID string) error {
	now := e.now()

	rec, err := e.sudo.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrSudoRequired
		}
		return err
	}
	if now.Unix() >= rec.ExpiresAt {
		_ = e.sudo.Delete(ctx, sessionID)
		return ErrSudoExpired
	}
	return nil
}

// RevokeSudo drops the session's elevation immediately.
func (e *Engine) RevokeSudo(ctx context.Context, sessionID string) error {
	return e.sudo.Delete(ctx, sessionID)
}

func (e *Engine) clampSudoTTL(requested time.Duration) time.Duration {
	if requested <= 0 {
		return e.config.Sudo.DefaultTTL
	}
	if requested < e.config.Sudo.MinTTL {
		return e.config.Sudo.MinTTL
	}
	if requested > e.config.Sudo.MaxTTL {
		return e.config.Sudo.MaxTTL
	}
	return requested
}
