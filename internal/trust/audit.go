package trust

import (
	"context"
	"time"

	"github.com/Kkocaoglan/IncomeExpense-sub000/internal/audit"
)

// Security event types emitted by the engine.
const (
	EventLogin           = "login"
	EventLoginFailed     = "login_failed"
	EventMFAVerified     = "mfa_verified"
	EventMFAFailed       = "mfa_failed"
	EventRefresh         = "refresh"
	EventRefreshReuse    = "refresh_reuse"
	EventAnomaly         = "anomaly_detected"
	EventSessionRevoked  = "session_revoked"
	EventSudoGranted     = "sudo_granted"
	EventSudoDenied      = "sudo_denied"
	EventTOTPEnabled     = "totp_enabled"
	EventTOTPDisabled    = "totp_disabled"
	EventBackupCodeUsed  = "backup_code_used"
	EventPasswordChanged = "password_changed"
	EventPasswordReused  = "password_reuse_rejected"
	EventAdminRevocation = "admin_session_revocation"
)

func (e *Engine) emitAudit(ctx context.Context, eventType, userID, sessionID string, success bool, errText string, meta map[string]string) {
	if e.audit == nil {
		return
	}
	e.audit.Emit(ctx, audit.Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Error:     errText,
		Metadata:  meta,
	})
}
