package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/Kkocaoglan/IncomeExpense-sub000/internal/trust"
)

type errorBody struct {
	Error      string `json:"error"`
	Message    string `json:"message,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("httpapi: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message})
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	seconds := int(retryAfter / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	writeJSON(w, http.StatusTooManyRequests, errorBody{
		Error:      "too_many_attempts",
		Message:    "too many failed attempts, slow down",
		RetryAfter: seconds,
	})
}

// writeEngineError maps engine errors onto the wire taxonomy. Unknown
// errors become an opaque 500; their detail stays in the server log.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, trust.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "email or password is incorrect")
	case errors.Is(err, trust.ErrInvalidCode):
		writeError(w, http.StatusUnauthorized, "invalid_code", "verification code is incorrect")
	case errors.Is(err, trust.ErrInvalidBackupCode):
		writeError(w, http.StatusUnauthorized, "invalid_backup", "backup code is incorrect or already used")
	case errors.Is(err, trust.ErrIntermediateTokenInvalid):
		writeError(w, http.StatusUnauthorized, "invalid_intermediate", "two-factor challenge expired, log in again")
	case errors.Is(err, trust.ErrRefreshRevoked):
		writeError(w, http.StatusUnauthorized, "refresh_revoked", "session was revoked")
	case errors.Is(err, trust.ErrRefreshInvalid):
		writeError(w, http.StatusUnauthorized, "invalid_refresh", "refresh token is invalid or expired")
	case errors.Is(err, trust.ErrSuspiciousActivity):
		writeError(w, http.StatusUnauthorized, "suspicious_activity", "session terminated due to suspicious activity")
	case errors.Is(err, trust.ErrMFARequired):
		writeError(w, http.StatusUnauthorized, "mfa_required", "a two-factor code is required")
	case errors.Is(err, trust.ErrMFAEnrollmentRequired):
		writeError(w, http.StatusForbidden, "mfa_enrollment_required", "this account must enroll in two-factor authentication")
	case errors.Is(err, trust.ErrSudoRequired):
		writeError(w, http.StatusForbidden, "sudo_required", "this operation requires recent credential confirmation")
	case errors.Is(err, trust.ErrSudoExpired):
		writeError(w, http.StatusForbidden, "sudo_expired", "credential confirmation expired, confirm again")
	case errors.Is(err, trust.ErrTOTPAlreadyEnabled):
		writeError(w, http.StatusConflict, "totp_already_enabled", "two-factor authentication is already enabled")
	case errors.Is(err, trust.ErrTOTPNotConfigured):
		writeError(w, http.StatusBadRequest, "totp_not_configured", "two-factor authentication is not enabled")
	case errors.Is(err, trust.ErrPendingSecretExpired):
		writeError(w, http.StatusBadRequest, "setup_expired", "two-factor setup expired, start over")
	case errors.Is(err, trust.ErrPasswordReused):
		writeError(w, http.StatusBadRequest, "password_reused", "new password was used recently, pick a different one")
	case errors.Is(err, trust.ErrPasswordPolicy):
		writeError(w, http.StatusBadRequest, "weak_password", "password must be at least 10 characters with letters and digits")
	case errors.Is(err, trust.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
	default:
		log.Printf("httpapi: internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "something went wrong")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body is not valid JSON")
		return false
	}
	return true
}
