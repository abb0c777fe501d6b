package trust

import "errors"

var (
	// ErrInvalidCredentials is returned for unknown users and wrong
	// passwords alike; callers must not be able to distinguish the two.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned by internal lookups keyed by user id.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCode is returned when a submitted TOTP code does not verify.
	ErrInvalidCode = errors.New("invalid totp code")
	// ErrInvalidBackupCode is returned when a backup code is unknown or already consumed.
	ErrInvalidBackupCode = errors.New("invalid backup code")
	// ErrRefreshInvalid is returned when a presented refresh token cannot be parsed or verified.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrRefreshRevoked is returned when a presented refresh token was
	// already rotated, revoked, or never existed. A revoked record can
	// never again mint a successor.
	ErrRefreshRevoked = errors.New("refresh token revoked")
	// ErrSuspiciousActivity is returned when the anomaly engine classifies
	// a refresh as CRITICAL; the session is revoked and the caller must
	// authenticate again.
	ErrSuspiciousActivity = errors.New("suspicious activity detected")
	// ErrMFARequired signals that password verification succeeded but a
	// second factor is needed before credentials are issued.
	ErrMFARequired = errors.New("mfa required")
	// ErrMFAEnrollmentRequired is returned when policy demands two-factor
	// enrollment (admin accounts) and the account has none.
	ErrMFAEnrollmentRequired = errors.New("mfa enrollment required")
	// ErrIntermediateTokenInvalid is returned for bad or expired MFA intermediate tokens.
	ErrIntermediateTokenInvalid = errors.New("invalid intermediate token")
	// ErrSudoRequired is returned by the sudo guard when no sudo session exists.
	ErrSudoRequired = errors.New("sudo session required")
	// ErrSudoExpired is returned when a sudo session existed but has lapsed;
	// the stale record is deleted as a side effect.
	ErrSudoExpired = errors.New("sudo session expired")
	// ErrTOTPNotConfigured is returned when an operation needs an active TOTP secret and none exists.
	ErrTOTPNotConfigured = errors.New("totp not configured")
	// ErrTOTPAlreadyEnabled is returned when setup is attempted on an already enrolled account.
	ErrTOTPAlreadyEnabled = errors.New("totp already enabled")
	// ErrPendingSecretExpired is returned when enable is attempted after the
	// setup-phase secret lapsed or was never generated.
	ErrPendingSecretExpired = errors.New("pending totp secret expired")
	// ErrPasswordReused is returned when a candidate password matches one of
	// the retained history hashes.
	ErrPasswordReused = errors.New("password was used recently")
	// ErrPasswordPolicy is returned for passwords that fail basic input validation.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrUnauthorized is returned for missing or unverifiable access tokens.
	ErrUnauthorized = errors.New("unauthorized")
)
