package trust

import (
	"context"
	"time"
)

// RiskLevel orders anomaly classifications from benign to replay-grade.
type RiskLevel uint8

const (
	// RiskLow means no anomaly signal; the refresh proceeds silently.
	RiskLow RiskLevel = iota
	// RiskMedium means a soft signal worth a security event.
	RiskMedium
	// RiskHigh means a strong signal; allowed by default policy, always audited.
	RiskHigh
	// RiskCritical means a replay-grade signal; the session must be revoked.
	RiskCritical
)

// String returns the canonical upper-case name of the level.
func (r RiskLevel) String() string {
	switch r {
	case RiskMedium:
		return "MEDIUM"
	case RiskHigh:
		return "HIGH"
	case RiskCritical:
		return "CRITICAL"
	default:
		return "LOW"
	}
}

// Anomaly reason codes. Multiple reasons accumulate on one assessment;
// the highest associated risk level wins.
const (
	ReasonIPChange           = "IP_CHANGE"
	ReasonGeographicIPChange = "GEOGRAPHIC_IP_CHANGE"
	ReasonUserAgentChange    = "USER_AGENT_CHANGE"
	ReasonMajorUAChange      = "MAJOR_USER_AGENT_CHANGE"
	ReasonConcurrentUsage    = "CONCURRENT_USAGE"
	ReasonHighUsageRate      = "HIGH_USAGE_RATE"
	ReasonTooManySessions    = "TOO_MANY_SESSIONS"
)

// Assessment is the anomaly engine's verdict for one refresh-token use.
type Assessment struct {
	IsAnomalous bool
	Risk        RiskLevel
	Reasons     []string
}

// User is the account record the engine operates on. PasswordHash is the
// peppered bcrypt hash; plaintext never appears in this struct.
type User struct {
	UserID       string
	Email        string
	Role         string
	PasswordHash string
	TOTPEnabled  bool
	CreatedAt    time.Time
}

// RefreshRecord is the persisted state of one refresh-token rotation.
// Records are revoked, never deleted; history is pruned out of band.
type RefreshRecord struct {
	JTI       string
	SessionID string
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
	IP        string
	UserAgent string
}

// TOTPRecord carries an account's committed TOTP secret.
type TOTPRecord struct {
	Secret  []byte
	Enabled bool
}

// BackupCodeRecord stores the SHA-256 hash of a single backup code.
// The plaintext is returned to the user once and never persisted.
type BackupCodeRecord struct {
	Hash [32]byte
	Used bool
}

// UserStore is the credential side of the relational store.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, userID string) (User, error)
	// SetPassword updates the live hash, appends it to history, and trims
	// history to historyLimit in one transaction.
	SetPassword(ctx context.Context, userID, newHash string, historyLimit int) error
	PasswordHistory(ctx context.Context, userID string, limit int) ([]string, error)
}

// TokenStore is the refresh-token side of the relational store.
type TokenStore interface {
	CreateRefreshRecord(ctx context.Context, rec RefreshRecord) error
	// RevokeIfActive atomically revokes the record for jti when it is
	// still active and returns it. Exactly one of N concurrent callers
	// observes success; the rest get ErrRefreshRevoked.
	RevokeIfActive(ctx context.Context, jti string, now time.Time) (RefreshRecord, error)
	RevokeSession(ctx context.Context, sessionID string, now time.Time) error
	// RevokeAllForUser revokes every active session of the user and
	// returns how many were revoked.
	RevokeAllForUser(ctx context.Context, userID string, now time.Time) (int, error)
	ActiveSessionCount(ctx context.Context, userID string, now time.Time) (int, error)
}

// TwoFactorStore is the 2FA side of the relational store.
type TwoFactorStore interface {
	GetTOTP(ctx context.Context, userID string) (TOTPRecord, error)
	// EnableTOTP commits the verified secret and replaces the backup code
	// set in one transaction.
	EnableTOTP(ctx context.Context, userID string, secret []byte, codes []BackupCodeRecord) error
	DisableTOTP(ctx context.Context, userID string) error
	// ConsumeBackupCode marks the matching unused code as used and reports
	// whether this call was the one that consumed it.
	ConsumeBackupCode(ctx context.Context, userID string, hash [32]byte) (bool, error)
}

// Store is the full relational dependency of the engine.
type Store interface {
	UserStore
	TokenStore
	TwoFactorStore
}

// TokenPair is an access token plus the rotated refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// LoginResult is returned by Engine.Login. When MFARequired is set only
// IntermediateToken is populated; tokens follow after VerifyMFA.
type LoginResult struct {
	AccessToken       string
	RefreshToken      string
	MFARequired       bool
	IntermediateToken string
	User              User
}

// SudoGrant describes a freshly created sudo session.
type SudoGrant struct {
	ExpiresIn int
	ExpiresAt time.Time
}

// TOTPSetup is the provisioning material returned by SetupTOTP. The
// secret is pending until EnableTOTP proves possession.
type TOTPSetup struct {
	Secret     string
	OTPAuthURI string
}

// AuthResult is the outcome of access-token validation.
type AuthResult struct {
	UserID      string
	Email       string
	Role        string
	SessionID   string
	MFAVerified bool
}
