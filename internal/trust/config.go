package trust

import (
	"errors"
	"time"
)

// Config is the explicit configuration of the trust engine. Instances are
// built once, validated, and treated as immutable afterwards.
type Config struct {
	Tokens   TokenConfig
	Password PasswordConfig
	Anomaly  AnomalyConfig
	Sudo     SudoConfig
	TOTP     TOTPConfig
	Audit    AuditConfig
	Metrics  MetricsConfig

	// RequireAdmin2FA refuses logins for admin-role accounts that have no
	// two-factor enrollment.
	RequireAdmin2FA bool
}

// TokenConfig holds signing keys and lifetimes for the three token kinds.
// Each kind is signed with its own key; an intermediate token can never
// verify as an access token.
type TokenConfig struct {
	Issuer          string
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	IntermediateTTL time.Duration
	AccessKey       []byte
	RefreshKey      []byte
	IntermediateKey []byte
}

// PasswordConfig controls the peppered slow hash and reuse history.
type PasswordConfig struct {
	// Pepper is the server-side secret mixed into every hash. Shorter
	// than 32 bytes fails engine construction, not individual requests.
	Pepper       []byte
	BcryptCost   int
	HistoryLimit int
}

// AnomalyConfig tunes the refresh anomaly state machine.
type AnomalyConfig struct {
	ConcurrentUseWindow   time.Duration
	MaxRotationsPerMinute float64
	MaxActiveSessions     int
	FingerprintTTL        time.Duration
	HistoryDepth          int
	// BlockHighRisk denies HIGH-risk refreshes instead of allow-and-audit.
	// Default policy treats only CRITICAL as authoritative.
	BlockHighRisk bool
}

// SudoConfig bounds sudo session lifetimes. Requested durations are
// clamped into [MinTTL, MaxTTL]; zero requests get DefaultTTL.
type SudoConfig struct {
	DefaultTTL time.Duration
	MinTTL     time.Duration
	MaxTTL     time.Duration
}

// TOTPConfig tunes code verification and backup code generation.
type TOTPConfig struct {
	Issuer           string
	Digits           int
	Period           int
	Skew             int
	PendingSecretTTL time.Duration
	BackupCodeCount  int
	BackupCodeLength int
}

// AuditConfig controls the async security-event dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the baseline configuration. Signing keys and the
// password pepper must still be supplied by the caller.
func DefaultConfig() Config {
	return Config{
		Tokens: TokenConfig{
			Issuer:          "incomeexpense",
			AccessTTL:       15 * time.Minute,
			RefreshTTL:      7 * 24 * time.Hour,
			IntermediateTTL: 5 * time.Minute,
		},
		Password: PasswordConfig{
			BcryptCost:   14,
			HistoryLimit: 5,
		},
		Anomaly: AnomalyConfig{
			ConcurrentUseWindow:   5 * time.Second,
			MaxRotationsPerMinute: 10,
			MaxActiveSessions:     10,
			FingerprintTTL:        7 * 24 * time.Hour,
			HistoryDepth:          5,
			BlockHighRisk:         false,
		},
		Sudo: SudoConfig{
			DefaultTTL: 300 * time.Second,
			MinTTL:     60 * time.Second,
			MaxTTL:     3600 * time.Second,
		},
		TOTP: TOTPConfig{
			Issuer:           "IncomeExpense",
			Digits:           6,
			Period:           30,
			Skew:             1,
			PendingSecretTTL: 10 * time.Minute,
			BackupCodeCount:  10,
			BackupCodeLength: 10,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		RequireAdmin2FA: false,
	}
}

// Validate rejects configurations the engine cannot run safely with.
func (c *Config) Validate() error {
	if c.Tokens.AccessTTL <= 0 || c.Tokens.RefreshTTL <= 0 || c.Tokens.IntermediateTTL <= 0 {
		return errors.New("token TTLs must be > 0")
	}
	if c.Tokens.RefreshTTL <= c.Tokens.AccessTTL {
		return errors.New("refresh TTL must exceed access TTL")
	}
	if len(c.Tokens.AccessKey) < 32 {
		return errors.New("access signing key must be >= 32 bytes")
	}
	if len(c.Tokens.RefreshKey) < 32 {
		return errors.New("refresh signing key must be >= 32 bytes")
	}
	if len(c.Tokens.IntermediateKey) < 32 {
		return errors.New("intermediate signing key must be >= 32 bytes")
	}
	if string(c.Tokens.AccessKey) == string(c.Tokens.IntermediateKey) {
		return errors.New("intermediate key must differ from access key")
	}
	if len(c.Password.Pepper) < 32 {
		return errors.New("password pepper must be >= 32 bytes")
	}
	if c.Password.BcryptCost < 14 {
		return errors.New("bcrypt cost must be >= 14")
	}
	if c.Password.HistoryLimit <= 0 {
		return errors.New("password history limit must be > 0")
	}
	if c.Anomaly.ConcurrentUseWindow <= 0 {
		return errors.New("anomaly concurrent-use window must be > 0")
	}
	if c.Anomaly.MaxRotationsPerMinute <= 0 {
		return errors.New("anomaly rotation rate limit must be > 0")
	}
	if c.Anomaly.MaxActiveSessions <= 0 {
		return errors.New("anomaly session cap must be > 0")
	}
	if c.Anomaly.FingerprintTTL <= 0 {
		return errors.New("fingerprint TTL must be > 0")
	}
	if c.Anomaly.HistoryDepth <= 0 {
		return errors.New("fingerprint history depth must be > 0")
	}
	if c.Sudo.MinTTL <= 0 || c.Sudo.MaxTTL < c.Sudo.MinTTL {
		return errors.New("sudo TTL bounds are invalid")
	}
	if c.Sudo.DefaultTTL < c.Sudo.MinTTL || c.Sudo.DefaultTTL > c.Sudo.MaxTTL {
		return errors.New("sudo default TTL must lie within bounds")
	}
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("totp digits must be 6 or 8")
	}
	if c.TOTP.Period < 15 {
		return errors.New("totp period must be >= 15 seconds")
	}
	if c.TOTP.Skew < 0 {
		return errors.New("totp skew must be >= 0")
	}
	if c.TOTP.PendingSecretTTL <= 0 {
		return errors.New("pending totp secret TTL must be > 0")
	}
	if c.TOTP.BackupCodeCount <= 0 || c.TOTP.BackupCodeLength < 8 {
		return errors.New("backup code configuration is invalid")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("audit buffer size must be > 0 when audit is enabled")
	}
	return nil
}
