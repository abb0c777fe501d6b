// Package jwt issues and verifies the three token kinds of the trust
// engine: short-lived access tokens, rotating refresh tokens, and the
// intermediate token bridging password proof to two-factor proof. Each
// kind is HS256-signed with its own key and carries a "use" claim, so a
// token can never verify as a different kind.
package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token kinds carried in the "use" claim.
const (
	UseAccess       = "access"
	UseRefresh      = "refresh"
	UseIntermediate = "mfa_pending"
)

// ErrTokenInvalid is returned for any token that fails signature,
// expiry, issuer, or kind checks.
var ErrTokenInvalid = errors.New("token invalid")

// Config holds the signing keys and lifetimes for all three kinds.
type Config struct {
	Issuer          string
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	IntermediateTTL time.Duration
	AccessKey       []byte
	RefreshKey      []byte
	IntermediateKey []byte
	Leeway          time.Duration
}

// AccessClaims is the payload of an access token.
type AccessClaims struct {
	Use         string `json:"use"`
	SessionID   string `json:"sid"`
	Email       string `json:"email,omitempty"`
	Role        string `json:"role,omitempty"`
	MFAVerified bool   `json:"mfa,omitempty"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a refresh token. JTI identifies the
// single-use rotation generation; SessionID stays constant across
// rotations of the same session.
type RefreshClaims struct {
	Use       string `json:"use"`
	SessionID string `json:"sid"`
	JTI       string `json:"jti"`
	jwt.RegisteredClaims
}

// IntermediateClaims is the payload of the token issued between a
// correct password and a correct second factor.
type IntermediateClaims struct {
	Use string `json:"use"`
	jwt.RegisteredClaims
}

// Manager signs and verifies engine tokens.
type Manager struct {
	config Config
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 || cfg.IntermediateTTL <= 0 {
		return nil, errors.New("jwt: all TTLs must be > 0")
	}
	if len(cfg.AccessKey) < 32 || len(cfg.RefreshKey) < 32 || len(cfg.IntermediateKey) < 32 {
		return nil, errors.New("jwt: signing keys must be >= 32 bytes")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("jwt: invalid leeway")
	}
	return &Manager{config: cfg}, nil
}

// CreateAccess signs an access token for the given identity.
func (m *Manager) CreateAccess(userID, sessionID, email, role string, mfaVerified bool, now time.Time) (string, error) {
	claims := AccessClaims{
		Use:         UseAccess,
		SessionID:   sessionID,
		Email:       email,
		Role:        role,
		MFAVerified: mfaVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.config.AccessKey)
}

// ParseAccess verifies an access token and returns its claims.
func (m *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parse(tokenStr, claims, m.config.AccessKey); err != nil {
		return nil, err
	}
	if claims.Use != UseAccess {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// CreateRefresh signs a refresh token for one rotation generation.
func (m *Manager) CreateRefresh(userID, sessionID, jti string, now time.Time) (string, error) {
	claims := RefreshClaims{
		Use:       UseRefresh,
		SessionID: sessionID,
		JTI:       jti,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.RefreshTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.config.RefreshKey)
}

// ParseRefresh verifies a refresh token and returns its claims.
func (m *Manager) ParseRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.parse(tokenStr, claims, m.config.RefreshKey); err != nil {
		return nil, err
	}
	if claims.Use != UseRefresh || claims.JTI == "" || claims.SessionID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// CreateIntermediate signs the short-lived token returned by a login
// that still needs a second factor.
func (m *Manager) CreateIntermediate(userID string, now time.Time) (string, error) {
	claims := IntermediateClaims{
		Use: UseIntermediate,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.IntermediateTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.config.IntermediateKey)
}

// ParseIntermediate verifies an intermediate token and returns the
// subject user ID.
func (m *Manager) ParseIntermediate(tokenStr string) (string, error) {
	claims := &IntermediateClaims{}
	if err := m.parse(tokenStr, claims, m.config.IntermediateKey); err != nil {
		return "", err
	}
	if claims.Use != UseIntermediate || claims.Subject == "" {
		return "", ErrTokenInvalid
	}
	return claims.Subject, nil
}

func (m *Manager) parse(tokenStr string, claims jwt.Claims, key []byte) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return key, nil
	})
	if err != nil {
		return ErrTokenInvalid
	}
	if !token.Valid {
		return ErrTokenInvalid
	}
	return nil
}
