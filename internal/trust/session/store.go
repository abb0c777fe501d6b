// Package session holds the cache-coordinated state of the trust engine:
// per-session fingerprints, sudo sessions, and pending TOTP secrets. The
// cache is the single coordination point across concurrent requests, so
// every check-and-set here is one atomic Redis operation.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a record does not exist or has expired.
var ErrNotFound = errors.New("session record not found")

// ErrCacheUnavailable wraps Redis transport failures.
var ErrCacheUnavailable = errors.New("cache unavailable")

const (
	fingerprintKeyPrefix = "tf"
	sudoKeyPrefix        = "ts"
	pendingKeyPrefix     = "tp"
)

// FingerprintRecord is the cached identity signature of one refresh-token
// session, updated on every use and expiring with the session.
type FingerprintRecord struct {
	UserID     string   `json:"user_id"`
	SessionID  string   `json:"session_id"`
	IP         string   `json:"ip"`
	UserAgent  string   `json:"user_agent"`
	Browser    string   `json:"browser"`
	OS         string   `json:"os"`
	Device     string   `json:"device"`
	Hash       string   `json:"hash"`
	UseCount   int64    `json:"use_count"`
	IPHistory  []string `json:"ip_history,omitempty"`
	UAHistory  []string `json:"ua_history,omitempty"`
	CreatedAt  int64    `json:"created_at"`
	LastUsedAt int64    `json:"last_used_at"`
}

// FingerprintStore persists FingerprintRecords in Redis with a TTL.
type FingerprintStore struct {
	redis redis.UniversalClient
}

// NewFingerprintStore creates a FingerprintStore on the given client.
func NewFingerprintStore(rdb redis.UniversalClient) *FingerprintStore {
	return &FingerprintStore{redis: rdb}
}

func fingerprintKey(sessionID string) string {
	return fingerprintKeyPrefix + ":" + sessionID
}

// Get returns the record for sessionID, or ErrNotFound.
func (s *FingerprintStore) Get(ctx context.Context, sessionID string) (*FingerprintRecord, error) {
	data, err := s.redis.Get(ctx, fingerprintKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	var rec FingerprintRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Save writes the record with the given TTL, replacing any prior value.
func (s *FingerprintStore) Save(ctx context.Context, rec *FingerprintRecord, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, fingerprintKey(rec.SessionID), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// Delete removes the record for sessionID. Missing keys are not an error.
func (s *FingerprintStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.redis.Del(ctx, fingerprintKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// SudoRecord is one time-boxed elevation of trust for a session.
type SudoRecord struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at"`
}

// SudoStore persists SudoRecords in Redis. The Redis TTL runs well past
// ExpiresAt so a guard can observe a lapsed record and report expiry
// distinctly from absence; guards delete lapsed records on sight.
type SudoStore struct {
	redis redis.UniversalClient
}

// NewSudoStore creates a SudoStore on the given client.
func NewSudoStore(rdb redis.UniversalClient) *SudoStore {
	return &SudoStore{redis: rdb}
}

// sudoExpiredRetention is how long a lapsed record stays readable. It
// outlives any plausible working session, so within one the guard can
// always tell an expired elevation from one that never existed.
const sudoExpiredRetention = 24 * time.Hour

func sudoKey(sessionID string) string {
	return sudoKeyPrefix + ":" + sessionID
}

// Save writes the record; ttl is the sudo duration, not the key TTL.
func (s *SudoStore) Save(ctx context.Context, rec *SudoRecord, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, sudoKey(rec.SessionID), data, ttl+sudoExpiredRetention).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// Get returns the record for sessionID, or ErrNotFound. Expiry is the
// caller's decision; Get only reports what is stored.
func (s *SudoStore) Get(ctx context.Context, sessionID string) (*SudoRecord, error) {
	data, err := s.redis.Get(ctx, sudoKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	var rec SudoRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Delete removes the record for sessionID.
func (s *SudoStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.redis.Del(ctx, sudoKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// PendingSecretStore holds TOTP secrets generated during setup but not
// yet proven by the user. Nothing reaches the relational store until
// EnableTOTP verifies a code against the pending secret.
type PendingSecretStore struct {
	redis redis.UniversalClient
}

// NewPendingSecretStore creates a PendingSecretStore on the given client.
func NewPendingSecretStore(rdb redis.UniversalClient) *PendingSecretStore {
	return &PendingSecretStore{redis: rdb}
}

func pendingKey(userID string) string {
	return pendingKeyPrefix + ":" + userID
}

// Save stores the pending secret for userID with the setup-phase TTL.
func (s *PendingSecretStore) Save(ctx context.Context, userID string, secret []byte, ttl time.Duration) error {
	if err := s.redis.Set(ctx, pendingKey(userID), secret, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// Get returns the pending secret for userID, or ErrNotFound.
func (s *PendingSecretStore) Get(ctx context.Context, userID string) ([]byte, error) {
	data, err := s.redis.Get(ctx, pendingKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return data, nil
}

// Delete removes the pending secret for userID.
func (s *PendingSecretStore) Delete(ctx context.Context, userID string) error {
	if err := s.redis.Del(ctx, pendingKey(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}
