package store

import (
	"context"
	"sync"
	"time"

	"github.com/Kkocaoglan/IncomeExpense-sub000/internal/trust"
)

// Memory is a mutex-guarded trust.Store for tests and local runs. The
// guarded mutations mirror the Postgres implementation's semantics,
// including the exactly-one-winner rotation.
type Memory struct {
	mu      sync.Mutex
	users   map[string]trust.User
	emails  map[string]string
	history map[string][]string
	tokens  map[string]*memToken
	totp    map[string]trust.TOTPRecord
	backup  map[string][]trust.BackupCodeRecord
}

type memToken struct {
	rec trust.RefreshRecord
}

func NewMemory() *Memory {
	return &Memory{
		users:   make(map[string]trust.User),
		emails:  make(map[string]string),
		history: make(map[string][]string),
		tokens:  make(map[string]*memToken),
		totp:    make(map[string]trust.TOTPRecord),
		backup:  make(map[string][]trust.BackupCodeRecord),
	}
}

func (m *Memory) CreateUser(_ context.Context, u trust.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.UserID] = u
	m.emails[u.Email] = u.UserID
	m.history[u.UserID] = []string{u.PasswordHash}
	return nil
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (trust.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.emails[email]
	if !ok {
		return trust.User{}, trust.ErrUserNotFound
	}
	return m.users[id], nil
}

func (m *Memory) GetUserByID(_ context.Context, userID string) (trust.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return trust.User{}, trust.ErrUserNotFound
	}
	return u, nil
}

func (m *Memory) SetPassword(_ context.Context, userID, newHash string, historyLimit int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return trust.ErrUserNotFound
	}
	u.PasswordHash = newHash
	m.users[userID] = u

	hist := append([]string{newHash}, m.history[userID]...)
	if len(hist) > historyLimit {
		hist = hist[:historyLimit]
	}
	m.history[userID] = hist
	return nil
}

func (m *Memory) PasswordHistory(_ context.Context, userID string, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hist := m.history[userID]
	if len(hist) > limit {
		hist = hist[:limit]
	}
	out := make([]string, len(hist))
	copy(out, hist)
	return out, nil
}

func (m *Memory) CreateRefreshRecord(_ context.Context, rec trust.RefreshRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[rec.JTI] = &memToken{rec: rec}
	return nil
}

func (m *Memory) RevokeIfActive(_ context.Context, jti string, now time.Time) (trust.RefreshRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[jti]
	if !ok {
		return trust.RefreshRecord{}, trust.ErrRefreshInvalid
	}
	if tok.rec.RevokedAt != nil || !tok.rec.ExpiresAt.After(now) {
		return trust.RefreshRecord{}, trust.ErrRefreshRevoked
	}
	revokedAt := now
	tok.rec.RevokedAt = &revokedAt
	return tok.rec, nil
}

func (m *Memory) RevokeSession(_ context.Context, sessionID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tok := range m.tokens {
		if tok.rec.SessionID == sessionID && tok.rec.RevokedAt == nil {
			revokedAt := now
			tok.rec.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *Memory) RevokeAllForUser(_ context.Context, userID string, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, tok := range m.tokens {
		if tok.rec.UserID == userID && tok.rec.RevokedAt == nil && tok.rec.ExpiresAt.After(now) {
			revokedAt := now
			tok.rec.RevokedAt = &revokedAt
			n++
		}
	}
	return n, nil
}

func (m *Memory) ActiveSessionCount(_ context.Context, userID string, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sessions := make(map[string]struct{})
	for _, tok := range m.tokens {
		if tok.rec.UserID == userID && tok.rec.RevokedAt == nil && tok.rec.ExpiresAt.After(now) {
			sessions[tok.rec.SessionID] = struct{}{}
		}
	}
	return len(sessions), nil
}

func (m *Memory) GetTOTP(_ context.Context, userID string) (trust.TOTPRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return trust.TOTPRecord{}, trust.ErrUserNotFound
	}
	return m.totp[userID], nil
}

func (m *Memory) EnableTOTP(_ context.Context, userID string, secret []byte, codes []trust.BackupCodeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return trust.ErrUserNotFound
	}
	u.TOTPEnabled = true
	m.users[userID] = u
	m.totp[userID] = trust.TOTPRecord{Secret: secret, Enabled: true}
	m.backup[userID] = append([]trust.BackupCodeRecord(nil), codes...)
	return nil
}

func (m *Memory) DisableTOTP(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return trust.ErrUserNotFound
	}
	u.TOTPEnabled = false
	m.users[userID] = u
	delete(m.totp, userID)
	delete(m.backup, userID)
	return nil
}

func (m *Memory) ConsumeBackupCode(_ context.Context, userID string, hash [32]byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	codes := m.backup[userID]
	for i := range codes {
		if codes[i].Hash == hash && !codes[i].Used {
			codes[i].Used = true
			return true, nil
		}
	}
	return false, nil
}
