package trust

import (
	"context"
	"sync"
	"time"
)

// fakeStore is an in-package Store for engine tests. Its guarded
// mutations mirror the relational adapter's semantics, including the
// exactly-one-winner rotation.
type fakeStore struct {
	mu      sync.Mutex
	users   map[string]User
	emails  map[string]string
	history map[string][]string
	tokens  map[string]*RefreshRecord
	totp    map[string]TOTPRecord
	backup  map[string][]BackupCodeRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   make(map[string]User),
		emails:  make(map[string]string),
		history: make(map[string][]string),
		tokens:  make(map[string]*RefreshRecord),
		totp:    make(map[string]TOTPRecord),
		backup:  make(map[string][]BackupCodeRecord),
	}
}

func (f *fakeStore) CreateUser(_ context.Context, u User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.UserID] = u
	f.emails[u.Email] = u.UserID
	f.history[u.UserID] = []string{u.PasswordHash}
	return nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.emails[email]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return f.users[id], nil
}

func (f *fakeStore) GetUserByID(_ context.Context, userID string) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (f *fakeStore) SetPassword(_ context.Context, userID, newHash string, historyLimit int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = newHash
	f.users[userID] = u

	hist := append([]string{newHash}, f.history[userID]...)
	if len(hist) > historyLimit {
		hist = hist[:historyLimit]
	}
	f.history[userID] = hist
	return nil
}

func (f *fakeStore) PasswordHistory(_ context.Context, userID string, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	hist := f.history[userID]
	if len(hist) > limit {
		hist = hist[:limit]
	}
	out := make([]string, len(hist))
	copy(out, hist)
	return out, nil
}

func (f *fakeStore) CreateRefreshRecord(_ context.Context, rec RefreshRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[rec.JTI] = &rec
	return nil
}

func (f *fakeStore) RevokeIfActive(_ context.Context, jti string, now time.Time) (RefreshRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.tokens[jti]
	if !ok {
		return RefreshRecord{}, ErrRefreshInvalid
	}
	if rec.RevokedAt != nil || !rec.ExpiresAt.After(now) {
		return RefreshRecord{}, ErrRefreshRevoked
	}
	revokedAt := now
	rec.RevokedAt = &revokedAt
	return *rec, nil
}

func (f *fakeStore) RevokeSession(_ context.Context, sessionID string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.tokens {
		if rec.SessionID == sessionID && rec.RevokedAt == nil {
			revokedAt := now
			rec.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (f *fakeStore) RevokeAllForUser(_ context.Context, userID string, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, rec := range f.tokens {
		if rec.UserID == userID && rec.RevokedAt == nil && rec.ExpiresAt.After(now) {
			revokedAt := now
			rec.RevokedAt = &revokedAt
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ActiveSessionCount(_ context.Context, userID string, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sessions := make(map[string]struct{})
	for _, rec := range f.tokens {
		if rec.UserID == userID && rec.RevokedAt == nil && rec.ExpiresAt.After(now) {
			sessions[rec.SessionID] = struct{}{}
		}
	}
	return len(sessions), nil
}

func (f *fakeStore) GetTOTP(_ context.Context, userID string) (TOTPRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[userID]; !ok {
		return TOTPRecord{}, ErrUserNotFound
	}
	return f.totp[userID], nil
}

func (f *fakeStore) EnableTOTP(_ context.Context, userID string, secret []byte, codes []BackupCodeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.TOTPEnabled = true
	f.users[userID] = u
	f.totp[userID] = TOTPRecord{Secret: secret, Enabled: true}
	f.backup[userID] = append([]BackupCodeRecord(nil), codes...)
	return nil
}

func (f *fakeStore) DisableTOTP(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.TOTPEnabled = false
	f.users[userID] = u
	delete(f.totp, userID)
	delete(f.backup, userID)
	return nil
}

func (f *fakeStore) ConsumeBackupCode(_ context.Context, userID string, hash [32]byte) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	codes := f.backup[userID]
	for i := range codes {
		if codes[i].Hash == hash && !codes[i].Used {
			codes[i].Used = true
			return true, nil
		}
	}
	return false, nil
}
