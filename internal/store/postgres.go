// Package store implements the engine's relational persistence on
// PostgreSQL. Everything with a read-modify-write shape is a single
// guarded UPDATE so concurrent callers resolve inside the database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/Kkocaoglan/IncomeExpense-sub000/internal/trust"
)

// Postgres implements trust.Store.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens and pings the database.
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

// NewPostgresFromDB wraps an existing handle, mainly for tests.
func NewPostgresFromDB(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) DB() *sql.DB {
	return p.db
}

func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (trust.User, error) {
	return p.getUser(ctx, `SELECT id, email, role, password_hash, totp_enabled, created_at
		FROM users WHERE email = $1`, email)
}

func (p *Postgres) GetUserByID(ctx context.Context, userID string) (trust.User, error) {
	return p.getUser(ctx, `SELECT id, email, role, password_hash, totp_enabled, created_at
		FROM users WHERE id = $1`, userID)
}

func (p *Postgres) getUser(ctx context.Context, query, arg string) (trust.User, error) {
	var u trust.User
	err := p.db.QueryRowContext(ctx, query, arg).
		Scan(&u.UserID, &u.Email, &u.Role, &u.PasswordHash, &u.TOTPEnabled, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return trust.User{}, trust.ErrUserNotFound
		}
		return trust.User{}, fmt.Errorf("store: query user: %w", err)
	}
	return u, nil
}

// CreateUser inserts an account and seeds its password history with the
// initial hash, so the first change already has a reuse baseline.
func (p *Postgres) CreateUser(ctx context.Context, u trust.User) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO users (id, email, role, password_hash, totp_enabled, created_at)
		VALUES ($1, $2, $3, $4, FALSE, $5)`,
		u.UserID, u.Email, u.Role, u.PasswordHash, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: insert user: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO password_history (user_id, password_hash, created_at)
		VALUES ($1, $2, $3)`, u.UserID, u.PasswordHash, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: seed password history: %w", err)
	}
	return tx.Commit()
}

// SetPassword updates the live hash, appends it to history, and trims
// history to historyLimit, all in one transaction.
func (p *Postgres) SetPassword(ctx context.Context, userID, newHash string, historyLimit int) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, userID, newHash)
	if err != nil {
		return fmt.Errorf("store: update password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return trust.ErrUserNotFound
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO password_history (user_id, password_hash, created_at)
		VALUES ($1, $2, NOW())`, userID, newHash)
	if err != nil {
		return fmt.Errorf("store: append password history: %w", err)
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM password_history
		WHERE user_id = $1 AND id NOT IN (
			SELECT id FROM password_history
			WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2
		)`, userID, historyLimit)
	if err != nil {
		return fmt.Errorf("store: trim password history: %w", err)
	}

	return tx.Commit()
}

func (p *Postgres) PasswordHistory(ctx context.Context, userID string, limit int) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT password_hash FROM password_history
		WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query password history: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("store: scan password history: %w", err)
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

func (p *Postgres) CreateRefreshRecord(ctx context.Context, rec trust.RefreshRecord) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO refresh_tokens
		(jti, session_id, user_id, issued_at, expires_at, ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.JTI, rec.SessionID, rec.UserID, rec.IssuedAt, rec.ExpiresAt, rec.IP, rec.UserAgent)
	if err != nil {
		return fmt.Errorf("store: insert refresh record: %w", err)
	}
	return nil
}

// RevokeIfActive is the rotation winner election. The guarded UPDATE
// commits for exactly one of N concurrent presenters of the same jti;
// the losers see zero rows and are classified as reuse or unknown.
func (p *Postgres) RevokeIfActive(ctx context.Context, jti string, now time.Time) (trust.RefreshRecord, error) {
	rec := trust.RefreshRecord{JTI: jti}
	err := p.db.QueryRowContext(ctx, `UPDATE refresh_tokens SET revoked_at = $2
		WHERE jti = $1 AND revoked_at IS NULL AND expires_at > $2
		RETURNING session_id, user_id, issued_at, expires_at, ip, user_agent`, jti, now).
		Scan(&rec.SessionID, &rec.UserID, &rec.IssuedAt, &rec.ExpiresAt, &rec.IP, &rec.UserAgent)
	if err == nil {
		rec.RevokedAt = &now
		return rec, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return trust.RefreshRecord{}, fmt.Errorf("store: revoke refresh record: %w", err)
	}

	// Distinguish a spent generation from a token we never issued.
	var exists bool
	if err := p.db.QueryRowContext(ctx, `SELECT TRUE FROM refresh_tokens WHERE jti = $1`, jti).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return trust.RefreshRecord{}, trust.ErrRefreshInvalid
		}
		return trust.RefreshRecord{}, fmt.Errorf("store: lookup refresh record: %w", err)
	}
	return trust.RefreshRecord{}, trust.ErrRefreshRevoked
}

func (p *Postgres) RevokeSession(ctx context.Context, sessionID string, now time.Time) error {
	_, err := p.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked_at = $2
		WHERE session_id = $1 AND revoked_at IS NULL`, sessionID, now)
	if err != nil {
		return fmt.Errorf("store: revoke session: %w", err)
	}
	return nil
}

func (p *Postgres) RevokeAllForUser(ctx context.Context, userID string, now time.Time) (int, error) {
	res, err := p.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2`, userID, now)
	if err != nil {
		return 0, fmt.Errorf("store: revoke all sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (p *Postgres) ActiveSessionCount(ctx context.Context, userID string, now time.Time) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT session_id) FROM refresh_tokens
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2`, userID, now).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count sessions: %w", err)
	}
	return n, nil
}

func (p *Postgres) GetTOTP(ctx context.Context, userID string) (trust.TOTPRecord, error) {
	var rec trust.TOTPRecord
	var secret []byte
	err := p.db.QueryRowContext(ctx, `SELECT totp_secret, totp_enabled FROM users WHERE id = $1`, userID).
		Scan(&secret, &rec.Enabled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return trust.TOTPRecord{}, trust.ErrUserNotFound
		}
		return trust.TOTPRecord{}, fmt.Errorf("store: query totp: %w", err)
	}
	rec.Secret = secret
	return rec, nil
}

// EnableTOTP commits the verified secret and replaces the backup code
// set in one transaction.
func (p *Postgres) EnableTOTP(ctx context.Context, userID string, secret []byte, codes []trust.BackupCodeRecord) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE users SET totp_secret = $2, totp_enabled = TRUE WHERE id = $1`,
		userID, secret)
	if err != nil {
		return fmt.Errorf("store: enable totp: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return trust.ErrUserNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM backup_codes WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("store: clear backup codes: %w", err)
	}
	for _, code := range codes {
		_, err := tx.ExecContext(ctx, `INSERT INTO backup_codes (user_id, code_hash, used, created_at)
			VALUES ($1, $2, FALSE, NOW())`, userID, code.Hash[:])
		if err != nil {
			return fmt.Errorf("store: insert backup code: %w", err)
		}
	}

	return tx.Commit()
}

func (p *Postgres) DisableTOTP(ctx context.Context, userID string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE users SET totp_secret = NULL, totp_enabled = FALSE WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("store: disable totp: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return trust.ErrUserNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM backup_codes WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("store: clear backup codes: %w", err)
	}
	return tx.Commit()
}

// ConsumeBackupCode marks the matching unused code as used. The guarded
// UPDATE makes double-spending a code impossible: the second presenter
// matches zero rows.
func (p *Postgres) ConsumeBackupCode(ctx context.Context, userID string, hash [32]byte) (bool, error) {
	res, err := p.db.ExecContext(ctx, `UPDATE backup_codes SET used = TRUE, used_at = NOW()
		WHERE user_id = $1 AND code_hash = $2 AND used = FALSE`, userID, hash[:])
	if err != nil {
		return false, fmt.Errorf("store: consume backup code: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: consume backup code: %w", err)
	}
	return n == 1, nil
}
