package trust

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"strings"
)

// backupCodeAlphabet excludes 0/O/1/I/L so codes survive being read
// aloud or written down.
const backupCodeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// generateBackupCodes produces the configured number of single-use
// codes, returning display-formatted plaintexts and the hash records
// that get persisted.
func (e *Engine) generateBackupCodes(userID string) ([]string, []BackupCodeRecord, error) {
	count := e.config.TOTP.BackupCodeCount
	length := e.config.TOTP.BackupCodeLength

	plaintexts := make([]string, 0, count)
	records := make([]BackupCodeRecord, 0, count)
	for i := 0; i < count; i++ {
		raw, err := randomBackupCode(length)
		if err != nil {
			return nil, nil, err
		}
		plaintexts = append(plaintexts, formatBackupCode(raw))
		records = append(records, BackupCodeRecord{Hash: hashBackupCode(userID, raw)})
	}
	return plaintexts, records, nil
}

// consumeBackupCode atomically marks the matching unused code as used.
// Presenting the same code twice consumes it exactly once.
func (e *Engine) consumeBackupCode(ctx context.Context, userID, presented string) (bool, error) {
	canonical := canonicalizeBackupCode(presented)
	if len(canonical) != e.config.TOTP.BackupCodeLength {
		return false, nil
	}
	return e.store.ConsumeBackupCode(ctx, userID, hashBackupCode(userID, canonical))
}

func randomBackupCode(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, length)
	for i, b := range buf {
		out[i] = backupCodeAlphabet[int(b)%len(backupCodeAlphabet)]
	}
	return string(out), nil
}

// canonicalizeBackupCode strips separators and whitespace and upper-cases
// the rest, so "ab2c3-d4ef5" and "AB2C3D4EF5" are the same code.
func canonicalizeBackupCode(code string) string {
	var b strings.Builder
	b.Grow(len(code))
	for _, r := range strings.ToUpper(code) {
		if r == '-' || r == ' ' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// hashBackupCode binds the hash to the user so identical codes issued
// to different accounts never collide in storage.
func hashBackupCode(userID, canonical string) [32]byte {
	return sha256.Sum256([]byte(userID + ":" + canonical))
}

// formatBackupCode inserts a dash at the midpoint for readability.
func formatBackupCode(raw string) string {
	mid := len(raw) / 2
	return raw[:mid] + "-" + raw[mid:]
}
