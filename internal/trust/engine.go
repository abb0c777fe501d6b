// Package trust implements the session trust engine: credential
// verification, rotating refresh sessions with anomaly scoring, login
// step-up via TOTP, and time-boxed sudo elevation. The engine is
// transport-agnostic; the HTTP layer adapts it to routes and status
// codes.
package trust

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Kkocaoglan/IncomeExpense-sub000/internal/audit"
	"github.com/Kkocaoglan/IncomeExpense-sub000/internal/trust/jwt"
	"github.com/Kkocaoglan/IncomeExpense-sub000/internal/trust/password"
	"github.com/Kkocaoglan/IncomeExpense-sub000/internal/trust/session"
)

// Engine is the session trust engine. Construct with New; the zero
// value is not usable.
type Engine struct {
	config       Config
	store        Store
	hasher       *password.Hasher
	tokens       *jwt.Manager
	totp         *totpManager
	fingerprints *session.FingerprintStore
	sudo         *session.SudoStore
	pending      *session.PendingSecretStore
	audit        *audit.Dispatcher
	metrics      *Metrics
	dummyHash    string
	now          func() time.Time
}

// New validates cfg and wires the engine. The audit sink may be nil.
func New(cfg Config, store Store, rdb redis.UniversalClient, sink audit.Sink) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("trust: store is required")
	}
	if rdb == nil {
		return nil, errors.New("trust: redis client is required")
	}

	hasher, err := password.NewHasher(cfg.Password.Pepper, cfg.Password.BcryptCost)
	if err != nil {
		return nil, err
	}

	tokens, err := jwt.NewManager(jwt.Config{
		Issuer:          cfg.Tokens.Issuer,
		AccessTTL:       cfg.Tokens.AccessTTL,
		RefreshTTL:      cfg.Tokens.RefreshTTL,
		IntermediateTTL: cfg.Tokens.IntermediateTTL,
		AccessKey:       cfg.Tokens.AccessKey,
		RefreshKey:      cfg.Tokens.RefreshKey,
		IntermediateKey: cfg.Tokens.IntermediateKey,
	})
	if err != nil {
		return nil, err
	}

	// Hash of random input, verified against unknown accounts so login
	// timing does not reveal whether an email exists.
	seed := make([]byte, 16)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	dummyHash, err := hasher.Hash(hex.EncodeToString(seed))
	if err != nil {
		return nil, err
	}

	e := &Engine{
		config:       cfg,
		store:        store,
		hasher:       hasher,
		tokens:       tokens,
		totp:         newTOTPManager(cfg.TOTP),
		fingerprints: session.NewFingerprintStore(rdb),
		sudo:         session.NewSudoStore(rdb),
		pending:      session.NewPendingSecretStore(rdb),
		metrics:      NewMetrics(cfg.Metrics),
		dummyHash:    dummyHash,
		now:          time.Now,
	}
	if cfg.Audit.Enabled {
		e.audit = audit.NewDispatcher(cfg.Audit.BufferSize, sink)
	}
	return e, nil
}

// Close drains the audit dispatcher. Call on shutdown.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// Metrics exposes the engine's counters.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// Login verifies the credential pair. Accounts with two-factor enabled
// get an intermediate token instead of a session; VerifyMFA finishes
// the login.
func (e *Engine) Login(ctx context.Context, email, plaintext string) (*LoginResult, error) {
	now := e.now()

	user, err := e.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Burn a hash verification so the miss costs as much as a hit.
			_, _ = e.hasher.Verify(plaintext, e.dummyHash)
			e.metrics.Inc(MetricLoginFailure)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := e.hasher.Verify(plaintext, user.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		e.metrics.Inc(MetricLoginFailure)
		e.emitAudit(ctx, EventLoginFailed, user.UserID, "", false, "invalid credentials", nil)
		return nil, ErrInvalidCredentials
	}

	if e.config.RequireAdmin2FA && user.Role == "admin" && !user.TOTPEnabled {
		return nil, ErrMFAEnrollmentRequired
	}

	if user.TOTPEnabled {
		intermediate, err := e.tokens.CreateIntermediate(user.UserID, now)
		if err != nil {
			return nil, err
		}
		e.metrics.Inc(MetricMFARequired)
		return &LoginResult{
			MFARequired:       true,
			IntermediateToken: intermediate,
			User:              user,
		}, nil
	}

	pair, sessionID, err := e.issueSessionTokens(ctx, user, false, now)
	if err != nil {
		return nil, err
	}
	e.metrics.Inc(MetricLoginSuccess)
	e.emitAudit(ctx, EventLogin, user.UserID, sessionID, true, "", nil)
	return &LoginResult{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         user,
	}, nil
}

// issueSessionTokens mints a fresh session: refresh record, both
// tokens, and the initial fingerprint.
func (e *Engine) issueSessionTokens(ctx context.Context, user User, mfaVerified bool, now time.Time) (*TokenPair, string, error) {
	sessionID := uuid.NewString()
	jti := uuid.NewString()
	fp := ExtractFingerprint(clientIPFromContext(ctx), userAgentFromContext(ctx))

	rec := RefreshRecord{
		JTI:       jti,
		SessionID: sessionID,
		UserID:    user.UserID,
		IssuedAt:  now,
		ExpiresAt: now.Add(e.config.Tokens.RefreshTTL),
		IP:        fp.IP,
		UserAgent: fp.UserAgent,
	}
	if err := e.store.CreateRefreshRecord(ctx, rec); err != nil {
		return nil, "", err
	}

	accessToken, err := e.tokens.CreateAccess(user.UserID, sessionID, user.Email, user.Role, mfaVerified, now)
	if err != nil {
		return nil, "", err
	}
	refreshToken, err := e.tokens.CreateRefresh(user.UserID, sessionID, jti, now)
	if err != nil {
		return nil, "", err
	}

	fpRec := &session.FingerprintRecord{
		UserID:     user.UserID,
		SessionID:  sessionID,
		IP:         fp.IP,
		UserAgent:  fp.UserAgent,
		Browser:    fp.Browser,
		OS:         fp.OS,
		Device:     fp.Device,
		Hash:       fp.Hash,
		UseCount:   0,
		CreatedAt:  now.Unix(),
		LastUsedAt: now.Unix(),
	}
	if err := e.fingerprints.Save(ctx, fpRec, e.config.Anomaly.FingerprintTTL); err != nil {
		// Fingerprint loss degrades anomaly detection, never login.
		log.Printf("trust: fingerprint save failed for session %s: %v", sessionID, err)
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, sessionID, nil
}

// Refresh rotates a refresh token. The presented generation is revoked
// and a new one issued in its place; under concurrent presentation of
// the same token exactly one caller wins. A token that was already
// rotated is a reuse signal and revokes the whole session.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	now := e.now()

	claims, err := e.tokens.ParseRefresh(refreshToken)
	if err != nil {
		e.metrics.Inc(MetricRefreshFailure)
		return nil, ErrRefreshInvalid
	}

	rec, err := e.store.RevokeIfActive(ctx, claims.JTI, now)
	if err != nil {
		if errors.Is(err, ErrRefreshRevoked) {
			// This generation was already spent: either a stolen token or a
			// replayed one. Kill the session.
			if revokeErr := e.store.RevokeSession(ctx, claims.SessionID, now); revokeErr != nil {
				log.Printf("trust: session revoke after reuse failed: %v", revokeErr)
			}
			_ = e.fingerprints.Delete(ctx, claims.SessionID)
			e.metrics.Inc(MetricRefreshReuseDetected)
			e.emitAudit(ctx, EventRefreshReuse, claims.Subject, claims.SessionID, false, "refresh token reuse", nil)
			return nil, ErrRefreshRevoked
		}
		if errors.Is(err, ErrRefreshInvalid) {
			e.metrics.Inc(MetricRefreshFailure)
			return nil, ErrRefreshInvalid
		}
		return nil, err
	}

	assessment := e.assessRefreshAnomaly(ctx, rec, now)
	if e.deny(assessment) {
		if revokeErr := e.store.RevokeSession(ctx, rec.SessionID, now); revokeErr != nil {
			log.Printf("trust: session revoke after anomaly failed: %v", revokeErr)
		}
		_ = e.fingerprints.Delete(ctx, rec.SessionID)
		e.metrics.Inc(MetricAnomalyCritical)
		e.metrics.Inc(MetricSessionRevoked)
		e.emitAudit(ctx, EventAnomaly, rec.UserID, rec.SessionID, false, "suspicious activity", anomalyMeta(assessment))
		return nil, ErrSuspiciousActivity
	}
	if assessment.IsAnomalous {
		switch assessment.Risk {
		case RiskHigh:
			e.metrics.Inc(MetricAnomalyHigh)
		default:
			e.metrics.Inc(MetricAnomalyMedium)
		}
		e.emitAudit(ctx, EventAnomaly, rec.UserID, rec.SessionID, true, "", anomalyMeta(assessment))
	}

	user, err := e.store.GetUserByID(ctx, rec.UserID)
	if err != nil {
		return nil, err
	}

	jti := uuid.NewString()
	next := RefreshRecord{
		JTI:       jti,
		SessionID: rec.SessionID,
		UserID:    rec.UserID,
		IssuedAt:  now,
		ExpiresAt: now.Add(e.config.Tokens.RefreshTTL),
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
	}
	if err := e.store.CreateRefreshRecord(ctx, next); err != nil {
		return nil, err
	}

	// Session claims carry whether the session holder has proven a
	// second factor; a plain refresh never upgrades that, it mirrors
	// the account's current enrollment.
	accessToken, err := e.tokens.CreateAccess(user.UserID, rec.SessionID, user.Email, user.Role, user.TOTPEnabled, now)
	if err != nil {
		return nil, err
	}
	newRefresh, err := e.tokens.CreateRefresh(user.UserID, rec.SessionID, jti, now)
	if err != nil {
		return nil, err
	}

	e.touchFingerprint(ctx, rec.SessionID, user.UserID, now)
	e.metrics.Inc(MetricRefreshSuccess)
	e.emitAudit(ctx, EventRefresh, user.UserID, rec.SessionID, true, "", nil)
	return &TokenPair{AccessToken: accessToken, RefreshToken: newRefresh}, nil
}

// assessRefreshAnomaly scores the refresh. Every internal failure here
// fails open: a broken cache must not lock users out.
func (e *Engine) assessRefreshAnomaly(ctx context.Context, rec RefreshRecord, now time.Time) Assessment {
	fp := ExtractFingerprint(clientIPFromContext(ctx), userAgentFromContext(ctx))

	prior, err := e.fingerprints.Get(ctx, rec.SessionID)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		log.Printf("trust: fingerprint lookup failed for session %s: %v", rec.SessionID, err)
		return Assessment{Risk: RiskLow}
	}

	active, err := e.store.ActiveSessionCount(ctx, rec.UserID, now)
	if err != nil {
		log.Printf("trust: active session count failed for user %s: %v", rec.UserID, err)
		active = 0
	}

	return assessAnomaly(e.config.Anomaly, prior, fp, active, now)
}

func (e *Engine) deny(a Assessment) bool {
	if a.Risk >= RiskCritical {
		return true
	}
	return e.config.Anomaly.BlockHighRisk && a.Risk >= RiskHigh
}

// touchFingerprint folds the current request into the session's cached
// fingerprint record, creating it if the cache lost it.
func (e *Engine) touchFingerprint(ctx context.Context, sessionID, userID string, now time.Time) {
	fp := ExtractFingerprint(clientIPFromContext(ctx), userAgentFromContext(ctx))

	rec, err := e.fingerprints.Get(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			log.Printf("trust: fingerprint lookup failed for session %s: %v", sessionID, err)
			return
		}
		rec = &session.FingerprintRecord{
			UserID:    userID,
			SessionID: sessionID,
			CreatedAt: now.Unix(),
		}
	}
	recordUse(rec, fp, e.config.Anomaly.HistoryDepth, now)
	if err := e.fingerprints.Save(ctx, rec, e.config.Anomaly.FingerprintTTL); err != nil {
		log.Printf("trust: fingerprint save failed for session %s: %v", sessionID, err)
	}
}

// ValidateAccess verifies an access token and returns the authenticated
// identity.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*AuthResult, error) {
	claims, err := e.tokens.ParseAccess(accessToken)
	if err != nil {
		return nil, ErrUnauthorized
	}
	return &AuthResult{
		UserID:      claims.Subject,
		Email:       claims.Email,
		Role:        claims.Role,
		SessionID:   claims.SessionID,
		MFAVerified: claims.MFAVerified,
	}, nil
}

// Logout revokes one session and its cached state.
func (e *Engine) Logout(ctx context.Context, userID, sessionID string) error {
	now := e.now()
	if err := e.store.RevokeSession(ctx, sessionID, now); err != nil {
		return err
	}
	_ = e.fingerprints.Delete(ctx, sessionID)
	_ = e.sudo.Delete(ctx, sessionID)
	e.metrics.Inc(MetricLogout)
	e.emitAudit(ctx, EventSessionRevoked, userID, sessionID, true, "", nil)
	return nil
}

// LogoutAll revokes every session of the user. Cached fingerprints
// expire on their own TTLs.
func (e *Engine) LogoutAll(ctx context.Context, userID string) (int, error) {
	now := e.now()
	n, err := e.store.RevokeAllForUser(ctx, userID, now)
	if err != nil {
		return 0, err
	}
	e.metrics.Inc(MetricLogoutAll)
	e.emitAudit(ctx, EventSessionRevoked, userID, "", true, "", map[string]string{"scope": "all"})
	return n, nil
}

// RevokeUserSessions is the administrative variant of LogoutAll,
// audited as such.
func (e *Engine) RevokeUserSessions(ctx context.Context, adminID, targetUserID string) (int, error) {
	now := e.now()
	n, err := e.store.RevokeAllForUser(ctx, targetUserID, now)
	if err != nil {
		return 0, err
	}
	e.metrics.Inc(MetricSessionRevoked)
	e.emitAudit(ctx, EventAdminRevocation, targetUserID, "", true, "", map[string]string{"revoked_by": adminID})
	return n, nil
}

func anomalyMeta(a Assessment) map[string]string {
	meta := map[string]string{"risk": a.Risk.String()}
	for i, r := range a.Reasons {
		if i == 0 {
			meta["reasons"] = r
			continue
		}
		meta["reasons"] += "," + r
	}
	return meta
}
