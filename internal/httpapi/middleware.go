package httpapi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"strings"

	"github.com/Kkocaoglan/IncomeExpense-sub000/internal/trust"
	"github.com/Kkocaoglan/IncomeExpense-sub000/internal/trust/dedupe"
	"github.com/Kkocaoglan/IncomeExpense-sub000/internal/trust/rate"
)

type authContextKey int

const ctxKeyAuth authContextKey = 0

// authFromRequest returns the identity the Auth middleware attached.
func authFromRequest(r *http.Request) (*trust.AuthResult, bool) {
	auth, ok := r.Context().Value(ctxKeyAuth).(*trust.AuthResult)
	return auth, ok
}

// clientIP prefers the first X-Forwarded-For hop; the service always
// runs behind a proxy that sets it.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx >= 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// withRequestMeta attaches client IP and User-Agent to the request
// context for fingerprinting and audit.
func (s *Server) withRequestMeta(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := trust.WithClientIP(r.Context(), clientIP(r))
		ctx = trust.WithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAuth validates the bearer token and stores the identity in the
// request context.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		auth, err := s.engine.ValidateAccess(r.Context(), token)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyAuth, auth)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// requireAdmin layers a role check over requireAuth.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return s.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		auth, _ := authFromRequest(r)
		if auth == nil || auth.Role != "admin" {
			writeError(w, http.StatusForbidden, "forbidden", "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireSudo demands an unexpired sudo session on top of auth.
func (s *Server) requireSudo(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth, ok := authFromRequest(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		if err := s.engine.CheckSudo(r.Context(), auth.SessionID); err != nil {
			writeEngineError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	}
}

// statusRecorder captures the status code a handler wrote so the
// brute-force guard can classify the outcome.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	return rec.ResponseWriter.Write(b)
}

// withBruteForceGuard budgets failed attempts per caller and route.
// Denied outcomes burn budget, successes restore it, and an exhausted
// budget rejects before the handler runs.
func (s *Server) withBruteForceGuard(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := clientIP(r)

		retryAfter, err := s.limiter.Check(r.Context(), caller, route)
		if err != nil {
			if errors.Is(err, rate.ErrLimited) {
				writeRateLimited(w, retryAfter)
				return
			}
			// A broken limiter fails open; locking everyone out is worse.
			log.Printf("httpapi: brute-force check failed: %v", err)
		}

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		switch {
		case rec.status == http.StatusUnauthorized || rec.status == http.StatusForbidden:
			if err := s.limiter.Fail(r.Context(), caller, route); err != nil {
				log.Printf("httpapi: brute-force record failed: %v", err)
			}
		case rec.status >= 200 && rec.status < 300:
			if err := s.limiter.Clear(r.Context(), caller, route); err != nil {
				log.Printf("httpapi: brute-force clear failed: %v", err)
			}
		}
	}
}

// withIdempotency claims the caller's Idempotency-Key before the
// handler runs. A repeated key inside the window is rejected outright;
// clients that send no key opt out.
func (s *Server) withIdempotency(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("Idempotency-Key")
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "unreadable request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		// A key marks a duplicate of one specific request; the body digest
		// keeps distinct requests that happen to reuse a key apart.
		digest := sha256.Sum256(body)
		reservation := clientIP(r) + ":" + r.URL.Path + ":" + key + ":" + hex.EncodeToString(digest[:])
		if err := s.dedupe.Reserve(r.Context(), reservation); err != nil {
			if errors.Is(err, dedupe.ErrDuplicate) {
				writeError(w, http.StatusConflict, "duplicate_request", "this request was already processed")
				return
			}
			log.Printf("httpapi: idempotency reserve failed: %v", err)
		}
		next.ServeHTTP(w, r)
	}
}

// requireRequestedWith rejects refresh calls that lack the
// X-Requested-With header. Browsers attach the refresh cookie
// automatically; the custom header proves the call came from our
// frontend code, not a cross-site form.
func requireRequestedWith(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Requested-With") == "" {
			writeError(w, http.StatusForbidden, "forbidden", "missing X-Requested-With header")
			return
		}
		next.ServeHTTP(w, r)
	}
}
