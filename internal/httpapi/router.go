// Package httpapi adapts the trust engine to HTTP: routing, request
// parsing, the error taxonomy, and the abuse guards that sit in front
// of the credential routes.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"github.com/Kkocaoglan/IncomeExpense-sub000/internal/ocr"
	"github.com/Kkocaoglan/IncomeExpense-sub000/internal/trust"
	"github.com/Kkocaoglan/IncomeExpense-sub000/internal/trust/dedupe"
	"github.com/Kkocaoglan/IncomeExpense-sub000/internal/trust/rate"
)

// Server holds the HTTP-facing wiring around the engine.
type Server struct {
	engine     *trust.Engine
	limiter    *rate.Limiter
	dedupe     *dedupe.Guard
	ocr        *ocr.Client
	refreshTTL time.Duration
}

// NewServer wires the engine and its guards. The OCR client may be nil
// when receipt scanning is not configured.
func NewServer(engine *trust.Engine, rdb redis.UniversalClient, ocrClient *ocr.Client, refreshTTL time.Duration) *Server {
	return &Server{
		engine:     engine,
		limiter:    rate.New(rdb, rate.DefaultConfig()),
		dedupe:     dedupe.New(rdb, dedupe.DefaultTTL),
		ocr:        ocrClient,
		refreshTTL: refreshTTL,
	}
}

// Routes builds the full router.
func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.withRequestMeta)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	auth := r.PathPrefix("/api/auth").Subrouter()
	auth.HandleFunc("/login",
		s.withBruteForceGuard("login", s.handleLogin)).Methods(http.MethodPost)
	auth.HandleFunc("/mfa/verify",
		s.withBruteForceGuard("mfa", s.handleMFAVerify)).Methods(http.MethodPost)
	auth.HandleFunc("/refresh",
		s.withBruteForceGuard("refresh", requireRequestedWith(s.handleRefresh))).Methods(http.MethodPost)
	auth.HandleFunc("/logout",
		s.requireAuth(s.handleLogout)).Methods(http.MethodPost)
	auth.HandleFunc("/logout-all",
		s.requireAuth(s.handleLogoutAll)).Methods(http.MethodPost)
	auth.HandleFunc("/sudo",
		s.withBruteForceGuard("sudo", s.requireAuth(s.withIdempotency(s.handleSudoGrant)))).Methods(http.MethodPost)
	auth.HandleFunc("/sudo",
		s.requireAuth(s.handleSudoRevoke)).Methods(http.MethodDelete)
	auth.HandleFunc("/2fa/setup",
		s.requireAuth(s.handleTOTPSetup)).Methods(http.MethodPost)
	auth.HandleFunc("/2fa/enable",
		s.withBruteForceGuard("2fa_enable", s.requireAuth(s.withIdempotency(s.handleTOTPEnable)))).Methods(http.MethodPost)
	auth.HandleFunc("/2fa/disable",
		s.withBruteForceGuard("2fa_disable", s.requireAuth(s.requireSudo(s.withIdempotency(s.handleTOTPDisable))))).Methods(http.MethodPost)
	auth.HandleFunc("/password",
		s.withBruteForceGuard("password", s.requireAuth(s.withIdempotency(s.handleChangePassword)))).Methods(http.MethodPut)

	r.HandleFunc("/api/receipts/scan",
		s.requireAuth(s.handleReceiptScan)).Methods(http.MethodPost)

	admin := r.PathPrefix("/api/admin").Subrouter()
	admin.HandleFunc("/users/{id}/revoke-sessions",
		s.requireAdmin(s.requireSudo(s.handleAdminRevokeSessions))).Methods(http.MethodPost)
	admin.HandleFunc("/metrics",
		s.requireAdmin(s.handleAdminMetrics)).Methods(http.MethodGet)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{"status": "ok"}
	if s.ocr != nil {
		body["ocr_breaker"] = s.ocr.BreakerState().String()
	}
	writeJSON(w, http.StatusOK, body)
}
