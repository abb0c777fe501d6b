package httpapi

import (
	"net/http"
	"time"
)

type sudoRequest struct {
	Password        string `json:"password"`
	Code            string `json:"code,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
}

type sudoResponse struct {
	ExpiresIn int       `json:"expires_in"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) handleSudoGrant(w http.ResponseWriter, r *http.Request) {
	auth, _ := authFromRequest(r)

	var req sudoRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "password is required")
		return
	}

	grant, err := s.engine.GrantSudo(r.Context(), auth.UserID, auth.SessionID, req.Password, req.Code,
		time.Duration(req.DurationSeconds)*time.Second)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sudoResponse{ExpiresIn: grant.ExpiresIn, ExpiresAt: grant.ExpiresAt})
}

func (s *Server) handleSudoRevoke(w http.ResponseWriter, r *http.Request) {
	auth, _ := authFromRequest(r)
	if err := s.engine.RevokeSudo(r.Context(), auth.SessionID); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type totpSetupResponse struct {
	Secret     string `json:"secret"`
	OTPAuthURI string `json:"otpauth_uri"`
}

func (s *Server) handleTOTPSetup(w http.ResponseWriter, r *http.Request) {
	auth, _ := authFromRequest(r)
	setup, err := s.engine.SetupTOTP(r.Context(), auth.UserID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, totpSetupResponse{Secret: setup.Secret, OTPAuthURI: setup.OTPAuthURI})
}

type totpEnableRequest struct {
	Code string `json:"code"`
}

type totpEnableResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

func (s *Server) handleTOTPEnable(w http.ResponseWriter, r *http.Request) {
	auth, _ := authFromRequest(r)

	var req totpEnableRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "code is required")
		return
	}

	codes, err := s.engine.EnableTOTP(r.Context(), auth.UserID, req.Code)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, totpEnableResponse{BackupCodes: codes})
}

type totpDisableRequest struct {
	Password string `json:"password"`
	Code     string `json:"code"`
}

func (s *Server) handleTOTPDisable(w http.ResponseWriter, r *http.Request) {
	auth, _ := authFromRequest(r)

	var req totpDisableRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Password == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "password and code are required")
		return
	}

	if err := s.engine.DisableTOTP(r.Context(), auth.UserID, req.Password, req.Code); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	auth, _ := authFromRequest(r)

	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "current_password and new_password are required")
		return
	}

	if err := s.engine.ChangePassword(r.Context(), auth.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		writeEngineError(w, err)
		return
	}
	// Every session is revoked after a change, this one included.
	s.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
