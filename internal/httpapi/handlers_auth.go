package httpapi

import (
	"net/http"
	"time"
)

const refreshCookieName = "refresh_token"

type userBody struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	TOTPEnabled bool   `json:"totp_enabled"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken       string    `json:"access_token,omitempty"`
	MFARequired       bool      `json:"mfa_required,omitempty"`
	IntermediateToken string    `json:"intermediate_token,omitempty"`
	User              *userBody `json:"user,omitempty"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	result, err := s.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if result.MFARequired {
		writeJSON(w, http.StatusOK, loginResponse{
			MFARequired:       true,
			IntermediateToken: result.IntermediateToken,
		})
		return
	}

	s.setRefreshCookie(w, result.RefreshToken)
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: result.AccessToken,
		User: &userBody{
			ID:          result.User.UserID,
			Email:       result.User.Email,
			Role:        result.User.Role,
			TOTPEnabled: result.User.TOTPEnabled,
		},
	})
}

type mfaVerifyRequest struct {
	IntermediateToken string `json:"intermediate_token"`
	Code              string `json:"code"`
}

func (s *Server) handleMFAVerify(w http.ResponseWriter, r *http.Request) {
	var req mfaVerifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.IntermediateToken == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "intermediate_token and code are required")
		return
	}

	result, err := s.engine.VerifyMFA(r.Context(), req.IntermediateToken, req.Code)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	s.setRefreshCookie(w, result.RefreshToken)
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: result.AccessToken,
		User: &userBody{
			ID:          result.User.UserID,
			Email:       result.User.Email,
			Role:        result.User.Role,
			TOTPEnabled: result.User.TOTPEnabled,
		},
	})
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		writeError(w, http.StatusUnauthorized, "invalid_refresh", "missing refresh token")
		return
	}

	pair, err := s.engine.Refresh(r.Context(), cookie.Value)
	if err != nil {
		s.clearRefreshCookie(w)
		writeEngineError(w, err)
		return
	}

	s.setRefreshCookie(w, pair.RefreshToken)
	writeJSON(w, http.StatusOK, refreshResponse{AccessToken: pair.AccessToken})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	auth, _ := authFromRequest(r)
	if err := s.engine.Logout(r.Context(), auth.UserID, auth.SessionID); err != nil {
		writeEngineError(w, err)
		return
	}
	s.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	auth, _ := authFromRequest(r)
	n, err := s.engine.LogoutAll(r.Context(), auth.UserID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, map[string]int{"revoked_sessions": n})
}

// setRefreshCookie scopes the refresh token to the auth routes so it
// never rides along on ordinary API calls.
func (s *Server) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/api/auth",
		MaxAge:   int(s.refreshTTL / time.Second),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/api/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}
