package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Kkocaoglan/IncomeExpense-sub000/internal/trust"
)

func (s *Server) handleAdminRevokeSessions(w http.ResponseWriter, r *http.Request) {
	auth, _ := authFromRequest(r)
	targetID := mux.Vars(r)["id"]
	if targetID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "user id is required")
		return
	}

	n, err := s.engine.RevokeUserSessions(r.Context(), auth.UserID, targetID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"revoked_sessions": n})
}

func (s *Server) handleAdminMetrics(w http.ResponseWriter, r *http.Request) {
	snapshot := s.engine.Metrics().Snapshot()
	out := make(map[string]uint64, len(snapshot))
	for id, v := range snapshot {
		out[metricName(id)] = v
	}
	writeJSON(w, http.StatusOK, out)
}

func metricName(id trust.MetricID) string {
	switch id {
	case trust.MetricLoginSuccess:
		return "login_success"
	case trust.MetricLoginFailure:
		return "login_failure"
	case trust.MetricMFARequired:
		return "mfa_required"
	case trust.MetricMFASuccess:
		return "mfa_success"
	case trust.MetricMFAFailure:
		return "mfa_failure"
	case trust.MetricBackupCodeUsed:
		return "backup_code_used"
	case trust.MetricRefreshSuccess:
		return "refresh_success"
	case trust.MetricRefreshFailure:
		return "refresh_failure"
	case trust.MetricRefreshReuseDetected:
		return "refresh_reuse_detected"
	case trust.MetricAnomalyMedium:
		return "anomaly_medium"
	case trust.MetricAnomalyHigh:
		return "anomaly_high"
	case trust.MetricAnomalyCritical:
		return "anomaly_critical"
	case trust.MetricSessionRevoked:
		return "session_revoked"
	case trust.MetricSudoGranted:
		return "sudo_granted"
	case trust.MetricSudoDenied:
		return "sudo_denied"
	case trust.MetricPasswordChanged:
		return "password_changed"
	case trust.MetricPasswordReuseRejected:
		return "password_reuse_rejected"
	case trust.MetricLogout:
		return "logout"
	case trust.MetricLogoutAll:
		return "logout_all"
	default:
		return "unknown"
	}
}
