package trust

import (
	"time"

	"github.com/Kkocaoglan/IncomeExpense-sub000/internal/trust/session"
)

// assessAnomaly compares the current fingerprint against the cached record
// for the session and classifies the refresh. It is pure: all cache and
// store access happens in the caller, which also owns the fail-open
// policy for internal errors.
func assessAnomaly(cfg AnomalyConfig, rec *session.FingerprintRecord, fp Fingerprint, activeSessions int, now time.Time) Assessment {
	if rec == nil {
		// First sighting of this session; a record is created by the caller.
		return Assessment{Risk: RiskLow}
	}

	var reasons []string
	risk := RiskLow
	raise := func(l RiskLevel) {
		if l > risk {
			risk = l
		}
	}

	if fp.IP != "" && rec.IP != fp.IP {
		if networkPrefix(rec.IP) == networkPrefix(fp.IP) {
			reasons = append(reasons, ReasonIPChange)
			raise(RiskMedium)
		} else {
			reasons = append(reasons, ReasonGeographicIPChange)
			raise(RiskHigh)
		}
	}

	if fp.UserAgent != rec.UserAgent {
		if fp.Browser == rec.Browser && fp.OS == rec.OS {
			// Same browser and OS family: version churn, not a takeover signal.
			reasons = append(reasons, ReasonUserAgentChange)
		} else {
			reasons = append(reasons, ReasonMajorUAChange)
			raise(RiskHigh)
		}
	}

	// The window measures spacing between token uses. A record fresh
	// from login has no prior use yet, so its first refresh is exempt.
	if rec.UseCount > 0 {
		if last := time.Unix(rec.LastUsedAt, 0); now.Sub(last) < cfg.ConcurrentUseWindow {
			reasons = append(reasons, ReasonConcurrentUsage)
			raise(RiskCritical)
		}
	}

	minutes := now.Sub(time.Unix(rec.CreatedAt, 0)).Minutes()
	if minutes < 1 {
		minutes = 1
	}
	if float64(rec.UseCount)/minutes > cfg.MaxRotationsPerMinute {
		reasons = append(reasons, ReasonHighUsageRate)
		raise(RiskHigh)
	}

	if activeSessions > cfg.MaxActiveSessions {
		reasons = append(reasons, ReasonTooManySessions)
		raise(RiskMedium)
	}

	return Assessment{
		IsAnomalous: risk != RiskLow,
		Risk:        risk,
		Reasons:     reasons,
	}
}

// recordUse folds the current fingerprint into the cached record: bumps
// the usage counter, appends to the bounded IP/UA histories, and stamps
// the last-used time.
func recordUse(rec *session.FingerprintRecord, fp Fingerprint, depth int, now time.Time) {
	rec.UseCount++
	rec.LastUsedAt = now.Unix()
	rec.IPHistory = appendBounded(rec.IPHistory, fp.IP, depth)
	rec.UAHistory = appendBounded(rec.UAHistory, fp.UserAgent, depth)
	rec.IP = fp.IP
	rec.UserAgent = fp.UserAgent
	rec.Browser = fp.Browser
	rec.OS = fp.OS
	rec.Device = fp.Device
	rec.Hash = fp.Hash
}

func appendBounded(history []string, v string, depth int) []string {
	if v == "" {
		return history
	}
	if n := len(history); n > 0 && history[n-1] == v {
		return history
	}
	history = append(history, v)
	if len(history) > depth {
		history = history[len(history)-depth:]
	}
	return history
}
