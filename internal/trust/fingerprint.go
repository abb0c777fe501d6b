package trust

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint is the derived signature of a request origin. The hash is a
// cache-friendly key over ip:userAgent and is never a security boundary on
// its own.
type Fingerprint struct {
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`
	Browser   string `json:"browser"`
	OS        string `json:"os"`
	Device    string `json:"device"`
	Hash      string `json:"hash"`
}

// ExtractFingerprint derives a Fingerprint from raw request metadata.
// It is a pure function; identical inputs always produce identical output.
func ExtractFingerprint(ip, userAgent string) Fingerprint {
	sum := sha256.Sum256([]byte(ip + ":" + userAgent))
	return Fingerprint{
		IP:        ip,
		UserAgent: userAgent,
		Browser:   browserClass(userAgent),
		OS:        osClass(userAgent),
		Device:    deviceClass(userAgent),
		Hash:      hex.EncodeToString(sum[:16]),
	}
}

func browserClass(ua string) string {
	s := strings.ToLower(ua)
	switch {
	case strings.Contains(s, "edg/") || strings.Contains(s, "edge"):
		return "edge"
	case strings.Contains(s, "opr/") || strings.Contains(s, "opera"):
		return "opera"
	case strings.Contains(s, "firefox"):
		return "firefox"
	case strings.Contains(s, "chrome") || strings.Contains(s, "crios"):
		return "chrome"
	case strings.Contains(s, "safari"):
		return "safari"
	case s == "":
		return "unknown"
	default:
		return "other"
	}
}

func osClass(ua string) string {
	s := strings.ToLower(ua)
	switch {
	case strings.Contains(s, "windows"):
		return "windows"
	case strings.Contains(s, "android"):
		return "android"
	case strings.Contains(s, "iphone") || strings.Contains(s, "ipad") || strings.Contains(s, "ios"):
		return "ios"
	case strings.Contains(s, "mac os") || strings.Contains(s, "macintosh"):
		return "macos"
	case strings.Contains(s, "linux"):
		return "linux"
	case s == "":
		return "unknown"
	default:
		return "other"
	}
}

func deviceClass(ua string) string {
	s := strings.ToLower(ua)
	switch {
	case strings.Contains(s, "ipad") || strings.Contains(s, "tablet"):
		return "tablet"
	case strings.Contains(s, "mobile") || strings.Contains(s, "iphone") || strings.Contains(s, "android"):
		return "mobile"
	case s == "":
		return "unknown"
	default:
		return "desktop"
	}
}

// networkPrefix reduces an IP to a broad network identity: the first two
// octets for IPv4, the first two groups for IPv6. A change inside the
// prefix reads as a local move; a change across it as a geographic one.
func networkPrefix(ip string) string {
	if idx := strings.IndexByte(ip, ':'); idx >= 0 {
		parts := strings.Split(ip, ":")
		if len(parts) >= 2 {
			return parts[0] + ":" + parts[1]
		}
		return ip
	}
	parts := strings.Split(ip, ".")
	if len(parts) == 4 {
		return parts[0] + "." + parts[1]
	}
	return ip
}
