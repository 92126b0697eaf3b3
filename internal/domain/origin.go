package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// DeviceClass is the coarse device bucket derived from the user agent.
type DeviceClass string

const (
	DeviceDesktop DeviceClass = "desktop"
	DeviceMobile  DeviceClass = "mobile"
	DeviceTablet  DeviceClass = "tablet"
	DeviceUnknown DeviceClass = "unknown"
)

// Origin captures where a request came from. Raw values are kept for audit;
// derived fields exist so risk analysis never re-parses user agents.
type Origin struct {
	IPAddress   string
	UserAgent   string
	DeviceClass DeviceClass
	Browser     string
	OS          string
}

// Enrich fills the derived device fields from the raw user agent.
func (o Origin) Enrich() Origin {
	o.DeviceClass = classifyDevice(o.UserAgent)
	o.Browser = classifyBrowser(o.UserAgent)
	o.OS = classifyOS(o.UserAgent)
	return o
}

// Fingerprint is a stable hash over (user agent, IP, owner). It identifies a
// device+network pair without storing anything reversible.
func (o Origin) Fingerprint(ownerID uuid.UUID) string {
	sum := sha256.Sum256([]byte(o.UserAgent + "|" + o.IPAddress + "|" + ownerID.String()))
	return hex.EncodeToString(sum[:])
}

func classifyDevice(userAgent string) DeviceClass {
	ua := strings.ToLower(userAgent)
	switch {
	case ua == "":
		return DeviceUnknown
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		return DeviceTablet
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "iphone") || strings.Contains(ua, "android"):
		return DeviceMobile
	case strings.Contains(ua, "windows") || strings.Contains(ua, "macintosh") || strings.Contains(ua, "linux") || strings.Contains(ua, "x11"):
		return DeviceDesktop
	default:
		return DeviceUnknown
	}
}

func classifyBrowser(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "edg/") || strings.Contains(ua, "edge"):
		return "edge"
	case strings.Contains(ua, "opr/") || strings.Contains(ua, "opera"):
		return "opera"
	case strings.Contains(ua, "chrome"):
		return "chrome"
	case strings.Contains(ua, "firefox"):
		return "firefox"
	case strings.Contains(ua, "safari"):
		return "safari"
	default:
		return "unknown"
	}
}

func classifyOS(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "windows"):
		return "windows"
	case strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad"):
		return "ios"
	case strings.Contains(ua, "android"):
		return "android"
	case strings.Contains(ua, "mac os") || strings.Contains(ua, "macintosh"):
		return "macos"
	case strings.Contains(ua, "linux") || strings.Contains(ua, "x11"):
		return "linux"
	default:
		return "unknown"
	}
}
