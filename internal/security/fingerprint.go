package security

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"sheetcalc/api/internal/models"
)

// HashFingerprint turns a client-supplied device fingerprint into the
// stable opaque identity stored in the device registry.
func HashFingerprint(fingerprint string) string {
	sum := sha256.Sum256([]byte(fingerprint))
	return hex.EncodeToString(sum[:])
}

func DeviceTypeFromUserAgent(ua string) models.DeviceType {
	switch {
	case strings.Contains(ua, "iPad"), strings.Contains(ua, "Android") && strings.Contains(ua, "Tablet"):
		return models.DeviceTypeTablet
	case strings.Contains(ua, "iPhone"), strings.Contains(ua, "Android"):
		return models.DeviceTypeMobile
	default:
		return models.DeviceTypeDesktop
	}
}

func DeviceNameFromUserAgent(ua string) string {
	switch {
	case strings.Contains(ua, "Windows"):
		return "Windows Desktop"
	case strings.Contains(ua, "iPhone"):
		return "iPhone"
	case strings.Contains(ua, "iPad"):
		return "iPad"
	case strings.Contains(ua, "Macintosh"):
		return "Mac Desktop"
	case strings.Contains(ua, "Android"):
		return "Android Device"
	case strings.Contains(ua, "Linux"):
		return "Linux Desktop"
	}
	return "Unknown Device"
}
