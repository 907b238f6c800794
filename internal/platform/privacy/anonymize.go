// Package privacy redacts values that could identify a wallet holder before
// they reach logs.
package privacy

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/netip"
)

// RemoteAddrPrefix anonymizes an http.Request.RemoteAddr ("host:port" or a
// bare host) to its network prefix: /24 for IPv4, /48 for IPv6.
// It returns "unknown" for empty input and "invalid" when no IP can be parsed.
func RemoteAddrPrefix(remoteAddr string) string {
	if remoteAddr == "" {
		return "unknown"
	}
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return "invalid"
	}
	addr = addr.Unmap()

	bits := 48
	if addr.Is4() {
		bits = 24
	}
	prefix, err := addr.WithZone("").Prefix(bits)
	if err != nil {
		return "invalid"
	}
	return prefix.String()
}

// Fingerprint returns a short stable digest of a secret such as an access
// token, so log lines can be correlated without exposing the value.
func Fingerprint(secret string) string {
	if secret == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:6])
}
