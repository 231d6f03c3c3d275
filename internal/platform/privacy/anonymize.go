// Package privacy masks client addresses before they reach logs or metrics.
package privacy

import (
	"fmt"
	"net/netip"
	"strings"
)

const (
	unknown = "unknown"
	invalid = "invalid"
)

// AnonymizeIP keeps only the network part of an address: the /24 for IPv4
// ("192.168.1.47" -> "192.168.1.0") and the /48 for IPv6
// ("2001:db8:85a3::8a2e:370:7334" -> "2001:0db8:85a3::").
//
// Empty or "unknown" input yields "unknown"; anything unparseable yields
// "invalid".
func AnonymizeIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" || ip == unknown {
		return unknown
	}

	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return invalid
	}
	addr = addr.Unmap()

	if addr.Is4() {
		b := addr.As4()
		return fmt.Sprintf("%d.%d.%d.0", b[0], b[1], b[2])
	}

	b := addr.As16()
	return fmt.Sprintf("%02x%02x:%02x%02x:%02x%02x::", b[0], b[1], b[2], b[3], b[4], b[5])
}

// AnonymizeIdentity masks a rate limit identity ("<address>:<user agent>").
// The user-agent fragment is dropped and the address is anonymized. IPv6
// addresses contain ':' themselves, so the longest parseable prefix wins.
func AnonymizeIdentity(identity string) string {
	if ip, _, ok := strings.Cut(identity, ":"); ok && ip == unknown {
		return unknown
	}
	for i := len(identity); i > 0; i-- {
		if i < len(identity) && identity[i] != ':' {
			continue
		}
		if _, err := netip.ParseAddr(identity[:i]); err == nil {
			return AnonymizeIP(identity[:i])
		}
	}
	return invalid
}
