package models

import (
	"strings"

	"github.com/khaleddesign/chantierpro-sub001/pkg/requestcontext"
)

// maxUserAgentRunes bounds the user-agent fragment of an identity.
const maxUserAgentRunes = 50

// DeriveIdentity builds the rate limit identity from request headers: the
// client address (first forwarded-for hop, else real-ip, else "unknown")
// joined with the first 50 characters of the user agent.
//
// The identity is a heuristic. A client that is not behind a trusted proxy
// controls every input and can rotate it freely.
func DeriveIdentity(forwardedFor, realIP, userAgent string) string {
	d := requestcontext.Descriptor{ForwardedFor: forwardedFor, RealIP: realIP}
	return d.ClientIP() + ":" + userAgentFragment(userAgent)
}

// IdentityFromDescriptor derives the identity of a described request.
func IdentityFromDescriptor(d requestcontext.Descriptor) string {
	return DeriveIdentity(d.ForwardedFor, d.RealIP, d.UserAgent)
}

func userAgentFragment(ua string) string {
	ua = strings.TrimSpace(ua)
	if ua == "" {
		return requestcontext.Unknown
	}
	runes := []rune(ua)
	if len(runes) > maxUserAgentRunes {
		runes = runes[:maxUserAgentRunes]
	}
	return string(runes)
}
