package ratelimit

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// AnonymousUser is the user component used for unauthenticated clients.
const AnonymousUser = "anonymous"

// ClientIdentifier derives the pseudo-anonymous store identifier for a
// client from its user ID (or AnonymousUser), remote IP, and user agent.
// The triplet is hashed so raw addresses never appear as store keys.
//
// xxhash is fast but not collision-resistant and provides no real
// anonymization against a motivated observer; this identifier must not be
// treated as a security boundary. Known weak point carried over as-is.
func ClientIdentifier(userID, clientIP, userAgent string) string {
	if userID == "" {
		userID = AnonymousUser
	}

	d := xxhash.New()
	// Write on xxhash.Digest never returns an error.
	_, _ = d.WriteString(userID)
	_, _ = d.WriteString(":")
	_, _ = d.WriteString(clientIP)
	_, _ = d.WriteString(":")
	_, _ = d.WriteString(userAgent)

	return strconv.FormatUint(d.Sum64(), 16)
}
