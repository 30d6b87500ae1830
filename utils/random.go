package utils

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{16,128}$`)

// GenerateSecureSessionID returns a client-visible session handle with
// enough entropy that it cannot be guessed or enumerated.
func GenerateSecureSessionID() string {
	byt := make([]byte, 24)
	if _, err := rand.Read(byt); err != nil {
		// crypto/rand failing means the process has no working entropy
		// source; there is nothing sensible to fall back to.
		panic(err)
	}
	return "session_" + hex.EncodeToString(byt)
}

// IsValidSessionID reports whether a client-supplied handle has the shape
// of an issued session id. Used to reject junk before store lookups.
func IsValidSessionID(sessionID string) bool {
	return sessionIDPattern.MatchString(sessionID)
}
