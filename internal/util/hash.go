package util

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// GenerateHash creates a short hash from the input and a timestamp
func GenerateHash(input string, timestamp int64) string {
	hasher := sha256.New()
	hasher.Write([]byte(input))
	hasher.Write([]byte(time.Unix(0, timestamp).String()))
	return hex.EncodeToString(hasher.Sum(nil))[:16] // Use first 16 chars of the hash
}

// RunID derives a run identifier from the run's first page content and start time.
func RunID(seed string, started time.Time) string {
	return "run-" + GenerateHash(seed, started.UnixNano())
}
