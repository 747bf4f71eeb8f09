package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentHash returns the hex SHA-256 digest of data. Stored alongside
// each document so the raw file's integrity can be verified later.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
