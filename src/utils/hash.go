package utils

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"fmt"
)

// HashStruct returns the hex SHA-256 of v's gob encoding. Environment cache
// directories are keyed on it, so equal manifests always resolve to the same
// directory and any content change produces a new one.
func HashStruct(v interface{}) (string, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return "", fmt.Errorf("failed to encode value for hashing: %w", err)
	}

	return fmt.Sprintf("%x", sha256.Sum256(buf.Bytes())), nil
}
