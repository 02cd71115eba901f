// Package idempotency derives deterministic idempotency keys for submissions
// that arrive without an explicit key: Hash(Kind+CanonicalPayload+Timestamp).
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// HeaderName is the HTTP header carrying a client supplied key.
const HeaderName = "Idempotency-Key"

// MaxKeyLength bounds client supplied keys.
const MaxKeyLength = 255

// ErrInvalidKey indicates a client supplied key that cannot be stored.
var ErrInvalidKey = errors.New("invalid idempotency key")

// GenerateKey creates a deterministic idempotency key from a record kind, its
// canonical payload and the submission time.
func GenerateKey(kind string, payload []byte, timestamp time.Time) string {
	// Truncate timestamp to minute for clock drift tolerance
	truncatedTime := timestamp.UTC().Truncate(time.Minute).Format(time.RFC3339)

	parts := []string{
		kind,
		string(payload),
		truncatedTime,
	}

	data := strings.Join(parts, "|")
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// KeyFor encodes record as canonical JSON and derives its key. Struct fields
// encode in declaration order, so equal records yield equal keys.
func KeyFor(kind string, record interface{}, timestamp time.Time) (string, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return GenerateKey(kind, payload, timestamp), nil
}

// Normalize trims a client supplied key and checks it can be stored. An
// empty result means no key was supplied.
func Normalize(key string) (string, error) {
	key = strings.TrimSpace(key)
	if len(key) > MaxKeyLength {
		return "", fmt.Errorf("%w: longer than %d bytes", ErrInvalidKey, MaxKeyLength)
	}
	for _, r := range key {
		if r < 0x21 || r > 0x7e {
			return "", fmt.Errorf("%w: must be printable ASCII without spaces", ErrInvalidKey)
		}
	}
	return key, nil
}
