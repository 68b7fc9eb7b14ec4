package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

const MaxIdempotencyKeyLength = 255

// IdempotencyKey scopes a client-chosen key to the user who sent it, with a
// hash of the request body so a reused key with a different body is caught.
type IdempotencyKey struct {
	UserID      int64
	Key         string
	RequestHash string
}

// NewIdempotencyKey returns nil for an empty key. The hash covers the
// decoded request, so formatting differences in the body do not count as a
// different request.
func NewIdempotencyKey(userID int64, key string, req DealRequest) (*IdempotencyKey, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	if len(key) > MaxIdempotencyKeyLength {
		return nil, invalid("Idempotency-Key", "must be at most %d bytes", MaxIdempotencyKeyLength)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(body)
	return &IdempotencyKey{
		UserID:      userID,
		Key:         key,
		RequestHash: hex.EncodeToString(sum[:]),
	}, nil
}
