package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/sha256-simd"

	"shogunrelay/internal/errs"
	"shogunrelay/internal/ledger"
)

// ApiKeyPrefix is the fixed prefix the multiplexer uses to detect api-key
// bearer tokens before attempting wallet-signature resolution (spec §4.4,
// §6.3).
const ApiKeyPrefix = "shogun-api-"

// GenerateApiKey mints a new api key and returns its bearer token and its
// ledger record (the keyId is embedded in both). Only record (carrying the
// hash) is meant to be persisted; token is returned to the caller exactly
// once.
func GenerateApiKey(name, ownerScope string, expiresAt time.Time) (token string, record *ledger.ApiKey, err error) {
	keyID := uuid.New().String()

	var secret [16]byte
	if _, err = rand.Read(secret[:]); err != nil {
		return "", nil, errs.Wrap(errs.Backend, "apikey-generate", "read random secret", err)
	}
	token = ApiKeyPrefix + keyID + "." + hex.EncodeToString(secret[:])

	record = &ledger.ApiKey{
		KeyID:       keyID,
		HashedToken: hashApiKeyToken(token),
		Name:        name,
		OwnerScope:  ownerScope,
		CreatedAt:   time.Now().Unix(),
	}
	if !expiresAt.IsZero() {
		record.ExpiresAt = expiresAt.Unix()
	}
	return token, record, nil
}

func hashApiKeyToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// extractKeyID pulls the keyId portion out of a bearer token of the shape
// "shogun-api-{keyId}.{secret}", without needing a ledger lookup first.
func extractKeyID(token string) (string, bool) {
	if !strings.HasPrefix(token, ApiKeyPrefix) {
		return "", false
	}
	rest := strings.TrimPrefix(token, ApiKeyPrefix)
	keyID, _, ok := strings.Cut(rest, ".")
	if !ok {
		return "", false
	}
	return keyID, true
}

// VerifyApiKey looks up the key by its unhashed keyId portion, then
// compares the full token's hash in constant time, per spec §4.4.
func VerifyApiKey(l *ledger.Ledger, token string) (*ledger.ApiKey, error) {
	keyID, ok := extractKeyID(token)
	if !ok {
		return nil, errs.New(errs.Unauthenticated, "apikey", "malformed api key")
	}

	record, err := l.GetApiKey(keyID)
	if err != nil {
		return nil, err
	}
	if record == nil || record.Revoked {
		return nil, errs.New(errs.Unauthenticated, "apikey", "unknown or revoked api key")
	}
	if record.ExpiresAt != 0 && time.Now().Unix() > record.ExpiresAt {
		return nil, errs.New(errs.Unauthenticated, "apikey", "api key has expired")
	}

	want := hashApiKeyToken(token)
	if subtle.ConstantTimeCompare([]byte(want), []byte(record.HashedToken)) != 1 {
		return nil, errs.New(errs.Unauthenticated, "apikey", "api key hash mismatch")
	}

	// Last-used update is fire-and-forget from the caller's perspective
	// (spec §4.4: "updated asynchronously"); VerifyApiKey launches this
	// in a goroutine rather than blocking the request on a ledger write.
	go func(rec ledger.ApiKey) {
		rec.LastUsedAt = time.Now().Unix()
		_ = l.PutApiKey(&rec)
	}(*record)

	return record, nil
}
