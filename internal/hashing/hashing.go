// Package hashing provides deterministic content hashing for evidence records.
//
// Canonicalize produces a byte serialization independent of map key order so
// semantically equal payloads hash identically. Every hash is SHA-256,
// lowercase hex. CombinedHash chains payload, metadata and the previous
// record state: changing any historical record invalidates every combined
// hash computed after it.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	dErrors "attest/pkg/domain-errors"
)

// GenesisLink is the previous-hash value for records with no predecessor.
const GenesisLink = "0000000000000000000000000000000000000000000000000000000000000000"

// Canonicalize serializes v deterministically: object keys sorted, compact
// encoding, no incidental whitespace.
//
// Errors: CodeValidation "malformed payload" when v is not serializable
// (cycles, unsupported types).
func Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "malformed payload")
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "malformed payload")
	}
	return marshalCanonical(decoded)
}

// marshalCanonical re-encodes a decoded JSON value with sorted object keys.
// encoding/json already sorts map[string]any keys, but nested ordering is
// pinned explicitly so the canonical form never depends on encoder internals.
func marshalCanonical(v any) ([]byte, error) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		out := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				out = append(out, ',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeValidation, "malformed payload")
			}
			vb, err := marshalCanonical(t[k])
			if err != nil {
				return nil, err
			}
			out = append(out, kb...)
			out = append(out, ':')
			out = append(out, vb...)
		}
		return append(out, '}'), nil
	case []any:
		out := []byte{'['}
		for i, el := range t {
			if i > 0 {
				out = append(out, ',')
			}
			eb, err := marshalCanonical(el)
			if err != nil {
				return nil, err
			}
			out = append(out, eb...)
		}
		return append(out, ']'), nil
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, "malformed payload")
		}
		return b, nil
	}
}

// Hash returns the SHA-256 of b as 64 lowercase hex characters.
func Hash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashCanonical canonicalizes v and hashes the result.
func HashCanonical(v any) (string, error) {
	b, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	return Hash(b), nil
}

// CombinedHash chains the payload hash, metadata hash and the previous
// record's combined hash into one link. All inputs are hex strings; the
// output is again 64 lowercase hex characters.
func CombinedHash(payloadHash, metadataHash, previousHash string) string {
	if previousHash == "" {
		previousHash = GenesisLink
	}
	return Hash([]byte(payloadHash + "|" + metadataHash + "|" + previousHash))
}
