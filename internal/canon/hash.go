package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes. The version suffix allows the
// encoding to change without colliding with old signatures.
const (
	DomainSubscription = "livedoc/subscription/v1"
	DomainQuery        = "livedoc/query/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Hash returns the domain-separated hash of v's canonical encoding.
func Hash(domain string, v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%s: canonical marshal: %w", domain, err)
	}
	return hashWithDomain(domain, data), nil
}

// Signature is the structural equality key of a subscription's query
// parameters: equal parameter sets always produce equal signatures.
func Signature(params map[string]any) (string, error) {
	return Hash(DomainSubscription, params)
}

// MustSignature is like Signature but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustSignature(params map[string]any) string {
	sig, err := Signature(params)
	if err != nil {
		panic(err)
	}
	return sig
}
