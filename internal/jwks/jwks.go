// Package jwks handles the IdP's published key sets. Keys are only ever
// parsed here to decide which ones are usable for signature verification; the
// verification itself happens elsewhere.
package jwks

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-jose/go-jose/v4"
)

// ErrNoSigningKeys is returned when a key set contains nothing that can be
// used to verify a signature.
var ErrNoSigningKeys = errors.New("key set has no signature keys")

// Parse accepts either a full JWKS document or a bare "keys" array, and
// returns the keys that can verify signatures. Entries go-jose cannot parse
// (unknown key types, broken encodings) are skipped rather than failing the
// whole set, IdPs commonly publish encryption keys alongside signing keys.
func Parse(b []byte) ([]jose.JSONWebKey, error) {
	raw, err := rawKeys(b)
	if err != nil {
		return nil, err
	}

	var keys []jose.JSONWebKey
	for _, r := range raw {
		var k jose.JSONWebKey
		if err := json.Unmarshal(r, &k); err != nil {
			continue
		}
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		if !k.IsPublic() || !k.Valid() {
			continue
		}
		// only the key material is forwarded.
		k.Certificates = nil
		k.CertificateThumbprintSHA1 = nil
		k.CertificateThumbprintSHA256 = nil
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return nil, ErrNoSigningKeys
	}
	return keys, nil
}

// Encode renders keys as a JSON array suitable for the "keys" member.
func Encode(keys []jose.JSONWebKey) (json.RawMessage, error) {
	b, err := json.Marshal(keys)
	if err != nil {
		return nil, fmt.Errorf("marshalling keys: %w", err)
	}
	return b, nil
}

// SigningKeys is Parse followed by Encode.
func SigningKeys(b []byte) (json.RawMessage, error) {
	keys, err := Parse(b)
	if err != nil {
		return nil, err
	}
	return Encode(keys)
}

// Document wraps a keys array back into a JWKS document.
func Document(keys json.RawMessage) ([]byte, error) {
	return json.Marshal(struct {
		Keys json.RawMessage `json:"keys"`
	}{Keys: keys})
}

func rawKeys(b []byte) ([]json.RawMessage, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, ErrNoSigningKeys
	}

	var raw []json.RawMessage
	if b[0] == '[' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return nil, fmt.Errorf("unmarshalling keys: %w", err)
		}
		return raw, nil
	}

	var doc struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("unmarshalling JWKS: %w", err)
	}
	return doc.Keys, nil
}
