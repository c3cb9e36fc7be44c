package internal

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/tink-crypto/tink-go/v2/jwt"
	"github.com/tink-crypto/tink-go/v2/keyset"
)

// TestSigner mints ES256 tokens for tests, and exposes the matching public
// JWKS the way an IdP would publish it.
type TestSigner struct {
	handle *keyset.Handle
}

func NewTestSigner(t testing.TB) *TestSigner {
	t.Helper()
	h, err := keyset.NewHandle(jwt.ES256Template())
	if err != nil {
		t.Fatalf("creating handle: %v", err)
	}
	return &TestSigner{handle: h}
}

// TestToken describes the claims of a token minted by TestSigner.
type TestToken struct {
	Subject   string
	Audience  string
	Issuer    string
	ExpiresIn time.Duration
	Groups    []string
}

// Sign mints a compact JWT. A negative ExpiresIn produces an expired token.
func (s *TestSigner) Sign(t testing.TB, tok TestToken) string {
	t.Helper()

	exp := time.Now().Add(tok.ExpiresIn)
	if tok.ExpiresIn == 0 {
		exp = time.Now().Add(time.Hour)
	}
	opts := &jwt.RawJWTOptions{
		ExpiresAt: &exp,
		IssuedAt:  ptr(time.Now().Add(-time.Minute)),
	}
	if tok.Subject != "" {
		opts.Subject = &tok.Subject
	}
	if tok.Audience != "" {
		opts.Audience = &tok.Audience
	}
	if tok.Issuer != "" {
		opts.Issuer = &tok.Issuer
	}
	if tok.Groups != nil {
		groups := make([]any, 0, len(tok.Groups))
		for _, g := range tok.Groups {
			groups = append(groups, g)
		}
		opts.CustomClaims = map[string]any{"groups": groups}
	}

	raw, err := jwt.NewRawJWT(opts)
	if err != nil {
		t.Fatalf("creating raw jwt: %v", err)
	}
	signer, err := jwt.NewSigner(s.handle)
	if err != nil {
		t.Fatalf("creating signer: %v", err)
	}
	compact, err := signer.SignAndEncode(raw)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}
	return compact
}

// JWKS returns the public key set document.
func (s *TestSigner) JWKS(t testing.TB) []byte {
	t.Helper()
	pubh, err := s.handle.Public()
	if err != nil {
		t.Fatalf("creating public handle: %v", err)
	}
	jwks, err := jwt.JWKSetFromPublicKeysetHandle(pubh)
	if err != nil {
		t.Fatalf("converting to JWKS: %v", err)
	}
	return jwks
}

// Keys returns only the "keys" array of the JWKS, which is what gets
// forwarded to the validator.
func (s *TestSigner) Keys(t testing.TB) json.RawMessage {
	t.Helper()
	var set struct {
		Keys json.RawMessage `json:"keys"`
	}
	if err := json.Unmarshal(s.JWKS(t), &set); err != nil {
		t.Fatalf("decoding JWKS: %v", err)
	}
	return set.Keys
}

func ptr[T any](v T) *T {
	return &v
}
