package validator

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/tink-crypto/tink-go/v2/jwt"
	"lds.li/edgegate/internal/jwks"
)

// DefaultMaxRequestBytes bounds the size of a validation request.
const DefaultMaxRequestBytes = 1 << 20

var serverLogAttr = slog.String("component", "validator")

// tink can only build verifiers for these.
var supportedAlgs = []string{
	"ES256", "ES384", "ES512",
	"RS256", "RS384", "RS512",
	"PS256", "PS384", "PS512",
}

// Server is a reference implementation of the validation endpoint. It
// verifies the token's signature against the key set supplied in the
// request, checks its expiry, and the audience when one is given. It keeps no
// state between requests.
type Server struct {
	// Issuer, if set, must match the token's iss claim.
	Issuer string
	// ClockSkew tolerated on time based claims. Tink rejects anything above
	// 10 minutes.
	ClockSkew time.Duration
	// MaxRequestBytes defaults to DefaultMaxRequestBytes.
	MaxRequestBytes int64
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
		return
	}

	limit := s.MaxRequestBytes
	if limit == 0 {
		limit = DefaultMaxRequestBytes
	}
	var vr Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit)).Decode(&vr); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request"})
		return
	}
	if vr.Token == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "token is required"})
		return
	}

	payload, err := s.verify(vr)
	if err != nil {
		slog.DebugContext(r.Context(), "token rejected", serverLogAttr, slog.String("err", err.Error()))
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Signature not validated"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (s *Server) verify(vr Request) ([]byte, error) {
	keys, err := jwks.Parse(vr.Keys)
	if err != nil {
		return nil, err
	}
	keys = slices.DeleteFunc(keys, func(k jose.JSONWebKey) bool {
		return !slices.Contains(supportedAlgs, k.Algorithm)
	})
	if len(keys) == 0 {
		return nil, errors.New("no keys with a supported algorithm")
	}
	enc, err := jwks.Encode(keys)
	if err != nil {
		return nil, err
	}
	doc, err := jwks.Document(enc)
	if err != nil {
		return nil, err
	}

	handle, err := jwt.JWKSetToPublicKeysetHandle(doc)
	if err != nil {
		return nil, fmt.Errorf("creating public keyset handle from JWKS: %w", err)
	}
	verifier, err := jwt.NewVerifier(handle)
	if err != nil {
		return nil, fmt.Errorf("creating verifier: %w", err)
	}

	opts := &jwt.ValidatorOpts{
		IgnoreTypeHeader: true,
		ClockSkew:        s.ClockSkew,
	}
	if vr.Audience != "" {
		opts.ExpectedAudience = &vr.Audience
	} else {
		opts.IgnoreAudiences = true
	}
	if s.Issuer != "" {
		opts.ExpectedIssuer = &s.Issuer
	} else {
		opts.IgnoreIssuer = true
	}
	validator, err := jwt.NewValidator(opts)
	if err != nil {
		return nil, fmt.Errorf("creating tink validator: %w", err)
	}

	verified, err := verifier.VerifyAndDecode(vr.Token, validator)
	if err != nil {
		return nil, err
	}
	return verified.JSONPayload()
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
