package jwks

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"testing"

	"github.com/go-jose/go-jose/v4"
	"github.com/google/go-cmp/cmp"
	"lds.li/edgegate/internal"
)

func TestParse(t *testing.T) {
	signer := internal.NewTestSigner(t)

	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	encKey, err := json.Marshal(jose.JSONWebKey{
		Key:       &rsaKey.PublicKey,
		KeyID:     "enc-1",
		Algorithm: "RSA-OAEP",
		Use:       "enc",
	})
	if err != nil {
		t.Fatal(err)
	}
	sigKey, err := json.Marshal(jose.JSONWebKey{
		Key:       &rsaKey.PublicKey,
		KeyID:     "sig-1",
		Algorithm: "RS256",
		Use:       "sig",
	})
	if err != nil {
		t.Fatal(err)
	}
	privKey, err := json.Marshal(jose.JSONWebKey{
		Key:       rsaKey,
		KeyID:     "priv-1",
		Algorithm: "RS256",
	})
	if err != nil {
		t.Fatal(err)
	}

	mixed := `{"keys":[` + string(encKey) + `,` + string(sigKey) + `,` + string(privKey) + `,{"kty":"nope"}]}`

	for _, tc := range []struct {
		name    string
		in      []byte
		wantIDs []string
		wantErr error
	}{
		{
			name:    "tink document",
			in:      signer.JWKS(t),
			wantIDs: []string{kidOf(t, signer.JWKS(t))},
		},
		{
			name:    "bare keys array",
			in:      signer.Keys(t),
			wantIDs: []string{kidOf(t, signer.JWKS(t))},
		},
		{
			name:    "mixed set keeps public signature keys",
			in:      []byte(mixed),
			wantIDs: []string{"sig-1"},
		},
		{
			name:    "only encryption keys",
			in:      []byte(`{"keys":[` + string(encKey) + `]}`),
			wantErr: ErrNoSigningKeys,
		},
		{
			name:    "empty",
			in:      []byte("  "),
			wantErr: ErrNoSigningKeys,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			keys, err := Parse(tc.in)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("want error %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			var got []string
			for _, k := range keys {
				got = append(got, k.KeyID)
			}
			if diff := cmp.Diff(tc.wantIDs, got); diff != "" {
				t.Errorf("key ids (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSigningKeysRoundTrip(t *testing.T) {
	signer := internal.NewTestSigner(t)

	keys, err := SigningKeys(signer.JWKS(t))
	if err != nil {
		t.Fatal(err)
	}
	doc, err := Document(keys)
	if err != nil {
		t.Fatal(err)
	}
	again, err := Parse(doc)
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 1 {
		t.Fatalf("want 1 key after round trip, got %d", len(again))
	}
}

func kidOf(t *testing.T, jwks []byte) string {
	t.Helper()
	var set jose.JSONWebKeySet
	if err := json.Unmarshal(jwks, &set); err != nil {
		t.Fatal(err)
	}
	if len(set.Keys) != 1 {
		t.Fatalf("want 1 key, got %d", len(set.Keys))
	}
	return set.Keys[0].KeyID
}
