// Package provider holds the identity provider's endpoints and published
// signing keys. It is populated once at startup and is read-only afterwards.
package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
)

// Metadata is the subset of the OIDC discovery document the gatekeeper uses.
type Metadata struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	EndSessionEndpoint    string `json:"end_session_endpoint,omitempty"`
	JWKSURI               string `json:"jwks_uri"`
}

// Provider is the immutable result of discovery. It is safe to share across
// goroutines as nothing mutates it after construction.
type Provider struct {
	Metadata Metadata
	// Keys is the JSON "keys" array of the IdP's signature keys, forwarded
	// as-is to the token validator.
	Keys json.RawMessage
}

// KeycloakIssuer builds the issuer URL for a Keycloak realm.
func KeycloakIssuer(host, realm string) string {
	return fmt.Sprintf("https://%s/auth/realms/%s", strings.TrimSuffix(host, "/"), realm)
}

// Endpoint returns the OAuth2 endpoint configuration for this provider.
// Client credentials are always sent in the form body.
func (p *Provider) Endpoint() oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:   p.Metadata.AuthorizationEndpoint,
		TokenURL:  p.Metadata.TokenEndpoint,
		AuthStyle: oauth2.AuthStyleInParams,
	}
}
