package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"slices"
	"strings"

	"lds.li/edgegate/internal"
	"lds.li/edgegate/internal/jwks"
)

var validJWKSContentTypes = []string{
	"application/json",
	"application/jwk-set+json",
}

// Discover fetches the issuer's discovery document and its key set. The HTTP
// client can be supplied on the context under oauth2.HTTPClient.
func Discover(ctx context.Context, issuer string) (*Provider, error) {
	cfgURL := strings.TrimSuffix(issuer, "/") + "/.well-known/openid-configuration"

	res, err := get(ctx, cfgURL, []string{"application/json"})
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	var md Metadata
	if err := json.NewDecoder(res.Body).Decode(&md); err != nil {
		return nil, fmt.Errorf("error decoding discovery metadata response: %v", err)
	}
	if md.AuthorizationEndpoint == "" || md.TokenEndpoint == "" || md.JWKSURI == "" {
		return nil, fmt.Errorf("discovery metadata from %s is missing required endpoints", cfgURL)
	}

	return Static(ctx, md)
}

// Static builds a provider from known metadata, fetching only the key set.
func Static(ctx context.Context, md Metadata) (*Provider, error) {
	res, err := get(ctx, md.JWKSURI, validJWKSContentTypes)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	jwksb, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("reading JWKS body: %w", err)
	}
	keys, err := jwks.SigningKeys(jwksb)
	if err != nil {
		return nil, fmt.Errorf("parsing JWKS from %s: %w", md.JWKSURI, err)
	}

	return &Provider{Metadata: md, Keys: keys}, nil
}

func get(ctx context.Context, url string, contentTypes []string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", url, err)
	}
	res, err := internal.HTTPClient(ctx, nil).Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	if res.StatusCode != http.StatusOK {
		_ = res.Body.Close()
		return nil, fmt.Errorf("expected status %d from %s, got: %d", http.StatusOK, url, res.StatusCode)
	}
	mt, _, err := mime.ParseMediaType(res.Header.Get("Content-Type"))
	if err != nil || !slices.Contains(contentTypes, mt) {
		_ = res.Body.Close()
		return nil, fmt.Errorf("expected content type %s from %s, got: %s", strings.Join(contentTypes, ", "), url, res.Header.Get("Content-Type"))
	}
	return res, nil
}
