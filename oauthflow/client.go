// Package oauthflow talks to the identity provider's token and end-session
// endpoints on behalf of the gatekeeper, and builds the authorization URL
// users are sent to for login.
package oauthflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"lds.li/edgegate/internal"
	"lds.li/edgegate/provider"
)

// ErrIncompleteExchange is returned when the code exchange did not yield both
// an access and a refresh token. It means the callback needs a fresh login,
// not that the IdP is unreachable.
var ErrIncompleteExchange = errors.New("authorization code exchange incomplete")

// ErrNoEndSessionEndpoint is returned by EndSession when the provider did not
// advertise one.
var ErrNoEndSessionEndpoint = errors.New("provider has no end session endpoint")

// Client performs the OAuth2 calls for one registered client. It holds no
// mutable state and is safe for concurrent use.
type Client struct {
	// OAuth2Config carries the client credentials, endpoints and redirect
	// URI. Required.
	OAuth2Config *oauth2.Config
	// EndSessionURL is the provider's logout endpoint. Optional.
	EndSessionURL string
	// HTTPClient is used for all calls, unless one is set on the request
	// context under oauth2.HTTPClient.
	HTTPClient *http.Client
}

// New builds a client for the discovered provider.
func New(p *provider.Provider, clientID, clientSecret, redirectURI string, scopes []string) *Client {
	return &Client{
		OAuth2Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     p.Endpoint(),
			RedirectURL:  redirectURI,
			Scopes:       scopes,
		},
		EndSessionURL: p.Metadata.EndSessionEndpoint,
	}
}

// Tokens are the credentials issued by a successful code exchange.
type Tokens struct {
	AccessToken  string
	RefreshToken string
}

// missingAccessToken is the text of the error x/oauth2 returns for a
// successful token response that has no access_token.
const missingAccessToken = "server response missing access_token"

// RefreshResult is the outcome of a refresh grant the provider answered. When
// Denied is set the provider returned its error envelope and AccessToken is
// empty.
type RefreshResult struct {
	AccessToken string
	// RefreshToken is set if the provider rotated the refresh token.
	RefreshToken string

	Denied           bool
	ErrorCode        string
	ErrorDescription string
}

// AuthCodeURL returns the provider's authorization URL. The state parameter
// is only added when state is non-empty.
func (c *Client) AuthCodeURL(state string) string {
	return c.OAuth2Config.AuthCodeURL(state)
}

// ExchangeCode swaps an authorization code for tokens. A provider error
// envelope, or a response lacking either token, yields ErrIncompleteExchange.
// Transport failures are returned as-is.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*Tokens, error) {
	tok, err := c.OAuth2Config.Exchange(internal.OAuth2Context(ctx, c.HTTPClient), code)
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && isClientError(rerr) {
			return nil, fmt.Errorf("%w: %s", ErrIncompleteExchange, describe(rerr))
		}
		if rerr == nil && strings.Contains(err.Error(), missingAccessToken) {
			// x/oauth2 rejects a 2xx body without an access_token before we
			// see the token.
			return nil, fmt.Errorf("%w: no access_token", ErrIncompleteExchange)
		}
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: no access_token", ErrIncompleteExchange)
	}
	if tok.RefreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh_token", ErrIncompleteExchange)
	}
	return &Tokens{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}, nil
}

// Refresh uses a refresh token to obtain a new access token. Only the
// provider's error envelope is reported as a denial; anything else that goes
// wrong is returned as an error.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	ts := c.OAuth2Config.TokenSource(internal.OAuth2Context(ctx, c.HTTPClient), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := ts.Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.ErrorCode != "" {
			return &RefreshResult{
				Denied:           true,
				ErrorCode:        rerr.ErrorCode,
				ErrorDescription: rerr.ErrorDescription,
			}, nil
		}
		return nil, fmt.Errorf("refreshing token: %w", err)
	}

	res := &RefreshResult{AccessToken: tok.AccessToken}
	if tok.RefreshToken != refreshToken {
		res.RefreshToken = tok.RefreshToken
	}
	return res, nil
}

// EndSession asks the provider to terminate the session the refresh token
// belongs to.
func (c *Client) EndSession(ctx context.Context, refreshToken string) error {
	if c.EndSessionURL == "" {
		return ErrNoEndSessionEndpoint
	}

	form := url.Values{
		"client_id":     {c.OAuth2Config.ClientID},
		"client_secret": {c.OAuth2Config.ClientSecret},
		"refresh_token": {refreshToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.EndSessionURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating end session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := internal.HTTPClient(ctx, c.HTTPClient).Do(req)
	if err != nil {
		return fmt.Errorf("posting to %s: %w", c.EndSessionURL, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("end session request failed with code %d", res.StatusCode)
	}
	return nil
}

func isClientError(rerr *oauth2.RetrieveError) bool {
	if rerr.ErrorCode != "" {
		return true
	}
	return rerr.Response != nil && rerr.Response.StatusCode >= 400 && rerr.Response.StatusCode < 500
}

func describe(rerr *oauth2.RetrieveError) string {
	switch {
	case rerr.ErrorCode != "" && rerr.ErrorDescription != "":
		return rerr.ErrorCode + ": " + rerr.ErrorDescription
	case rerr.ErrorCode != "":
		return rerr.ErrorCode
	case rerr.Response != nil:
		return rerr.Response.Status
	}
	return "unknown error"
}
