// Package config loads the gatekeeper settings. Values come from an optional
// settings file and are overridden by EDGEGATE_* environment variables, e.g.
// EDGEGATE_CLIENT_SECRET.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/spf13/viper"
	"lds.li/edgegate/gatekeeper"
	"lds.li/edgegate/oauthflow"
	"lds.li/edgegate/provider"
	"lds.li/edgegate/validator"
)

// EnvPrefix is prepended to every key when read from the environment.
const EnvPrefix = "EDGEGATE"

// Settings are the gatekeeper settings. Key names match the settings file.
type Settings struct {
	Host   string `mapstructure:"HOST"`
	Realm  string `mapstructure:"REALM"`
	Issuer string `mapstructure:"ISSUER"`

	ClientID     string   `mapstructure:"CLIENT_ID"`
	ClientSecret string   `mapstructure:"CLIENT_SECRET"`
	RedirectURI  string   `mapstructure:"REDIRECT_URI"`
	Scopes       []string `mapstructure:"SCOPES"`

	ValidatorURL string `mapstructure:"VAL_API_URL"`

	AuthCookie     string `mapstructure:"AUTH_COOKIE"`
	RefreshCookie  string `mapstructure:"REFRESH_COOKIE"`
	AllowedGroup   string `mapstructure:"ALLOWED_GROUP"`
	MaxAge         int    `mapstructure:"MAX_AGE"`
	IdentityHeader string `mapstructure:"IDENTITY_HEADER"`

	// Setting all of authorization, token and JWKS skips discovery.
	AuthorizationEndpoint string `mapstructure:"AUTHORIZATION_ENDPOINT"`
	TokenEndpoint         string `mapstructure:"TOKEN_ENDPOINT"`
	EndSessionEndpoint    string `mapstructure:"END_SESSION_ENDPOINT"`
	JWKSURI               string `mapstructure:"JWKS_URI"`
}

var keys = []string{
	"HOST", "REALM", "ISSUER",
	"CLIENT_ID", "CLIENT_SECRET", "REDIRECT_URI", "SCOPES",
	"VAL_API_URL",
	"AUTH_COOKIE", "REFRESH_COOKIE", "ALLOWED_GROUP", "MAX_AGE", "IDENTITY_HEADER",
	"AUTHORIZATION_ENDPOINT", "TOKEN_ENDPOINT", "END_SESSION_ENDPOINT", "JWKS_URI",
}

// Load reads the settings file at path, if path is not empty, and applies
// environment overrides. The result is not validated.
func Load(path string) (*Settings, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("binding %s: %w", k, err)
		}
	}
	v.SetDefault("AUTH_COOKIE", gatekeeper.DefaultAccessCookie)
	v.SetDefault("REFRESH_COOKIE", gatekeeper.DefaultRefreshCookie)
	v.SetDefault("MAX_AGE", gatekeeper.DefaultMaxAge)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading settings from %s: %w", path, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decoding settings: %w", err)
	}
	return &s, nil
}

// Validate reports every missing or malformed value.
func (s *Settings) Validate() error {
	var errs []error
	if s.ClientID == "" {
		errs = append(errs, errors.New("CLIENT_ID is required"))
	}
	if s.RedirectURI == "" {
		errs = append(errs, errors.New("REDIRECT_URI is required"))
	} else if err := checkURL(s.RedirectURI); err != nil {
		errs = append(errs, fmt.Errorf("REDIRECT_URI: %w", err))
	}
	if s.ValidatorURL == "" {
		errs = append(errs, errors.New("VAL_API_URL is required"))
	} else if err := checkURL(s.ValidatorURL); err != nil {
		errs = append(errs, fmt.Errorf("VAL_API_URL: %w", err))
	}
	if _, ok := s.staticMetadata(); !ok && s.Issuer == "" && (s.Host == "" || s.Realm == "") {
		errs = append(errs, errors.New("one of ISSUER, HOST and REALM, or static endpoints is required"))
	}
	if s.MaxAge < 0 {
		errs = append(errs, errors.New("MAX_AGE must not be negative"))
	}
	if s.AuthCookie != "" && s.AuthCookie == s.RefreshCookie {
		errs = append(errs, errors.New("AUTH_COOKIE and REFRESH_COOKIE must differ"))
	}
	return errors.Join(errs...)
}

// IssuerURL is ISSUER if set, otherwise the Keycloak realm issuer for HOST
// and REALM.
func (s *Settings) IssuerURL() string {
	if s.Issuer != "" {
		return s.Issuer
	}
	return provider.KeycloakIssuer(s.Host, s.Realm)
}

// Provider resolves the identity provider, by discovery unless static
// endpoints are configured.
func (s *Settings) Provider(ctx context.Context) (*provider.Provider, error) {
	if md, ok := s.staticMetadata(); ok {
		return provider.Static(ctx, md)
	}
	p, err := provider.Discover(ctx, s.IssuerURL())
	if err != nil {
		return nil, err
	}
	if s.EndSessionEndpoint != "" {
		p.Metadata.EndSessionEndpoint = s.EndSessionEndpoint
	}
	return p, nil
}

// GatekeeperConfig builds the gatekeeper configuration around the provider's
// signing keys.
func (s *Settings) GatekeeperConfig(keys json.RawMessage) gatekeeper.Config {
	return gatekeeper.Config{
		ClientID:      s.ClientID,
		Keys:          keys,
		AccessCookie:  s.AuthCookie,
		RefreshCookie: s.RefreshCookie,
		RequiredGroup: s.AllowedGroup,
		MaxAge:        s.MaxAge,
	}
}

// OAuthClient builds the flow client for the provider.
func (s *Settings) OAuthClient(p *provider.Provider) *oauthflow.Client {
	return oauthflow.New(p, s.ClientID, s.ClientSecret, s.RedirectURI, s.Scopes)
}

// ValidatorClient builds the client for the validation endpoint.
func (s *Settings) ValidatorClient() *validator.Client {
	return &validator.Client{URL: s.ValidatorURL}
}

func (s *Settings) staticMetadata() (provider.Metadata, bool) {
	if s.AuthorizationEndpoint == "" || s.TokenEndpoint == "" || s.JWKSURI == "" {
		return provider.Metadata{}, false
	}
	iss := ""
	if s.Issuer != "" || (s.Host != "" && s.Realm != "") {
		iss = s.IssuerURL()
	}
	return provider.Metadata{
		Issuer:                iss,
		AuthorizationEndpoint: s.AuthorizationEndpoint,
		TokenEndpoint:         s.TokenEndpoint,
		EndSessionEndpoint:    s.EndSessionEndpoint,
		JWKSURI:               s.JWKSURI,
	}, true
}

func checkURL(s string) error {
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q is not an http(s) URL", s)
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", s)
	}
	return nil
}
