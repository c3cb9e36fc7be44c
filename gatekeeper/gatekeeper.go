// Package gatekeeper decides, per request, whether a caller may reach the
// origin. It reads the credential cookies, asks the external validator about
// the access token, and drives login, refresh and logout against the identity
// provider. It keeps no state between requests.
package gatekeeper

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"lds.li/edgegate/oauthflow"
	"lds.li/edgegate/validator"
)

const (
	DefaultAccessCookie  = "auth"
	DefaultRefreshCookie = "rt"
	// DefaultMaxAge is the credential cookie lifetime, in seconds.
	DefaultMaxAge = 10
)

var baseLogAttr = slog.String("component", "gatekeeper")

func errAttr(err error) slog.Attr { return slog.String("err", err.Error()) }

// Validator submits a token to the external validation endpoint.
// *validator.Client implements it.
type Validator interface {
	Validate(ctx context.Context, req validator.Request) (validator.Result, error)
}

// Flow performs the calls to the identity provider. *oauthflow.Client
// implements it.
type Flow interface {
	AuthCodeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*oauthflow.Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (*oauthflow.RefreshResult, error)
	EndSession(ctx context.Context, refreshToken string) error
}

// Config is fixed at startup.
type Config struct {
	// ClientID is the OAuth2 client, and the audience tokens are validated
	// against. Required.
	ClientID string
	// Keys is the provider's signing key set, forwarded to the validator
	// as-is. Required.
	Keys json.RawMessage
	// AccessCookie names the cookie holding the access token. Defaults to
	// DefaultAccessCookie.
	AccessCookie string
	// RefreshCookie names the cookie holding the refresh token. Defaults to
	// DefaultRefreshCookie.
	RefreshCookie string
	// RequiredGroup, if set, must be present in the token's groups claim.
	RequiredGroup string
	// MaxAge of the credential cookies in seconds. Defaults to DefaultMaxAge.
	MaxAge int
}

// Gatekeeper makes the per request decision. It is immutable once built and
// safe for concurrent use.
type Gatekeeper struct {
	cfg       Config
	validator Validator
	flow      Flow
}

// New checks cfg, applies defaults, and returns a Gatekeeper.
func New(cfg Config, v Validator, f Flow) (*Gatekeeper, error) {
	var errs []error
	if cfg.ClientID == "" {
		errs = append(errs, errors.New("client ID is required"))
	}
	if len(cfg.Keys) == 0 {
		errs = append(errs, errors.New("signing keys are required"))
	}
	if cfg.MaxAge < 0 {
		errs = append(errs, errors.New("max age must not be negative"))
	}
	if v == nil {
		errs = append(errs, errors.New("validator is required"))
	}
	if f == nil {
		errs = append(errs, errors.New("oauth flow is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if cfg.AccessCookie == "" {
		cfg.AccessCookie = DefaultAccessCookie
	}
	if cfg.RefreshCookie == "" {
		cfg.RefreshCookie = DefaultRefreshCookie
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.AccessCookie == cfg.RefreshCookie {
		return nil, errors.New("access and refresh cookies must have different names")
	}
	return &Gatekeeper{cfg: cfg, validator: v, flow: f}, nil
}

// Config returns the effective configuration, defaults applied.
func (g *Gatekeeper) Config() Config {
	return g.cfg
}

// Handle classifies the request and produces its decision. A non-nil error is
// a failure talking to the validator or the provider, and must be surfaced
// as a server error, never as an authentication decision.
func (g *Gatekeeper) Handle(ctx context.Context, req *InboundRequest) (Decision, error) {
	route := Classify(req.Path)
	slog.DebugContext(ctx, "handling request", baseLogAttr, slog.String("route", route.String()))

	switch route {
	case RouteLoginCallback:
		return g.HandleLogin(ctx, req)
	case RouteLogout:
		return g.HandleLogout(ctx, req)
	}
	return g.CheckSession(ctx, req)
}

func (g *Gatekeeper) credentialCookie(name, value string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   g.cfg.MaxAge,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func expiredCookie(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}
