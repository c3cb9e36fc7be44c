package gatekeeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"lds.li/edgegate/oauthflow"
	"lds.li/edgegate/validator"
)

// MissingParameterReason is the answer to a callback without a code.
const MissingParameterReason = "Bad request missing parameter"

// HandleLogin completes the authorization code flow on the callback path.
func (g *Gatekeeper) HandleLogin(ctx context.Context, req *InboundRequest) (Decision, error) {
	if idpErr := req.Query.Get("error"); idpErr != "" {
		desc := req.Query.Get("error_description")
		slog.InfoContext(ctx, "provider returned login error", baseLogAttr,
			slog.String("error_code", idpErr), slog.String("error_description", desc))
		reason := "Login failed: " + idpErr
		if desc != "" {
			reason += ": " + desc
		}
		return Decision{Kind: BadRequest, Reason: reason}, nil
	}

	code := req.Query.Get("code")
	if code == "" {
		return Decision{Kind: BadRequest, Reason: MissingParameterReason}, nil
	}

	target := oauthflow.RedirectTarget(req.Query.Get("state"))

	toks, err := g.flow.ExchangeCode(ctx, code)
	if errors.Is(err, oauthflow.ErrIncompleteExchange) {
		slog.InfoContext(ctx, "code exchange incomplete", baseLogAttr, errAttr(err))
		return Decision{Kind: BadRequest, Reason: MissingParameterReason}, nil
	} else if err != nil {
		return Decision{}, err
	}

	if g.cfg.RequiredGroup != "" {
		res, err := g.validator.Validate(ctx, validator.Request{
			Token:    toks.AccessToken,
			Keys:     g.cfg.Keys,
			Audience: g.cfg.ClientID,
		})
		if err != nil {
			return Decision{}, fmt.Errorf("validating new access token: %w", err)
		}
		if res.Outcome != validator.OutcomeValid {
			slog.InfoContext(ctx, "validator rejected freshly issued token", baseLogAttr, slog.Int("status", res.StatusCode))
			return denied(0), nil
		}
		if !g.groupAllowed(ctx, res.Claims) {
			return denied(0), nil
		}
	}

	return Decision{
		Kind:     RedirectToSelf,
		Location: target,
		Cookies: []*http.Cookie{
			g.credentialCookie(g.cfg.AccessCookie, toks.AccessToken),
			g.credentialCookie(g.cfg.RefreshCookie, toks.RefreshToken),
		},
	}, nil
}
