package gatekeeper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"lds.li/edgegate/oauthflow"
	"lds.li/edgegate/validator"
)

// transition is a step of the session state machine. Each one ends in exactly
// one decision.
type transition int

const (
	noToken transition = iota
	validToken
	expiredNoRefresh
	expiredWithRefresh
	refreshOk
	refreshFailed
	groupDenied
)

var transitionNames = map[transition]string{
	noToken:            "no_token",
	validToken:         "valid_token",
	expiredNoRefresh:   "expired_no_refresh",
	expiredWithRefresh: "expired_with_refresh",
	refreshOk:          "refresh_ok",
	refreshFailed:      "refresh_failed",
	groupDenied:        "group_denied",
}

func (t transition) String() string {
	if n, ok := transitionNames[t]; ok {
		return n
	}
	return fmt.Sprintf("transition(%d)", int(t))
}

// CheckSession decides on a request for the origin.
func (g *Gatekeeper) CheckSession(ctx context.Context, req *InboundRequest) (Decision, error) {
	access, ok := req.cookie(g.cfg.AccessCookie)
	if !ok {
		g.logTransition(ctx, noToken)
		return g.loginRedirect(req, StateUnauthenticated), nil
	}

	res, err := g.validator.Validate(ctx, validator.Request{
		Token:    access,
		Keys:     g.cfg.Keys,
		Audience: g.cfg.ClientID,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("validating access token: %w", err)
	}

	switch res.Outcome {
	case validator.OutcomeValid:
		if !g.groupAllowed(ctx, res.Claims) {
			g.logTransition(ctx, groupDenied)
			return denied(StateValid), nil
		}
		g.logTransition(ctx, validToken)
		return Decision{Kind: Forward, Claims: res.Claims, State: StateValid}, nil
	case validator.OutcomeExpired:
		return g.refresh(ctx, req)
	}
	return Decision{}, fmt.Errorf("unhandled validator outcome %s", res.Outcome)
}

func (g *Gatekeeper) refresh(ctx context.Context, req *InboundRequest) (Decision, error) {
	rt, ok := req.cookie(g.cfg.RefreshCookie)
	if !ok {
		g.logTransition(ctx, expiredNoRefresh)
		return g.loginRedirect(req, StateExpired), nil
	}
	g.logTransition(ctx, expiredWithRefresh)

	rr, err := g.flow.Refresh(ctx, rt)
	if err != nil {
		return Decision{}, err
	}
	if rr.Denied {
		g.logTransition(ctx, refreshFailed)
		slog.InfoContext(ctx, "refresh denied by provider", baseLogAttr,
			slog.String("error_code", rr.ErrorCode), slog.String("error_description", rr.ErrorDescription))
		// the original destination is not carried over here.
		return Decision{
			Kind:     RedirectToLogin,
			Location: g.flow.AuthCodeURL(""),
			State:    StateRefreshFailed,
		}, nil
	}

	g.logTransition(ctx, refreshOk)
	if rr.RefreshToken != "" {
		// the refresh cookie is left as is.
		slog.InfoContext(ctx, "provider rotated refresh token, keeping existing cookie", baseLogAttr)
	}
	return Decision{
		Kind:     RedirectToSelf,
		Location: oauthflow.LocalTarget(req.OriginalURL()),
		Cookies:  []*http.Cookie{g.credentialCookie(g.cfg.AccessCookie, rr.AccessToken)},
		State:    StateExpired,
	}, nil
}

func (g *Gatekeeper) loginRedirect(req *InboundRequest, state SessionState) Decision {
	return Decision{
		Kind:     RedirectToLogin,
		Location: g.flow.AuthCodeURL(oauthflow.EncodeState(req.OriginalURL())),
		State:    state,
	}
}

func (g *Gatekeeper) logTransition(ctx context.Context, t transition) {
	slog.DebugContext(ctx, "session transition", baseLogAttr, slog.String("transition", t.String()))
}
