package gatekeeper

import (
	"context"
	"log/slog"
	"net/http"

	"lds.li/edgegate/oauthflow"
)

// HandleLogout ends the provider session when it can, and always clears both
// credential cookies.
func (g *Gatekeeper) HandleLogout(ctx context.Context, req *InboundRequest) (Decision, error) {
	if rt, ok := req.cookie(g.cfg.RefreshCookie); ok {
		if err := g.flow.EndSession(ctx, rt); err != nil {
			slog.WarnContext(ctx, "ending provider session failed", baseLogAttr, errAttr(err))
		}
	}

	return Decision{
		Kind:     RedirectToSelf,
		Location: oauthflow.DefaultRedirectTarget,
		Cookies: []*http.Cookie{
			expiredCookie(g.cfg.AccessCookie),
			expiredCookie(g.cfg.RefreshCookie),
		},
	}, nil
}
