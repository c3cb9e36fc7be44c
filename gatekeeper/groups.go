package gatekeeper

import (
	"context"
	"log/slog"
	"slices"

	"github.com/mitchellh/mapstructure"
	"lds.li/edgegate/validator"
)

// NotInGroupReason is shown to users denied by the group check.
const NotInGroupReason = "You are not in a group with access to this application"

type groupClaims struct {
	Groups []string `mapstructure:"groups"`
}

// Groups decodes the groups claim. A lone string is treated as a single
// group. A missing claim yields no groups.
func Groups(claims validator.Claims) ([]string, error) {
	var gc groupClaims
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &gc,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(map[string]any(claims)); err != nil {
		return nil, err
	}
	return gc.Groups, nil
}

// groupAllowed reports whether the claims satisfy the group requirement. With
// no required group everything is allowed.
func (g *Gatekeeper) groupAllowed(ctx context.Context, claims validator.Claims) bool {
	if g.cfg.RequiredGroup == "" {
		return true
	}
	groups, err := Groups(claims)
	if err != nil {
		slog.InfoContext(ctx, "undecodable groups claim", baseLogAttr, errAttr(err))
		return false
	}
	if !slices.Contains(groups, g.cfg.RequiredGroup) {
		slog.InfoContext(ctx, "user is missing required group", baseLogAttr, slog.String("group", g.cfg.RequiredGroup))
		return false
	}
	return true
}

func denied(state SessionState) Decision {
	return Decision{Kind: Deny, Reason: NotInGroupReason, State: state}
}
