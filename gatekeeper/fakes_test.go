package gatekeeper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"lds.li/edgegate/oauthflow"
	"lds.li/edgegate/validator"
)

const testAuthURL = "https://idp.example.com/auth?client_id=gate&response_type=code"

var testKeys = json.RawMessage(`[{"kty":"EC","kid":"k1"}]`)

// fakeValidator answers by token. Unknown tokens are expired.
type fakeValidator struct {
	results map[string]validator.Result
	err     error
	calls   []validator.Request
}

func (f *fakeValidator) Validate(_ context.Context, req validator.Request) (validator.Result, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return validator.Result{}, f.err
	}
	if r, ok := f.results[req.Token]; ok {
		return r, nil
	}
	return validator.Result{Outcome: validator.OutcomeExpired, StatusCode: http.StatusUnauthorized}, nil
}

func valid(claims validator.Claims) validator.Result {
	return validator.Result{Outcome: validator.OutcomeValid, Claims: claims, StatusCode: http.StatusOK}
}

// fakeFlow answers refresh and exchange calls from maps.
type fakeFlow struct {
	refreshes   map[string]*oauthflow.RefreshResult
	refreshErr  error
	exchanges   map[string]*oauthflow.Tokens
	exchangeErr error
	endErr      error

	refreshCalls []string
	endCalls     []string
}

func (f *fakeFlow) AuthCodeURL(state string) string {
	if state == "" {
		return testAuthURL
	}
	return testAuthURL + "&state=" + url.QueryEscape(state)
}

func (f *fakeFlow) ExchangeCode(_ context.Context, code string) (*oauthflow.Tokens, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	if t, ok := f.exchanges[code]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: invalid_grant", oauthflow.ErrIncompleteExchange)
}

func (f *fakeFlow) Refresh(_ context.Context, rt string) (*oauthflow.RefreshResult, error) {
	f.refreshCalls = append(f.refreshCalls, rt)
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	if r, ok := f.refreshes[rt]; ok {
		return r, nil
	}
	return &oauthflow.RefreshResult{Denied: true, ErrorCode: "invalid_grant"}, nil
}

func (f *fakeFlow) EndSession(_ context.Context, rt string) error {
	f.endCalls = append(f.endCalls, rt)
	return f.endErr
}

func newTestGatekeeper(t *testing.T, cfg Config, v *fakeValidator, f *fakeFlow) *Gatekeeper {
	t.Helper()
	if cfg.ClientID == "" {
		cfg.ClientID = "gate"
	}
	if cfg.Keys == nil {
		cfg.Keys = testKeys
	}
	g, err := New(cfg, v, f)
	if err != nil {
		t.Fatalf("creating gatekeeper: %v", err)
	}
	return g
}

// newRequest builds an inbound request for a URI like "/a?b=c" with the
// given cookie header.
func newRequest(t *testing.T, uri, cookie string) *InboundRequest {
	t.Helper()
	h := http.Header{}
	if cookie != "" {
		h.Set("Cookie", cookie)
	}
	path, rawQuery, _ := strings.Cut(uri, "?")
	return NewInboundRequest(path, rawQuery, h)
}

// stateOf pulls the decoded redirect state out of a login redirect.
func stateOf(t *testing.T, location string) (string, bool) {
	t.Helper()
	u, err := url.Parse(location)
	if err != nil {
		t.Fatal(err)
	}
	s := u.Query().Get("state")
	if s == "" {
		return "", false
	}
	src, ok := oauthflow.DecodeState(s)
	if !ok {
		t.Fatalf("state %q in %s did not decode", s, location)
	}
	return src, true
}

type cookieSummary struct {
	Name   string
	Value  string
	MaxAge int
}

func summarize(cs []*http.Cookie) []cookieSummary {
	var out []cookieSummary
	for _, c := range cs {
		out = append(out, cookieSummary{Name: c.Name, Value: c.Value, MaxAge: c.MaxAge})
	}
	return out
}
