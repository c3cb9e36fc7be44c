// Package validator talks to the external token validation endpoint, and
// provides a reference implementation of that endpoint.
//
// A 200 answer carries the decoded claims. Any other status means the token
// was not accepted, and callers treat it as an expired credential. Transport
// failures are errors and must not be mistaken for either answer.
package validator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"lds.li/edgegate/internal"
)

// Outcome is the validator's verdict on a token that it did answer for.
type Outcome int

const (
	// OutcomeValid means the token verified, and Result.Claims is set.
	OutcomeValid Outcome = iota + 1
	// OutcomeExpired covers every non-200 answer. The validator does not
	// tell an expired token apart from an otherwise invalid one.
	OutcomeExpired
)

func (o Outcome) String() string {
	switch o {
	case OutcomeValid:
		return "valid"
	case OutcomeExpired:
		return "expired"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Claims are the decoded token claims returned by the validator.
type Claims map[string]any

// Request is the body posted to the validator.
type Request struct {
	Token    string          `json:"token"`
	Keys     json.RawMessage `json:"keys"`
	Audience string          `json:"aud"`
}

// Result is a validator answer.
type Result struct {
	Outcome Outcome
	// Claims is set for OutcomeValid.
	Claims Claims
	// StatusCode is the HTTP status the validator answered with.
	StatusCode int
}

// Client calls a validator over HTTP. It is safe for concurrent use.
type Client struct {
	// URL of the validation endpoint. Required.
	URL string
	// HTTPClient is used unless one is set on the context under
	// oauth2.HTTPClient.
	HTTPClient *http.Client
}

// Validate submits the token. The returned error is only non-nil when no
// verdict could be obtained.
func (c *Client) Validate(ctx context.Context, vr Request) (Result, error) {
	body, err := json.Marshal(vr)
	if err != nil {
		return Result{}, fmt.Errorf("marshalling validation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("creating request for %s: %w", c.URL, err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := internal.HTTPClient(ctx, c.HTTPClient).Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("posting to validator %s: %w", c.URL, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		// drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, res.Body)
		return Result{Outcome: OutcomeExpired, StatusCode: res.StatusCode}, nil
	}

	var claims Claims
	if err := json.NewDecoder(res.Body).Decode(&claims); err != nil {
		return Result{}, fmt.Errorf("decoding validator claims: %w", err)
	}
	if claims == nil {
		return Result{}, fmt.Errorf("validator answered 200 without claims")
	}
	return Result{Outcome: OutcomeValid, Claims: claims, StatusCode: res.StatusCode}, nil
}
