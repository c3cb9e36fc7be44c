package gatekeeper

import (
	"fmt"
	"html"
	"net/http"

	"lds.li/edgegate/validator"
)

// DecisionKind is the action taken for a request.
type DecisionKind int

const (
	// Forward lets the request through to the origin.
	Forward DecisionKind = iota + 1
	// RedirectToLogin sends the user to the provider's authorization
	// endpoint.
	RedirectToLogin
	// RedirectToSelf sends the user to a path on this site, setting or
	// clearing credential cookies on the way.
	RedirectToSelf
	// Deny rejects an authenticated user.
	Deny
	// BadRequest rejects a malformed callback.
	BadRequest
)

func (k DecisionKind) String() string {
	switch k {
	case Forward:
		return "forward"
	case RedirectToLogin:
		return "redirect_to_login"
	case RedirectToSelf:
		return "redirect_to_self"
	case Deny:
		return "deny"
	case BadRequest:
		return "bad_request"
	}
	return fmt.Sprintf("DecisionKind(%d)", int(k))
}

// SessionState is derived per request from the cookies and the validator's
// answer. It is never stored. The zero value is used for requests that are not
// session checks.
type SessionState int

const (
	StateUnauthenticated SessionState = iota + 1
	StateValid
	StateExpired
	StateRefreshFailed
)

func (s SessionState) String() string {
	switch s {
	case 0:
		return "none"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateValid:
		return "valid"
	case StateExpired:
		return "expired"
	case StateRefreshFailed:
		return "refresh_failed"
	}
	return fmt.Sprintf("SessionState(%d)", int(s))
}

// Decision is the single outcome for a request.
type Decision struct {
	Kind DecisionKind
	// Location is the redirect target for the redirect kinds.
	Location string
	// Cookies to set on the response.
	Cookies []*http.Cookie
	// Reason is the user facing message for Deny and BadRequest.
	Reason string
	// Claims are the validated claims, only set for Forward.
	Claims validator.Claims
	State  SessionState
}

// Response is the HTTP rendering of a decision.
type Response struct {
	StatusCode        int
	StatusDescription string
	Header            http.Header
	Body              string
}

const denyPage = `<!DOCTYPE html>
<html>
<head><title>Forbidden</title></head>
<body>
<h1>Forbidden</h1>
<p>%s</p>
</body>
</html>
`

// Response renders the decision. Forward has no response of its own and
// returns nil.
func (d Decision) Response() *Response {
	h := http.Header{}
	for _, c := range d.Cookies {
		h.Add("Set-Cookie", c.String())
	}

	switch d.Kind {
	case RedirectToLogin, RedirectToSelf:
		h.Set("Location", d.Location)
		return &Response{
			StatusCode:        http.StatusFound,
			StatusDescription: http.StatusText(http.StatusFound),
			Header:            h,
		}
	case Deny:
		h.Set("Content-Type", "text/html; charset=utf-8")
		return &Response{
			StatusCode:        http.StatusForbidden,
			StatusDescription: http.StatusText(http.StatusForbidden),
			Header:            h,
			Body:              fmt.Sprintf(denyPage, html.EscapeString(d.Reason)),
		}
	case BadRequest:
		h.Set("Content-Type", "text/plain; charset=utf-8")
		return &Response{
			StatusCode:        http.StatusBadRequest,
			StatusDescription: d.Reason,
			Header:            h,
			Body:              d.Reason + "\n",
		}
	}
	return nil
}
