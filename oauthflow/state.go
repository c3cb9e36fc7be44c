package oauthflow

import (
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"
)

// DefaultRedirectTarget is where users land after login when no usable
// redirect state came back from the provider.
const DefaultRedirectTarget = "/"

// RedirectState is round-tripped through the provider's state parameter. It
// only records where to send the user back to, it is never an authorization
// signal.
type RedirectState struct {
	SourceURL string `json:"source_url"`
}

var stateEncodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// EncodeState serializes sourceURL as base64 encoded JSON.
func EncodeState(sourceURL string) string {
	// marshalling a struct with one string field cannot fail.
	b, _ := json.Marshal(RedirectState{SourceURL: sourceURL})
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeState recovers the source URL from a state value. It returns false
// for anything that is not base64 encoded JSON with a source_url.
func DecodeState(state string) (string, bool) {
	if state == "" {
		return "", false
	}
	// a '+' that went through form decoding unescaped comes back as a space.
	state = strings.ReplaceAll(state, " ", "+")

	for _, enc := range stateEncodings {
		b, err := enc.DecodeString(state)
		if err != nil {
			continue
		}
		var rs RedirectState
		if err := json.Unmarshal(b, &rs); err != nil {
			return "", false
		}
		if rs.SourceURL == "" {
			return "", false
		}
		return rs.SourceURL, true
	}
	return "", false
}

// RedirectTarget resolves the post-login destination from a raw state value,
// falling back to DefaultRedirectTarget when it is missing, undecodable, or
// points off-site.
func RedirectTarget(state string) string {
	src, ok := DecodeState(state)
	if !ok {
		return DefaultRedirectTarget
	}
	return LocalTarget(src)
}

// LocalTarget returns target if it is a path on this site, otherwise
// DefaultRedirectTarget.
func LocalTarget(target string) string {
	if !isLocalPath(target) {
		return DefaultRedirectTarget
	}
	return target
}

func isLocalPath(s string) bool {
	if !strings.HasPrefix(s, "/") || strings.HasPrefix(s, "//") || strings.HasPrefix(s, "/\\") {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.Scheme == "" && u.Host == ""
}
