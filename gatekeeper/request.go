package gatekeeper

import (
	"net/http"
	"net/url"
)

// Cookies maps cookie names to values. When a name is sent more than once the
// first occurrence wins.
type Cookies map[string]string

// ParseCookies reads every Cookie header in order. Malformed pairs are
// skipped.
func ParseCookies(header http.Header) Cookies {
	r := http.Request{Header: header}
	out := Cookies{}
	for _, c := range r.Cookies() {
		if _, ok := out[c.Name]; ok {
			continue
		}
		out[c.Name] = c.Value
	}
	return out
}

// InboundRequest is the normalized view of a request the gatekeeper decides
// on. Treat it as read only once built.
type InboundRequest struct {
	Path     string
	RawQuery string
	Query    url.Values
	Cookies  Cookies
	Header   http.Header
}

// NewInboundRequest builds a request from the path, raw query string and
// headers. An unparseable query keeps whatever pairs did parse.
func NewInboundRequest(path, rawQuery string, header http.Header) *InboundRequest {
	if header == nil {
		header = http.Header{}
	}
	q, _ := url.ParseQuery(rawQuery)
	return &InboundRequest{
		Path:     path,
		RawQuery: rawQuery,
		Query:    q,
		Cookies:  ParseCookies(header),
		Header:   header,
	}
}

// OriginalURL is the path plus the query string, as the user requested it.
func (r *InboundRequest) OriginalURL() string {
	if r.RawQuery == "" {
		return r.Path
	}
	return r.Path + "?" + r.RawQuery
}

// cookie returns a cookie's value, treating an empty value as absent.
func (r *InboundRequest) cookie(name string) (string, bool) {
	v, ok := r.Cookies[name]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
