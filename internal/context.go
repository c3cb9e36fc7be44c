package internal

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
)

// HTTPClient picks the client for an outbound call to the IdP or the
// validator. A client carried on the context under oauth2.HTTPClient wins,
// then explicit, then http.DefaultClient.
func HTTPClient(ctx context.Context, explicit *http.Client) *http.Client {
	if hc, ok := ctx.Value(oauth2.HTTPClient).(*http.Client); ok {
		return hc
	}
	if explicit != nil {
		return explicit
	}
	return http.DefaultClient
}

// OAuth2Context returns ctx carrying the resolved client, so x/oauth2 token
// calls go through the same transport as our own requests.
func OAuth2Context(ctx context.Context, explicit *http.Client) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, HTTPClient(ctx, explicit))
}
