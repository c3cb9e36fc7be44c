package oauthflow

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/oauth2"
	"lds.li/edgegate/provider"
)

type fakeIdP struct {
	*httptest.Server

	mu         sync.Mutex
	endSession []url.Values
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()
	f := &fakeIdP{}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("client_id") != "gate" || r.PostForm.Get("client_secret") != "s3cret" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid_client"})
			return
		}
		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			if r.PostForm.Get("redirect_uri") != "https://app.example.com/_login" {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_request"})
				return
			}
			switch r.PostForm.Get("code") {
			case "good":
				writeJSON(w, http.StatusOK, map[string]any{"access_token": "at-1", "refresh_token": "rt-1", "token_type": "Bearer", "expires_in": 300})
			case "no-refresh":
				writeJSON(w, http.StatusOK, map[string]any{"access_token": "at-1", "token_type": "Bearer"})
			case "no-access":
				writeJSON(w, http.StatusOK, map[string]any{"refresh_token": "rt-1", "token_type": "Bearer"})
			case "boom":
				http.Error(w, "upstream exploded", http.StatusBadGateway)
			default:
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant", "error_description": "Code not valid"})
			}
		case "refresh_token":
			switch r.PostForm.Get("refresh_token") {
			case "rt-1":
				writeJSON(w, http.StatusOK, map[string]any{"access_token": "at-2", "refresh_token": "rt-1", "token_type": "Bearer"})
			case "rt-rotate":
				writeJSON(w, http.StatusOK, map[string]any{"access_token": "at-2", "refresh_token": "rt-2", "token_type": "Bearer"})
			case "rt-200-error":
				writeJSON(w, http.StatusOK, map[string]any{"error": "invalid_grant"})
			case "boom":
				http.Error(w, "upstream exploded", http.StatusInternalServerError)
			default:
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant", "error_description": "Session not active"})
			}
		default:
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unsupported_grant_type"})
		}
	})
	mux.HandleFunc("POST /logout", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.endSession = append(f.endSession, r.PostForm)
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeIdP) client() *Client {
	p := &provider.Provider{Metadata: provider.Metadata{
		AuthorizationEndpoint: f.URL + "/auth",
		TokenEndpoint:         f.URL + "/token",
		EndSessionEndpoint:    f.URL + "/logout",
	}}
	c := New(p, "gate", "s3cret", "https://app.example.com/_login", nil)
	c.HTTPClient = f.Client()
	return c
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func TestAuthCodeURL(t *testing.T) {
	c := newFakeIdP(t).client()

	for _, tc := range []struct {
		name  string
		state string
		want  url.Values
	}{
		{
			name: "bare",
			want: url.Values{
				"client_id":     {"gate"},
				"response_type": {"code"},
				"redirect_uri":  {"https://app.example.com/_login"},
			},
		},
		{
			name:  "with state",
			state: EncodeState("/reports?year=2024&q=a+b"),
			want: url.Values{
				"client_id":     {"gate"},
				"response_type": {"code"},
				"redirect_uri":  {"https://app.example.com/_login"},
				"state":         {EncodeState("/reports?year=2024&q=a+b")},
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			u, err := url.Parse(c.AuthCodeURL(tc.state))
			if err != nil {
				t.Fatal(err)
			}
			if u.Path != "/auth" {
				t.Errorf("want path /auth, got %s", u.Path)
			}
			if diff := cmp.Diff(tc.want, u.Query()); diff != "" {
				t.Errorf("query (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExchangeCode(t *testing.T) {
	c := newFakeIdP(t).client()

	for _, tc := range []struct {
		name           string
		code           string
		want           *Tokens
		wantIncomplete bool
		wantErr        bool
	}{
		{
			name: "success",
			code: "good",
			want: &Tokens{AccessToken: "at-1", RefreshToken: "rt-1"},
		},
		{
			name:           "provider error envelope",
			code:           "expired-code",
			wantIncomplete: true,
		},
		{
			name:           "missing refresh token",
			code:           "no-refresh",
			wantIncomplete: true,
		},
		{
			name:           "missing access token",
			code:           "no-access",
			wantIncomplete: true,
		},
		{
			name:    "server failure",
			code:    "boom",
			wantErr: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := c.ExchangeCode(t.Context(), tc.code)
			switch {
			case tc.wantIncomplete:
				if !errors.Is(err, ErrIncompleteExchange) {
					t.Fatalf("want ErrIncompleteExchange, got %v", err)
				}
				return
			case tc.wantErr:
				if err == nil || errors.Is(err, ErrIncompleteExchange) {
					t.Fatalf("want transport error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("tokens (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRefresh(t *testing.T) {
	c := newFakeIdP(t).client()

	for _, tc := range []struct {
		name    string
		rt      string
		want    *RefreshResult
		wantErr bool
	}{
		{
			name: "success",
			rt:   "rt-1",
			want: &RefreshResult{AccessToken: "at-2"},
		},
		{
			name: "rotated refresh token",
			rt:   "rt-rotate",
			want: &RefreshResult{AccessToken: "at-2", RefreshToken: "rt-2"},
		},
		{
			name: "provider denies",
			rt:   "rt-dead",
			want: &RefreshResult{Denied: true, ErrorCode: "invalid_grant", ErrorDescription: "Session not active"},
		},
		{
			name: "error envelope on 200",
			rt:   "rt-200-error",
			want: &RefreshResult{Denied: true, ErrorCode: "invalid_grant"},
		},
		{
			name:    "server failure propagates",
			rt:      "boom",
			wantErr: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := c.Refresh(t.Context(), tc.rt)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("want error, got result %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("result (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRefreshTransportFailure(t *testing.T) {
	idp := newFakeIdP(t)
	c := idp.client()
	idp.Close()

	if _, err := c.Refresh(t.Context(), "rt-1"); err == nil {
		t.Fatal("want error with the provider down")
	}
}

func TestEndSession(t *testing.T) {
	idp := newFakeIdP(t)
	c := idp.client()

	if err := c.EndSession(t.Context(), "rt-1"); err != nil {
		t.Fatal(err)
	}

	want := []url.Values{{
		"client_id":     {"gate"},
		"client_secret": {"s3cret"},
		"refresh_token": {"rt-1"},
	}}
	if diff := cmp.Diff(want, idp.endSession); diff != "" {
		t.Errorf("end session calls (-want +got):\n%s", diff)
	}

	c.EndSessionURL = ""
	if err := c.EndSession(t.Context(), "rt-1"); !errors.Is(err, ErrNoEndSessionEndpoint) {
		t.Errorf("want ErrNoEndSessionEndpoint, got %v", err)
	}
}

func TestHTTPClientFromContext(t *testing.T) {
	idp := newFakeIdP(t)
	c := idp.client()
	c.HTTPClient = &http.Client{Transport: failingTransport{}}

	// the context client wins over the configured one.
	ctx := context.WithValue(t.Context(), oauth2.HTTPClient, idp.Client())
	if _, err := c.ExchangeCode(ctx, "good"); err != nil {
		t.Fatalf("want context client to be used, got %v", err)
	}
	if _, err := c.ExchangeCode(t.Context(), "good"); err == nil {
		t.Fatal("want configured failing client to be used")
	}
}

type failingTransport struct{}

func (failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("no network in this test")
}
