// Package gatehttp puts the gatekeeper in front of an http.Handler.
package gatehttp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"lds.li/edgegate/gatekeeper"
	"lds.li/edgegate/validator"
)

// RequestIDHeader carries the request id to the origin and back to the
// client.
const RequestIDHeader = "X-Request-Id"

var baseLogAttr = slog.String("component", "gatehttp")

func errAttr(err error) slog.Attr { return slog.String("err", err.Error()) }

// Decider produces the decision for a request. *gatekeeper.Gatekeeper
// implements it.
type Decider interface {
	Handle(ctx context.Context, req *gatekeeper.InboundRequest) (gatekeeper.Decision, error)
}

// Handler wraps another http.Handler, only letting requests through that the
// gatekeeper forwards.
type Handler struct {
	// Gatekeeper decides on each request. Required.
	Gatekeeper Decider
	// IdentityHeader, if set, carries the base64 encoded JSON claims to the
	// origin. Any value the client sent is removed.
	IdentityHeader string
	// Metrics are optional.
	Metrics *Metrics
}

type claimsKey struct{}

// ClaimsFromContext returns the validated claims for a forwarded request.
func ClaimsFromContext(ctx context.Context) (validator.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(validator.Claims)
	return c, ok && c != nil
}

// Wrap returns an http.Handler that runs the gatekeeper before next.
func (h *Handler) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		reqID := r.Header.Get(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := ContextWithRequestID(r.Context(), reqID)
		w.Header().Set(RequestIDHeader, reqID)

		if h.Gatekeeper == nil {
			slog.ErrorContext(ctx, "Uninitialized gatekeeper", baseLogAttr)
			http.Error(w, "Uninitialized gatekeeper", http.StatusInternalServerError)
			return
		}

		// a clone, so header changes below never leak into the caller's request.
		r = r.Clone(ctx)
		r.Header.Set(RequestIDHeader, reqID)

		d, err := h.Gatekeeper.Handle(ctx, gatekeeper.NewInboundRequest(r.URL.EscapedPath(), r.URL.RawQuery, r.Header))
		h.Metrics.observe(time.Since(start))
		if err != nil {
			slog.ErrorContext(ctx, "Failed to decide on request", baseLogAttr, errAttr(err))
			h.Metrics.incError()
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		h.Metrics.incDecision(d.Kind.String())

		if d.Kind == gatekeeper.Forward {
			if err := h.setIdentity(r, d.Claims); err != nil {
				slog.ErrorContext(ctx, "Failed to encode identity header", baseLogAttr, errAttr(err))
				h.Metrics.incError()
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, claimsKey{}, d.Claims)))
			return
		}

		slog.DebugContext(ctx, "Answering for origin", baseLogAttr,
			slog.String("decision", d.Kind.String()), slog.String("state", d.State.String()))
		writeResponse(w, d.Response())
	})
}

func (h *Handler) setIdentity(r *http.Request, claims validator.Claims) error {
	if h.IdentityHeader == "" {
		return nil
	}
	r.Header.Del(h.IdentityHeader)
	if claims == nil {
		return nil
	}
	b, err := json.Marshal(claims)
	if err != nil {
		return err
	}
	r.Header.Set(h.IdentityHeader, base64.StdEncoding.EncodeToString(b))
	return nil
}

func writeResponse(w http.ResponseWriter, res *gatekeeper.Response) {
	for k, vs := range res.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(res.StatusCode)
	if res.Body != "" {
		_, _ = io.WriteString(w, res.Body)
	}
}
