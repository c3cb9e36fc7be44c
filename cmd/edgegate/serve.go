package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"lds.li/edgegate/config"
	"lds.li/edgegate/gatehttp"
	"lds.li/edgegate/gatekeeper"
)

type serveOptions struct {
	config          string
	origin          string
	listen          string
	adminListen     string
	shutdownTimeout time.Duration
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gatekeeper in front of an origin",
		Long: `Resolves the identity provider, then proxies every request the
gatekeeper lets through to the origin. Settings are read from --config and
EDGEGATE_* environment variables.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.config, "config", "", "Settings file (JSON or YAML)")
	cmd.Flags().StringVar(&opts.origin, "origin", "", "Origin URL to proxy to")
	cmd.Flags().StringVar(&opts.listen, "listen", ":8080", "Address to serve on")
	cmd.Flags().StringVar(&opts.adminListen, "admin-listen", ":9090", "Address for health and metrics, empty to disable")
	cmd.Flags().DurationVar(&opts.shutdownTimeout, "shutdown-timeout", 10*time.Second, "Time allowed for in-flight requests on shutdown")
	_ = cmd.MarkFlagRequired("origin")
	return cmd
}

func runServe(ctx context.Context, opts *serveOptions) error {
	origin, err := url.Parse(opts.origin)
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return fmt.Errorf("origin %q must be an absolute URL", opts.origin)
	}

	s, err := config.Load(opts.config)
	if err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	p, err := s.Provider(ctx)
	if err != nil {
		return fmt.Errorf("resolving identity provider: %w", err)
	}
	slog.InfoContext(ctx, "resolved identity provider",
		slog.String("issuer", p.Metadata.Issuer), slog.String("authorization_endpoint", p.Metadata.AuthorizationEndpoint))

	gk, err := gatekeeper.New(s.GatekeeperConfig(p.Keys), s.ValidatorClient(), s.OAuthClient(p))
	if err != nil {
		return fmt.Errorf("creating gatekeeper: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	h := &gatehttp.Handler{
		Gatekeeper:     gk,
		IdentityHeader: s.IdentityHeader,
		Metrics:        gatehttp.NewMetrics(reg),
	}

	servers := []*http.Server{{
		Addr:              opts.listen,
		Handler:           h.Wrap(newProxy(origin)),
		ReadHeaderTimeout: 10 * time.Second,
	}}
	if opts.adminListen != "" {
		servers = append(servers, &http.Server{
			Addr:              opts.adminListen,
			Handler:           newAdminRouter(reg),
			ReadHeaderTimeout: 10 * time.Second,
		})
	}
	return serve(ctx, opts.shutdownTimeout, servers...)
}

func newProxy(origin *url.URL) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(origin)
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			slog.ErrorContext(r.Context(), "proxying to origin failed", slog.String("err", err.Error()))
			w.WriteHeader(http.StatusBadGateway)
		},
	}
}

func newAdminRouter(reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return r
}

// serve runs the servers until ctx is done or one of them fails, then shuts
// them all down.
func serve(ctx context.Context, shutdownTimeout time.Duration, servers ...*http.Server) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			slog.InfoContext(ctx, "listening", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serving on %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(sctx); err != nil {
				errs = append(errs, fmt.Errorf("shutting down %s: %w", srv.Addr, err))
			}
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}
