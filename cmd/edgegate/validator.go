package main

import (
	"context"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"lds.li/edgegate/validator"
)

type validatorOptions struct {
	listen          string
	issuer          string
	clockSkew       time.Duration
	shutdownTimeout time.Duration
}

func newValidatorCmd() *cobra.Command {
	opts := &validatorOptions{}
	cmd := &cobra.Command{
		Use:   "validator",
		Short: "Run the reference token validation endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runValidator(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.listen, "listen", ":8081", "Address to serve on")
	cmd.Flags().StringVar(&opts.issuer, "issuer", "", "Expected token issuer, unchecked if empty")
	cmd.Flags().DurationVar(&opts.clockSkew, "clock-skew", 0, "Tolerated clock skew, at most 10m")
	cmd.Flags().DurationVar(&opts.shutdownTimeout, "shutdown-timeout", 10*time.Second, "Time allowed for in-flight requests on shutdown")
	return cmd
}

func runValidator(ctx context.Context, opts *validatorOptions) error {
	return serve(ctx, opts.shutdownTimeout, &http.Server{
		Addr:              opts.listen,
		Handler:           &validator.Server{Issuer: opts.issuer, ClockSkew: opts.clockSkew},
		ReadHeaderTimeout: 10 * time.Second,
	})
}
