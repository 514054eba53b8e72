package cli

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/imgembed/internal/api"
	"github.com/matzehuels/imgembed/pkg/errors"
)

// shutdownTimeout bounds graceful shutdown after a signal.
const shutdownTimeout = 10 * time.Second

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		flags imageFlags
		addr  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the resolver over HTTP",
		Long: `Serve the resolver over HTTP.

Routes:
  GET  /healthz
  POST /v1/resolve      {"source": "...", "width": 0, "height": 0, "alt": ""}
  POST /v1/preprocess   {"tree": {...}, "definitions": {...}}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !cmd.Flags().Changed("addr") {
				addr = c.cfg().Serve.Addr
			}

			p, cleanup, err := c.newPlugin(ctx, flags.options(cmd, c.cfg().Images))
			if err != nil {
				return err
			}
			defer cleanup()

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return errors.Wrap(errors.ErrCodeInvalidConfig, err, "listen on %s", addr)
			}
			base := "http://" + ln.Addr().String()
			printSuccess("Listening on %s", StyleLink.Render(base))
			printNextStep("Check health", "curl "+base+"/healthz")
			return serve(ctx, ln, api.New(p, c.Logger).Handler())
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&addr, "addr", defaultAddr, "listen address")

	return cmd
}

// serve runs h on ln until ctx is done, then shuts down gracefully.
func serve(ctx context.Context, ln net.Listener, h http.Handler) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	loggerFromContext(ctx).Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
