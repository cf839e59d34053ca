package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/atlas/internal/engine"
	"github.com/roach88/atlas/internal/render"
	"github.com/roach88/atlas/internal/resolver"
	"github.com/roach88/atlas/internal/route"
)

// surfaceTraceLimit bounds the in-memory surface call log of a long run.
const surfaceTraceLimit = 1000

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Addr     string
	NoRoutes bool

	// SessionGenerator overrides the session ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	SessionGenerator engine.SessionGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the sync engine",
		Long: `Start the sync engine against the configured backend.

The engine fetches an incident snapshot, subscribes to push deltas (falling
back to polling while push is unavailable), refreshes routes on an interval
and serves the map state over a local HTTP surface:

  GET    /incidents            current incidents, most recent first
  GET    /incidents.geojson    marker layer
  GET    /routes.geojson       route layer
  GET    /routes/{assetId}     route summary
  POST   /routes/{assetId}/select
  GET    /selection            highlight and viewport
  DELETE /selection
  GET    /status
  GET    /metrics

New-incident alerts are printed to stdout.

Example:
  atlas run --config atlas.yaml
  ATLAS_ENDPOINT=https://example.test/graphql atlas run --addr 127.0.0.1:9000`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "HTTP status address (overrides server.addr; empty config value disables)")
	cmd.Flags().BoolVar(&opts.NoRoutes, "no-routes", false, "disable the route refresher")

	return cmd
}

func runEngine(opts *RunOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.RequireBackend(); err != nil {
		return WrapExitError(ExitCommandError, "cannot start engine", err)
	}
	if cmd.Flags().Changed("addr") {
		cfg.Server.Addr = opts.Addr
	}
	if opts.NoRoutes {
		cfg.Routes.Enabled = false
	}
	logger := slog.Default()

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	cache, err := openCache(ctx, cfg.Cache, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open geocode cache", err)
	}
	defer func() {
		if closeErr := cache.Close(); closeErr != nil {
			logger.Error("error closing geocode cache", "error", closeErr)
		}
	}()

	src, sub := newSource(cfg.Backend, cfg.Transport.FetchTimeout, logger)
	surface := render.NewMemory(render.WithTraceLimit(surfaceTraceLimit))
	out := cmd.OutOrStdout()

	engOpts := []engine.EngineOption{
		engine.WithLogger(logger),
		engine.WithKeepMissing(cfg.Reconcile.KeepMissing),
		engine.WithTransportConfig(transportConfig(cfg.Transport)),
		engine.WithCache(cache.Cache),
		engine.WithAlertHandler(func(a engine.Alert) {
			fmt.Fprintf(out, "ALERT %s %s [%s] %s\n",
				a.At.Format(time.RFC3339), a.Incident.ID, a.Incident.Class(), a.Incident.Location)
		}),
	}
	if opts.SessionGenerator != nil {
		engOpts = append(engOpts, engine.WithSessionGenerator(opts.SessionGenerator))
	}
	if cfg.Routes.Enabled {
		lookup, err := newLookup(cfg.Geocoder, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to configure geocoder", err)
		}
		r := resolver.New(cache.Cache, lookup,
			resolver.WithTimeout(cfg.Geocoder.Timeout),
			resolver.WithLogger(logger),
		)
		engOpts = append(engOpts, engine.WithRoutes(src, route.NewMaterializer(r, logger), cfg.Routes.Interval))
	}
	eng := engine.New(surface, src, sub, engOpts...)

	var srv *http.Server
	if cfg.Server.Addr != "" {
		ln, err := net.Listen("tcp", cfg.Server.Addr)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to listen", err)
		}
		srv = &http.Server{
			Handler:           newServer(eng, surface, logger),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status server failed", "error", err)
			}
		}()
		fmt.Fprintf(out, "Serving map state on http://%s\n", ln.Addr())
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Fprintf(out, "Engine started (session %s). Press Ctrl-C to stop.\n", eng.Session())
	runErr := eng.Run(ctx)

	if srv != nil {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(sctx); err != nil {
			logger.Warn("status server shutdown", "error", err)
		}
		scancel()
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "engine error", runErr)
	}
	logger.Info("engine stopped gracefully")
	return nil
}
