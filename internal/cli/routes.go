package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/atlas/internal/resolver"
	"github.com/roach88/atlas/internal/route"
)

// RoutesOptions holds flags for the routes command.
type RoutesOptions struct {
	*RootOptions
	Asset   string
	GeoJSON bool
}

// RoutesReport is the routes command output.
type RoutesReport struct {
	Routes []route.Summary `json:"routes"`
}

// Text renders one line per route.
func (r RoutesReport) Text() string {
	if len(r.Routes) == 0 {
		return "No drawable routes.\n"
	}
	var b strings.Builder
	for _, s := range r.Routes {
		fmt.Fprintf(&b, "%s\t%s\t%d/%d points\t%s -> %s\n",
			s.AssetID, s.Type, len(s.Coordinates), s.NodeCount, s.From, s.To)
	}
	return b.String()
}

// NewRoutesCommand creates the routes command.
func NewRoutesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RoutesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Fetch and materialize routes once",
		Long: `Fetch route records from the backend, resolve their waypoints and print
the drawable routes. Routes with fewer than two resolvable waypoints are
dropped. The geocode cache is flushed before exit.

Examples:
  atlas routes
  atlas routes --asset bus-1 --format json
  atlas routes --geojson > routes.geojson`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoutes(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Asset, "asset", "", "print only the route for this asset ID")
	cmd.Flags().BoolVar(&opts.GeoJSON, "geojson", false, "print a GeoJSON FeatureCollection")

	return cmd
}

func runRoutes(opts *RoutesOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.RequireBackend(); err != nil {
		return WrapExitError(ExitCommandError, "cannot fetch routes", err)
	}
	logger := slog.Default()
	ctx := cmd.Context()

	lookup, err := newLookup(cfg.Geocoder, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to configure geocoder", err)
	}
	cache, err := openCache(ctx, cfg.Cache, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open geocode cache", err)
	}
	defer cache.Close()

	src, _ := newSource(cfg.Backend, cfg.Transport.FetchTimeout, logger)
	records, err := src.FetchRoutes(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to fetch routes", err)
	}

	r := resolver.New(cache.Cache, lookup,
		resolver.WithTimeout(cfg.Geocoder.Timeout),
		resolver.WithLogger(logger),
	)
	features := route.NewMaterializer(r, logger).Materialize(ctx, records)
	if err := cache.Flush(ctx); err != nil {
		opts.formatter(cmd).VerboseLog("cache flush failed: %v", err)
	}

	if opts.Asset != "" {
		f, ok := route.Find(features, opts.Asset)
		if !ok {
			return NewExitError(ExitFailure, fmt.Sprintf("no drawable route for asset %q", opts.Asset))
		}
		features = []route.Feature{f}
	}

	if opts.GeoJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(route.Collection(features))
	}

	report := RoutesReport{Routes: make([]route.Summary, 0, len(features))}
	for _, f := range features {
		report.Routes = append(report.Routes, route.Summarize(f))
	}
	return opts.formatter(cmd).Success(report)
}
