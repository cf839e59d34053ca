package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/atlas/internal/resolver"
)

// Resolution is one resolved token as printed by the resolve command.
type Resolution struct {
	Token    string      `json:"token"`
	Resolved bool        `json:"resolved"`
	Point    *[2]float64 `json:"point,omitempty"` // lon, lat
	Label    string      `json:"label,omitempty"`
}

// ResolveReport is the resolve command output.
type ResolveReport struct {
	Results      []Resolution `json:"results"`
	CacheEntries int          `json:"cacheEntries"`
}

// Text renders one line per token.
func (r ResolveReport) Text() string {
	var b strings.Builder
	for _, res := range r.Results {
		if !res.Resolved {
			fmt.Fprintf(&b, "%s\tunresolved\n", res.Token)
			continue
		}
		fmt.Fprintf(&b, "%s\t%g,%g\t%s\n", res.Token, res.Point[1], res.Point[0], res.Label)
	}
	return b.String()
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <token>...",
		Short: "Resolve waypoint tokens through the geocode cache",
		Long: `Resolve waypoint tokens the way the route refresher does.

"lat,lon" literals are parsed directly. Other tokens are answered from the
geocode cache, or looked up once with the configured geocoder and cached,
including failures. The cache is flushed before exit.

Examples:
  atlas resolve "Port of Newark" "40.7,-74"
  atlas resolve Albany --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(rootOpts, args, cmd)
		},
	}
}

func runResolve(opts *RootOptions, tokens []string, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
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

	r := resolver.New(cache.Cache, lookup,
		resolver.WithTimeout(cfg.Geocoder.Timeout),
		resolver.WithLogger(logger),
	)

	report := ResolveReport{Results: make([]Resolution, 0, len(tokens))}
	for _, token := range tokens {
		res, ok := r.Resolve(ctx, token)
		out := Resolution{Token: token, Resolved: ok}
		if ok {
			out.Point = &[2]float64{res.Point[0], res.Point[1]}
			out.Label = res.Label
		}
		report.Results = append(report.Results, out)
	}
	report.CacheEntries = cache.Len()

	if err := cache.Flush(ctx); err != nil {
		opts.formatter(cmd).VerboseLog("cache flush failed: %v", err)
	}
	return opts.formatter(cmd).Success(report)
}
