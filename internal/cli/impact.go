package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/atlas/internal/route"
)

// Impact lists the route assets passing through one location.
type Impact struct {
	IncidentID string   `json:"incidentId,omitempty"`
	Location   string   `json:"location"`
	Assets     []string `json:"assets"`
}

// ImpactReport is the impact command output.
type ImpactReport struct {
	Impacts []Impact `json:"impacts"`
}

// Text renders one line per location.
func (r ImpactReport) Text() string {
	var b strings.Builder
	for _, im := range r.Impacts {
		assets := "none"
		if len(im.Assets) > 0 {
			assets = strings.Join(im.Assets, ", ")
		}
		if im.IncidentID != "" {
			fmt.Fprintf(&b, "%s\t%s\t%s\n", im.IncidentID, im.Location, assets)
		} else {
			fmt.Fprintf(&b, "%s\t%s\n", im.Location, assets)
		}
	}
	return b.String()
}

// NewImpactCommand creates the impact command.
func NewImpactCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "impact [location]",
		Short: "List route assets affected by a location",
		Long: `List the route assets whose waypoints mention a location.

A route is affected when any significant word of the location (stop words
such as "port" or "airport" removed) appears in one of its waypoints.
Without an argument every incident in the current snapshot is checked.

Examples:
  atlas impact "Port of Newark"
  atlas impact --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImpact(rootOpts, args, cmd)
		},
	}
}

func runImpact(opts *RootOptions, args []string, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.RequireBackend(); err != nil {
		return WrapExitError(ExitCommandError, "cannot fetch routes", err)
	}
	ctx := cmd.Context()

	src, _ := newSource(cfg.Backend, cfg.Transport.FetchTimeout, slog.Default())
	records, err := src.FetchRoutes(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to fetch routes", err)
	}

	var report ImpactReport
	if len(args) == 1 {
		report.Impacts = []Impact{{Location: args[0], Assets: nonNil(route.Affected(args[0], records))}}
		return opts.formatter(cmd).Success(report)
	}

	snap, err := src.FetchSnapshot(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to fetch incidents", err)
	}
	report.Impacts = make([]Impact, 0, len(snap.Incidents))
	for _, inc := range snap.Incidents {
		report.Impacts = append(report.Impacts, Impact{
			IncidentID: inc.ID,
			Location:   inc.Location,
			Assets:     nonNil(route.Affected(inc.Location, records)),
		})
	}
	return opts.formatter(cmd).Success(report)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
