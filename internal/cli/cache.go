package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
)

// CacheStats is the cache stats output.
type CacheStats struct {
	Backend  string `json:"backend"`
	Positive int    `json:"positive"`
	Negative int    `json:"negative"`
	// Expired counts negative entries past cache.negative_ttl; the next
	// resolution of those tokens looks them up again.
	Expired int `json:"expired"`
	// StoredNegative is the negative row count read directly from the SQL
	// store, for comparison with what the cache loaded.
	StoredNegative *int `json:"storedNegative,omitempty"`
}

// Text renders the counts.
func (s CacheStats) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "backend:  %s\n", s.Backend)
	fmt.Fprintf(&b, "positive: %d\n", s.Positive)
	fmt.Fprintf(&b, "negative: %d\n", s.Negative)
	if s.Expired > 0 {
		fmt.Fprintf(&b, "expired:  %d\n", s.Expired)
	}
	if s.StoredNegative != nil {
		fmt.Fprintf(&b, "stored negative rows: %d\n", *s.StoredNegative)
	}
	return b.String()
}

// PurgeReport is the cache purge-negative output.
type PurgeReport struct {
	Purged []string `json:"purged"`
}

// Text lists the purged tokens.
func (p PurgeReport) Text() string {
	if len(p.Purged) == 0 {
		return "No negative entries.\n"
	}
	return fmt.Sprintf("Purged %d negative entries:\n  %s\n", len(p.Purged), strings.Join(p.Purged, "\n  "))
}

// NewCacheCommand creates the cache command group.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the geocode cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "stats",
		Short:         "Count positive and negative entries",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheStats(rootOpts, cmd)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "purge-negative",
		Short: "Delete every negative entry so those tokens are looked up again",
		Long: `Delete every negative entry from the geocode cache and persist the result.

Tokens that failed to resolve are never retried while their negative entry
exists. Purging them makes the next route refresh look them up once more.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCachePurge(rootOpts, cmd)
		},
	})

	return cmd
}

func runCacheStats(opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	cache, err := openCache(ctx, cfg.Cache, slog.Default())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open geocode cache", err)
	}
	defer cache.Close()

	st := cache.Stats()
	out := CacheStats{
		Backend:  cache.backend,
		Positive: st.Positive,
		Negative: st.Negative,
		Expired:  st.Expired,
	}
	if cache.sql != nil {
		n, err := cache.sql.CountNegative(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to count stored entries", err)
		}
		out.StoredNegative = &n
	}
	return opts.formatter(cmd).Success(out)
}

func runCachePurge(opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	cache, err := openCache(ctx, cfg.Cache, slog.Default())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open geocode cache", err)
	}
	defer cache.Close()

	purged := cache.PurgeNegative()
	if len(purged) > 0 {
		if err := cache.Flush(ctx); err != nil {
			return WrapExitError(ExitFailure, "failed to persist geocode cache", err)
		}
	}
	if purged == nil {
		purged = []string{}
	}
	return opts.formatter(cmd).Success(PurgeReport{Purged: purged})
}
