package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/LavishGent/routewise/internal/cache"
	"github.com/LavishGent/routewise/internal/router"
	"github.com/LavishGent/routewise/internal/types"
)

func newCacheCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the response cache",
	}
	cmd.AddCommand(
		newCacheGetCmd(a),
		newCacheStatsCmd(a),
		newCacheClearCmd(a),
	)
	return cmd
}

func (a *app) openCache() (*cache.Manager, error) {
	return cache.NewManager(a.cfg.Cache, &types.Options{Logger: a.logger})
}

func newCacheGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <operation> [args...]",
		Short: "Print the cached response of one call",
		Long: "Look up the cached response of operation called with args. Arguments " +
			"are matched as strings, in order, with no keyword arguments.",
		Example: `
routewise cache get get_stock_data NVDA 2024-01-01 2024-01-31
`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			operation := args[0]
			category, err := router.CategoryFor(operation)
			if err != nil {
				return err
			}

			mgr, err := a.openCache()
			if err != nil {
				return err
			}
			defer mgr.Close()

			callArgs := make([]any, len(args)-1)
			for i, v := range args[1:] {
				callArgs[i] = v
			}
			entry, err := mgr.Entry(cmd.Context(), operation, cache.MakeKey(callArgs, nil))
			if types.IsCacheMiss(err) {
				return fmt.Errorf("no cached response for %s%v", operation, args[1:])
			}
			if err != nil {
				return err
			}

			now := time.Now()
			ttl := a.cfg.Cache.TTLFor(operation)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Operation: %s (%s)\n", operation, category)
			fmt.Fprintf(out, "Vendor:    %s\n", entry.Backend)
			fmt.Fprintf(out, "Cached:    %s (%s ago)\n", entry.CreatedAt.Format(time.RFC3339), entry.Age(now).Round(time.Second))
			switch {
			case ttl == 0:
				fmt.Fprintln(out, "Fresh:     no (operation is not cached)")
			case entry.Fresh(ttl, now):
				fmt.Fprintln(out, "Fresh:     yes")
			default:
				fmt.Fprintf(out, "Fresh:     no (ttl %s)\n", ttl)
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, entry.Payload)
			return nil
		},
	}
}

func newCacheStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache layer health and entry counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.openCache()
			if err != nil {
				return err
			}
			defer mgr.Close()

			h := mgr.Health(cmd.Context())
			path := mgr.Path()
			if path == "" {
				path = "(in-memory)"
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Status:          %s\n", h.Status)
			fmt.Fprintf(out, "Store:           %s\n", path)
			fmt.Fprintf(out, "Stored entries:  %d\n", h.StoredEntries)
			fmt.Fprintf(out, "Memory entries:  %d\n", h.MemoryEntries)
			if h.RedisEnabled {
				fmt.Fprintf(out, "Redis connected: %v (pending %d, dropped %d)\n", h.RedisConnected, h.RedisPending, h.RedisDropped)
			} else {
				fmt.Fprintln(out, "Redis:           disabled")
			}
			return nil
		},
	}
}

func newCacheClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached response",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.openCache()
			if err != nil {
				return err
			}
			defer mgr.Close()

			if err := mgr.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Response cache cleared")
			return nil
		},
	}
}
