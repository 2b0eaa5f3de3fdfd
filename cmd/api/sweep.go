package main

import (
	"fmt"

	"call-relay/internal/config"
	"call-relay/internal/sweeper"
	"call-relay/pkg/logger"

	"github.com/spf13/cobra"
)

const sweepAll = "all"

func newSweepCmd() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one maintenance sweep and exit",
		Long:  "Marks stale pending/ringing calls missed (expire), deletes ended calls past retention (purge), or both (all).",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd, kind)
		},
	}

	cmd.Flags().StringVar(&kind, "kind", sweepAll, "sweep to run: expire, purge or all")
	return cmd
}

func runSweep(cmd *cobra.Command, kind string) error {
	kinds := []string{kind}
	switch kind {
	case sweepAll:
		kinds = []string{sweeper.KindExpire, sweeper.KindPurge}
	case sweeper.KindExpire, sweeper.KindPurge:
	default:
		return fmt.Errorf("unknown sweep kind %q", kind)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.App.Env)

	a, err := newApp(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	for _, k := range kinds {
		var n int64
		if k == sweeper.KindExpire {
			n, err = a.sweeper.Expire(cmd.Context())
		} else {
			n, err = a.sweeper.Purge(cmd.Context())
		}
		if err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d calls affected\n", k, n)
	}
	return nil
}
