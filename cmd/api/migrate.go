package main

import (
	"errors"
	"fmt"

	"call-relay/internal/config"
	"call-relay/internal/database"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending Postgres migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				return runMigrateList(cmd)
			}
			return runMigrate(cmd)
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "print the embedded migration versions and exit")
	return cmd
}

func runMigrateList(cmd *cobra.Command) error {
	versions, err := database.Versions()
	if err != nil {
		return err
	}
	for _, v := range versions {
		fmt.Fprintln(cmd.OutOrStdout(), v)
	}
	return nil
}

func runMigrate(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.App.Store != config.StorePostgres {
		return errors.New("migrate requires STORE=postgres")
	}

	db, err := openPostgres(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := database.Migrate(cmd.Context(), db)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Fprintln(out, "Schema is up to date")
		return nil
	}
	for _, v := range applied {
		fmt.Fprintf(out, "Applied %s\n", v)
	}
	return nil
}
