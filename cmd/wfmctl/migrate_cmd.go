package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/bod9dzys/BasicWFMbb/pkg/database"
	"github.com/bod9dzys/BasicWFMbb/pkg/jwt"
)

func newMigrateCmd(g *globalOptions) *cobra.Command {
	var statusOnly bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(g)
			if err != nil {
				return err
			}
			defer e.Close()

			sqlDB, err := e.db.DB()
			if err != nil {
				return err
			}
			if !statusOnly {
				return database.RunMigrations(sqlDB, e.logger)
			}

			state, err := database.MigrationStatus(sqlDB)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d of %d", state.Current, state.Latest)
			switch {
			case state.Dirty:
				fmt.Fprintln(cmd.OutOrStdout(), " (dirty)")
			case state.Pending():
				fmt.Fprintln(cmd.OutOrStdout(), " (pending)")
			default:
				fmt.Fprintln(cmd.OutOrStdout())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&statusOnly, "status", false, "print the schema version and exit without migrating")
	return cmd
}

func newTokenCmd(g *globalOptions) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <identity-id> <username>",
		Short: "Issue an access token for an identity (operators and integration tests)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid identity id %q", args[0])
			}
			cfg, err := loadConfigOnly(g)
			if err != nil {
				return err
			}
			if ttl > 0 {
				cfg.Auth.AccessTokenTTL = ttl
			}
			token, err := jwt.NewManager(&cfg.Auth).GenerateAccessToken(id, args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default auth.access_token_ttl)")
	return cmd
}
