package cli

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/neoma/internal/server/config"
	"github.com/spf13/cobra"
)

func newSignupsCmd(env *Env, opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signups",
		Short: "Pending signup housekeeping",
	}

	var olderThan time.Duration
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete pending signups whose checkout was never paid",
		Long: `Pending signups hold sealed credentials for buyers whose account is created
only once payment settles. Rows older than the cutoff belong to abandoned
checkouts and are safe to drop.`,
		Example: `  neomactl signups prune --older-than 72h`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), env, opts, func(cfg *config.Config, db *sql.DB) error {
				age := olderThan
				if age == 0 {
					age = cfg.PendingSignupTTL
				}
				if age <= 0 {
					return fmt.Errorf("--older-than must be positive")
				}

				n, err := env.RepoManager.PendingSignups(db).DeleteOlderThan(cmd.Context(), env.Now().Add(-age))
				if err != nil {
					return fmt.Errorf("prune signups: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d pending signups older than %s\n", n, age)
				return nil
			})
		},
	}
	prune.Flags().DurationVar(&olderThan, "older-than", 0, "minimum age of rows to delete (default: configured pending signup TTL)")

	cmd.AddCommand(prune)
	return cmd
}

func newTokensCmd(env *Env, opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Refresh token housekeeping",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: "Delete expired refresh tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), env, opts, func(_ *config.Config, db *sql.DB) error {
				n, err := env.RepoManager.RefreshTokens(db).DeleteExpired(cmd.Context(), env.Now())
				if err != nil {
					return fmt.Errorf("prune tokens: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired refresh tokens\n", n)
				return nil
			})
		},
	})
	return cmd
}
