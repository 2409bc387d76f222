// Package cli implements neomactl, the operator tool for migrations,
// housekeeping and price checks.
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/neoma/internal/server/config"
	"github.com/dmitrijs2005/neoma/internal/server/repositories/repomanager"
	"github.com/spf13/cobra"
)

// Env holds the collaborators commands use; tests swap them for fakes.
type Env struct {
	Out         io.Writer
	LoadConfig  func() *config.Config
	OpenDB      func(ctx context.Context, dsn string) (*sql.DB, error)
	RepoManager repomanager.RepositoryManager
	Now         func() time.Time
}

// DefaultEnv wires the production collaborators.
func DefaultEnv(out io.Writer) *Env {
	return &Env{
		Out:         out,
		LoadConfig:  config.LoadConfig,
		OpenDB:      repomanager.OpenDB,
		RepoManager: repomanager.NewPostgresRepositoryManager(),
		Now:         time.Now,
	}
}

type rootOptions struct {
	dsn string
}

func NewRootCmd(env *Env) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "neomactl",
		Short:         "Neoma operator tool",
		Long:          `Run database migrations, prune stale records and check catalog prices.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(env.Out)
	root.PersistentFlags().StringVar(&opts.dsn, "dsn", "", "PostgreSQL DSN (defaults to the server configuration)")

	root.AddCommand(
		newMigrateCmd(env, opts),
		newSignupsCmd(env, opts),
		newTokensCmd(env, opts),
		newQuoteCmd(env),
		newCatalogCmd(env),
	)
	return root
}

// withDB opens the configured database for the duration of fn.
func withDB(ctx context.Context, env *Env, opts *rootOptions, fn func(cfg *config.Config, db *sql.DB) error) error {
	cfg := env.LoadConfig()
	dsn := cfg.DatabaseDSN
	if opts.dsn != "" {
		dsn = opts.dsn
	}

	db, err := env.OpenDB(ctx, dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(cfg, db)
}

func newMigrateCmd(env *Env, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), env, opts, func(_ *config.Config, db *sql.DB) error {
				if err := env.RepoManager.RunMigrations(cmd.Context(), db); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}
}
