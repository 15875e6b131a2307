package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kmun/registration-service/internal/auth"
	"github.com/kmun/registration-service/internal/config"
	"github.com/kmun/registration-service/internal/identifier"
	"github.com/kmun/registration-service/internal/observability"
	"github.com/kmun/registration-service/internal/persistence"
	"github.com/kmun/registration-service/internal/repository"
	"github.com/kmun/registration-service/internal/seed"
)

var (
	migrationsDir string
	seedPassword  string
	timeout       time.Duration

	rootCmd = &cobra.Command{
		Use:           "kmunctl",
		Short:         "Operate the KMUN registration database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply the SQL migrations in order",
		RunE:  runMigrate,
	}

	seedCmd = &cobra.Command{
		Use:   "seed",
		Short: "Create the default staff accounts and committees",
		RunE:  runSeed,
	}

	nextIDCmd = &cobra.Command{
		Use:   "next-id",
		Short: "Print the external id the allocator would issue next",
		RunE:  runNextID,
	}
)

func init() {
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", time.Minute, "overall deadline for the command")
	migrateCmd.Flags().StringVar(&migrationsDir, "dir", "", "migrations directory (defaults to POSTGRES_MIGRATIONS_DIR)")
	seedCmd.Flags().StringVar(&seedPassword, "password", seed.DefaultPassword, "password for newly created staff accounts")

	rootCmd.AddCommand(migrateCmd, seedCmd, nextIDCmd)
}

// env is what every subcommand needs: configuration, a logger and a pool.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	pg     *persistence.Postgres
}

func open(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		return nil, err
	}
	if cfg.Postgres.DSN == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &env{cfg: cfg, logger: logger, pg: pg}, nil
}

func (e *env) close() {
	e.pg.Close()
	_ = e.logger.Sync()
}

func (e *env) allocator(store repository.Store) *identifier.Allocator {
	return identifier.NewAllocator(identifier.Config{
		Prefix:      e.cfg.Registration.IDPrefix,
		Width:       e.cfg.Registration.IDWidth,
		MaxAttempts: e.cfg.Registration.MaxAllocationAttempts,
	}, store.Accounts())
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	e, err := open(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	dir := migrationsDir
	if dir == "" {
		dir = e.cfg.Postgres.MigrationsDir
	}
	return persistence.RunMigrations(ctx, e.pg.PoolHandle(), dir, e.logger)
}

func runSeed(cmd *cobra.Command, _ []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	e, err := open(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	store := repository.NewPostgresStore(e.pg.PoolHandle())
	seeder := seed.New(store, e.allocator(store), auth.NewBcryptHasher(e.cfg.Auth.BcryptCost), e.logger)
	result, err := seeder.Run(ctx, seedPassword)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "accounts created: %d (existing: %d)\ncommittees created: %d\n",
		result.AccountsCreated, result.AccountsExisting, result.CommitteesCreated)
	return nil
}

func runNextID(cmd *cobra.Command, _ []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	e, err := open(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	store := repository.NewPostgresStore(e.pg.PoolHandle())
	id, err := e.allocator(store).Allocate(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}
