package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/smartlibrary/library/internal/config"
	"github.com/smartlibrary/library/internal/db"
	"github.com/smartlibrary/library/internal/repo"
	"github.com/smartlibrary/library/pkg/logger"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "libraryd",
		Short:         "Smart Library circulation service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "optional config file (yaml, json or env)")

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newSweepCmd(),
		newCreateUserCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// env is what every command needs: configuration, a logger and a migrated
// database.
type env struct {
	cfg      *config.Config
	log      *zap.Logger
	database *db.DB
	store    *repo.Store
}

func setup() (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log := logger.NewLogger(cfg.ServiceName, cfg.LogLevel)

	log.Info("Connecting to database...", zap.String("driver", cfg.DBDriver))
	database, err := db.Connect(cfg.DBDriver, cfg.DSN(), log)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	log.Info("Running database migrations...")
	if err := db.RunMigrations(database); err != nil {
		database.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &env{
		cfg:      cfg,
		log:      log,
		database: database,
		store:    repo.NewStore(database, log),
	}, nil
}

func (e *env) close() {
	if err := e.database.Close(); err != nil {
		e.log.Error("Failed to close database", zap.Error(err))
	}
	_ = e.log.Sync()
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			e.log.Info("Migrations complete")
			return nil
		},
	}
}
