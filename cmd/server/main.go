/*
main.go - Application entry point

PURPOSE:
  Starts the leave engine HTTP server and runs schema migrations.
  Handles configuration, dependency injection, and graceful shutdown.

COMMANDS:
  server [serve]         Start the HTTP server (default)
  server migrate up      Apply pending schema migrations
  server migrate status  Report the schema version

STARTUP SEQUENCE (serve):
  1. Load config (defaults < config file < .env < LEAVE_* env < flags)
  2. Build zap logger
  3. Open the store (SQLite, migrated on open, or in-memory)
  4. Wire engine, handler and router
  5. Start server with graceful shutdown

FLAGS:
  --config  YAML config file
  --port    HTTP server port (overrides server.port)
  --db      SQLite database path (overrides db.path)
            Use ":memory:" for an in-memory SQLite database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests (server.shutdown_timeout)
  3. Close database connection

EXAMPLES:
  ./server --db ./data/leave.db
  LEAVE_DB_DRIVER=memory ./server --port 3000
  ./server migrate status --db ./data/leave.db

SEE ALSO:
  - config/config.go: Settings and defaults
  - api/server.go: Router configuration
  - store/sqlite/migrations: Embedded schema
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/leave/store"
	"github.com/warp/leave-engine/logging"
	"github.com/warp/leave-engine/store/sqlite"
	"github.com/warp/leave-engine/store/sqlite/migrations"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "server",
	Short:        "Leave request lifecycle and balance service",
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the SQLite schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		db, err := sqlite.OpenDB(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := migrations.MigrateUp(db); err != nil {
			return err
		}
		fmt.Printf("Database %s is up to date\n", cfg.Database.Path)
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report the schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		db, err := sqlite.OpenDB(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		st, err := migrations.ReadStatus(db)
		if err != nil {
			return err
		}
		fmt.Printf("Database: %s\n", cfg.Database.Path)
		fmt.Printf("Version:  %d (latest %d)\n", st.Version, st.Latest)
		if st.Dirty {
			fmt.Println("State:    dirty")
		}
		return migrations.CheckDBMigrationStatus(db)
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "YAML config file")
	rootCmd.PersistentFlags().String("db", "", "SQLite database path (overrides db.path)")
	rootCmd.Flags().Int("port", 0, "HTTP server port (overrides server.port)")
	serveCmd.Flags().Int("port", 0, "HTTP server port (overrides server.port)")

	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateStatusCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

// loadConfig reads the config file named by --config and applies flag
// overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if db, _ := cmd.Flags().GetString("db"); db != "" {
		cfg.Database.Path = db
	}
	if cmd.Flags().Lookup("port") != nil {
		if port, _ := cmd.Flags().GetInt("port"); port != 0 {
			cfg.Server.Port = port
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	txStore, closeStore, err := openStore(cfg.Database)
	if err != nil {
		logger.Error("failed to initialize store", zap.Error(err))
		return err
	}
	defer closeStore()

	engine := leave.New(txStore, leave.WithLogger(logger))
	handler := api.NewHandler(engine, logger)
	router := api.NewRouter(handler, cfg.Server, logger)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("db_driver", cfg.Database.Driver),
			zap.String("db_path", cfg.Database.Path),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err, ok := <-errCh:
		if ok {
			logger.Error("server failed", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server", zap.Duration("timeout", cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}

func openStore(cfg config.DatabaseConfig) (leave.TxStore, func() error, error) {
	switch cfg.Driver {
	case "memory":
		return store.NewTxMemory(), func() error { return nil }, nil
	default:
		s, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return s, s.Close, nil
	}
}
