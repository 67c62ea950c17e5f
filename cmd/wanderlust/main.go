package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fabienpiette/wanderlust/internal/config"
	"github.com/fabienpiette/wanderlust/internal/database"
	"github.com/fabienpiette/wanderlust/internal/redis"
	"github.com/fabienpiette/wanderlust/internal/server"
	"github.com/fabienpiette/wanderlust/internal/services"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "wanderlust",
		Short: "Wanderlust travel listings API",
		Long: `Wanderlust serves travel listings, reviews and search behind an
in-process performance layer with query and search caching.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("wanderlust v%s (%s)\n", version, commit)
		},
	})

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE:  runServe,
	}
	serveCmd.Flags().Int("port", 0, "HTTP port (overrides configuration)")
	rootCmd.AddCommand(serveCmd)

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration operations",
	}
	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE:  runMigrateUp,
	})
	migrateCmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE:  runMigrateDown,
	})
	migrateCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the current schema version",
		RunE:  runMigrateVersion,
	})
	rootCmd.AddCommand(migrateCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Server.Port = port
	}

	logger := setupLogging(cfg.Log)
	logger.WithField("version", version).Info("Starting Wanderlust server...")

	db, err := database.Initialize(databaseConfig(cfg), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.Initialize(ctx, cfg.Redis, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize redis: %w", err)
		}
		defer redisClient.Close()
	}

	container := services.NewContainer(db, redisClient, cfg, logger)
	httpServer := server.NewHTTPServer(cfg, container)

	logger.Info("Starting background services...")
	if err := container.Start(ctx); err != nil {
		return err
	}
	defer container.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down Wanderlust server...")
	if err := httpServer.Shutdown(); err != nil {
		logger.WithError(err).Error("Error during HTTP server shutdown")
	}

	return nil
}

func openForMigration() (*database.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := setupLogging(cfg.Log)

	dbCfg := databaseConfig(cfg)
	dbCfg.AutoMigrate = false
	db, err := database.Initialize(dbCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	db, err := openForMigration()
	if err != nil {
		return err
	}
	defer db.Close()

	v, err := db.Migrate()
	if err != nil {
		return err
	}
	fmt.Printf("schema at version %d\n", v)
	return nil
}

func runMigrateDown(cmd *cobra.Command, args []string) error {
	db, err := openForMigration()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Rollback(); err != nil {
		return err
	}
	return printVersion(db)
}

func runMigrateVersion(cmd *cobra.Command, args []string) error {
	db, err := openForMigration()
	if err != nil {
		return err
	}
	defer db.Close()

	return printVersion(db)
}

func printVersion(db *database.DB) error {
	v, dirty, err := db.Version()
	if err != nil {
		return err
	}
	if dirty {
		fmt.Printf("schema at version %d (dirty)\n", v)
		return nil
	}
	fmt.Printf("schema at version %d\n", v)
	return nil
}

func databaseConfig(cfg *config.Config) database.Config {
	return database.Config{
		Path:         cfg.Database.Path,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		AutoMigrate:  cfg.Database.AutoMigrate,
	}
}

func setupLogging(cfg config.LogConfig) *logrus.Logger {
	logger := logrus.New()

	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}
