package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/importer/internal/config"
	"github.com/JonMunkholm/importer/internal/logging"
)

type rootOptions struct {
	EnvFile  string
	Driver   string
	DSN      string
	LogLevel string
	JSON     bool
}

func newRootCmd() *cobra.Command {
	var opts rootOptions

	cmd := &cobra.Command{
		Use:           "importer",
		Short:         "Analyze and import student, book and equipment spreadsheets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.EnvFile, "env-file", ".env", "environment file to load if present")
	flags.StringVar(&opts.Driver, "driver", "", "storage driver: postgres, sqlite or memory (default from DB_DRIVER)")
	flags.StringVar(&opts.DSN, "dsn", "", "storage connection string (default from DATABASE_URL)")
	flags.StringVar(&opts.LogLevel, "log-level", "", "log level: debug, info, warn, error (default from LOG_LEVEL)")
	flags.BoolVar(&opts.JSON, "json", false, "print results as JSON")

	cmd.AddCommand(newAnalyzeCmd(&opts))
	cmd.AddCommand(newImportCmd(&opts))
	cmd.AddCommand(newRollbackCmd(&opts))
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// loadConfig reads the environment, applies the command line overrides and
// validates the result. Commands that never persist run on the memory
// driver so they work without a database. Logs go to stderr.
func (o *rootOptions) loadConfig(cmd *cobra.Command, persist bool) (*config.Config, error) {
	if o.EnvFile != "" {
		if err := godotenv.Load(o.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", o.EnvFile, err)
		}
	}

	cfg, err := config.Parse()
	if err != nil {
		return nil, err
	}
	if o.Driver != "" {
		cfg.Database.Driver = o.Driver
	}
	if o.DSN != "" {
		cfg.Database.DSN = o.DSN
	}
	if !persist {
		cfg.Database.Driver = "memory"
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
	// The CLI serves no HTTP routes.
	cfg.Security.RequireAPIKey = false
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.SetDefault(logging.New(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format))
	return cfg, nil
}
