package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tendant/simple-objectstore/pkg/objectstore"
	"github.com/tendant/simple-objectstore/pkg/objectstore/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func NewRootCommand() *cobra.Command {
	var configFile string
	var envFile string
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "objectstore",
		Short: "Object storage CLI - digital objects over blob stores",
		Long: `Object storage command line interface

Stores digital objects and their payloads in a configured blob store
(swift, filesystem, gridfs, s3, minio, azureblob, gcs, postgres or transient).

Configuration is read from the JSON file given with --config and from
OBJECTSTORE_* environment variables, optionally loaded from a .env file.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to load %s: %w", envFile, err)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "JSON config file (optional)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewObjectsCommand())
	rootCmd.AddCommand(NewPayloadsCommand())

	return rootCmd
}

// newLogger returns a text logger on stderr, at debug level when verbose
func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// loadConfig reads the config file, if any, then the environment
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")

	opts := []config.Option{}
	if configFile != "" {
		opts = append(opts, config.WithFile(configFile))
	} else {
		opts = append(opts, config.WithEnv())
	}
	return config.Load(opts...)
}

// openStorage builds and initialises the storage from flags and environment
func openStorage(ctx context.Context, cmd *cobra.Command, logger *slog.Logger) (*objectstore.Storage, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := cfg.BuildStorage(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialise storage: %w", err)
	}
	return store, nil
}
