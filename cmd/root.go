package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fjmorton/trackforge/internal"
	"github.com/fjmorton/trackforge/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var log = logger.Get("CLI")

var (
	configPath string
	verbose    bool

	rootCmd = &cobra.Command{
		Use:   "trackforge",
		Short: "trackforge turns media URLs into loudness-normalized MP3 downloads",
		Long: `trackforge resolves a media URL with yt-dlp, extracts each track to MP3,
applies mp3gain loudness normalization, and packages the output as a single
file or a zip archive. The default command runs the HTTP server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return internal.New(config).Run(ctx)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file (defaults to env-only configuration)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

// loadConfig builds the effective configuration: a .env file (if present) is
// loaded into the environment first, then either the YAML file given via
// --config or the environment alone populates the config struct.
func loadConfig() (internal.TrackforgeConfig, error) {
	if err := godotenv.Load(); err == nil {
		log.Emit(logger.DEBUG, "Loaded environment overrides from .env file\n")
	}

	if verbose {
		logger.SetMinLoggingLevel(logger.VERBOSE.Level())
	}

	config := internal.TrackforgeConfig{}
	if configPath != "" {
		if err := config.LoadFromFile(configPath); err != nil {
			return config, fmt.Errorf("failed to load config file '%s': %w", configPath, err)
		}
	} else if err := config.LoadFromEnv(); err != nil {
		return config, fmt.Errorf("failed to load config from environment: %w", err)
	}

	return config, nil
}

// Execute runs the root command, exiting the process on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
