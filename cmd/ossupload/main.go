package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tendant/oss-upload/pkg/ossupload/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		slog.Debug("no .env file loaded", "err", err)
	}

	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ossupload",
		Short: "Signed single-file uploads to an object storage bucket",
		Long: `ossupload fetches a short-lived credential from the backend, signs a POST policy
and uploads one file straight to the bucket.

Settings come from the environment (OSS_CREDENTIAL_URL, OSS_BEARER_TOKEN,
OSS_KEY_PREFIX, OSS_TRANSPORT, ...) and can be overridden with flags.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("credential-url", "", "credential endpoint (overrides OSS_CREDENTIAL_URL)")
	rootCmd.PersistentFlags().String("bearer-token", "", "bearer token for the credential endpoint")
	rootCmd.PersistentFlags().String("prefix", "", "object key prefix, e.g. test/")

	rootCmd.AddCommand(NewUploadCommand())
	rootCmd.AddCommand(NewPickCommand())
	rootCmd.AddCommand(NewTokenCommand())
	rootCmd.AddCommand(NewKeyCommand())
	rootCmd.AddCommand(NewSignCommand())

	return rootCmd
}

// loadConfig reads the environment and applies flag overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	opts := []config.Option{config.WithEnv()}

	if url, _ := cmd.Flags().GetString("credential-url"); url != "" {
		opts = append(opts, config.WithCredentialURL(url))
	}
	if token, _ := cmd.Flags().GetString("bearer-token"); token != "" {
		opts = append(opts, config.WithBearerToken(token))
	}
	if cmd.Flags().Changed("prefix") {
		prefix, _ := cmd.Flags().GetString("prefix")
		opts = append(opts, config.WithKeyPrefix(prefix))
	}

	cfg, err := config.Load(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	level := cfg.SlogLevel()
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}
