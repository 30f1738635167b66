package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tendant/simple-image/pkg/simpleimage/config"
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
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "imagectl",
		Short: "Operator CLI for the simple-image service",
		Long: `imagectl runs image operations directly against the configured
blob and metadata stores, using the same environment as the server.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(NewUploadCommand())
	rootCmd.AddCommand(NewGetCommand())
	rootCmd.AddCommand(NewSearchCommand())
	rootCmd.AddCommand(NewDeleteCommand())
	rootCmd.AddCommand(NewDownloadCommand())
	rootCmd.AddCommand(NewAnnotateCommand())

	return rootCmd
}

// loadComponents builds the service from the config flag and the environment
func loadComponents(cmd *cobra.Command) (*config.ServerConfig, *config.Components, *slog.Logger, error) {
	_ = godotenv.Load()

	configFile, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")

	opt := config.WithEnv()
	if configFile != "" {
		opt = config.WithFile(configFile)
	}
	cfg, err := config.Load(opt)
	if err != nil {
		return nil, nil, nil, err
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	comp, err := cfg.BuildService(context.Background(), logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, comp, logger, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
