package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/conorfennell/flashstudy/internal/config"
	"github.com/conorfennell/flashstudy/internal/storage"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "flashstudy",
		Short:         "flashstudy - spaced repetition study sessions over markdown decks",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(addSourceCmd())
	rootCmd.AddCommand(dueCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the configuration, installs the logger and opens the database.
func setup(cmd *cobra.Command) (*config.Config, *storage.DB, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(cfg.Log.NewLogger())

	db, err := storage.Open(cfg.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	slog.Debug("Database opened", "path", cfg.DB)
	return cfg, db, nil
}
