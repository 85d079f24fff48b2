// Package cmd implements the skillbase CLI.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/skillbase/internal/config"
)

var configPath string

// Execute runs the root command.
func Execute() {
	root := &cobra.Command{
		Use:   "skillbase",
		Short: "Knowledge-base chat assistant with staged skill retrieval",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.skillbase/config.json5)")

	root.AddCommand(serveCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(skillsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resolveConfigPath returns the --config flag value or the default location.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.json5"
	}
	return filepath.Join(home, ".skillbase", "config.json5")
}

func loadConfig() *config.Config {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// setupLogging configures slog from the config's log level.
func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
