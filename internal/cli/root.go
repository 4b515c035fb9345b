// Package cli wires the splitclock commands.
package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/splitclock/splitclock/internal/config"
	"github.com/splitclock/splitclock/internal/store"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/splitclock/splitclock/internal/cli.version=1.2.3"
	version = "0.3.0"
	logo    = "\n" +
		"            _ _ _       _            _\n" +
		"  ___ _ __ | (_) |_ ___| | ___   ___| | __\n" +
		" / __| '_ \\| | | __/ __| |/ _ \\ / __| |/ /\n" +
		" \\__ \\ |_) | | | || (__| | (_) | (__|   <\n" +
		" |___/ .__/|_|_|\\__\\___|_|\\___/ \\___|_|\\_\\\n" +
		"     |_|\n"
)

var rootCmd = &cobra.Command{
	Use:   "splitclock",
	Short: "splitclock - time attribution across parallel work streams",
	Long: color.CyanString(logo) +
		"\nAttributes your time across concurrently active streams of work\nfrom an immutable activity event log.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("splitclock %s\n", version)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(recomputeCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(streamsCmd)
	rootCmd.AddCommand(syncCmd)
}

func printHeader(title string) {
	fmt.Println(color.CyanString(logo))
	if title != "" {
		fmt.Println(title)
		fmt.Println("─────────────────────")
	}
}

// loadConfigOnly loads config without touching the database.
func loadConfigOnly() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openStore loads config and opens the shared database.
func openStore() (config.Config, *store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return cfg, nil, fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.Open(cfg.Paths.DBPath)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, st, nil
}
