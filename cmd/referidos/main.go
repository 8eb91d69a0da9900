// Command referidos serves the member referral dashboard in front of a
// Directus collection.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dukerupert/referidos/internal/config"
	"github.com/dukerupert/referidos/internal/logging"
)

const (
	Version = "0.3.0"
	appName = "referidos"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	logLevel   string
}

// load reads the configuration and builds the logger. An explicit
// --log-level wins over the file; dev.debug forces debug.
func (g *globalFlags) load(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(g.configPath, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	level := cfg.Server.LogLevel
	if cmd.Flags().Changed("log-level") {
		level = g.logLevel
	}
	if cfg.Dev.Debug {
		level = "debug"
	}
	return cfg, logging.Setup(level), nil
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Member referral dashboard",
		Long: `Referidos tracks the members ("socios") each founder sponsors.

It logs operators into the Directus collection API, shows per-founder
progress against the member cap and lets operators add, edit and complete
members from the browser.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, g, "")
		},
	}

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(serveCmd(g), pingCmd(g), verifyCmd(g), secretCmd(), configCmd(g))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	})

	return cmd
}
