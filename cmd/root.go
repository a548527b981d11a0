package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/aide/internal/config"
)

const version = "0.1.0"

var (
	flagConfig  string
	flagVerbose bool
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aide",
		Short: "aide — personal assistant agent",
		Long: `aide runs a tool-using assistant agent from your terminal.

Examples:
  aide chat                        # Interactive REPL
  aide chat -m "weather in Paris?" # One-shot message
  aide tools                       # List available tools
  aide doctor                      # Check environment health`,
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if flagVerbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default ~/.aide/config.json5)")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(chatCmd())
	cmd.AddCommand(agentsCmd())
	cmd.AddCommand(toolsCmd())
	cmd.AddCommand(configCmd())
	cmd.AddCommand(doctorCmd())
	return cmd
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveConfigPath() string {
	if flagConfig != "" {
		return config.ExpandHome(flagConfig)
	}
	if env := os.Getenv("AIDE_CONFIG"); env != "" {
		return config.ExpandHome(env)
	}
	return config.DefaultPath()
}

func loadConfig() *config.Config {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
