package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/noculars/cmd/noculars/commands"
	"github.com/teranos/noculars/config"
	"github.com/teranos/noculars/logger"
)

var rootCmd = &cobra.Command{
	Use:   "noculars",
	Short: "Noculars - analysis pipeline orchestrator",
	Long: `Noculars runs a chain of analysis agents in dependency order with
per-attempt timeouts, bounded retries and durable run state.

Available commands:
  run-all      - Run the full agent chain
  run-agent    - Run a single agent
  resume       - Resume an interrupted run
  status       - Show the latest (or a specific) run
  monitor      - Watch pipeline health continuously
  health-check - Check pipeline health once
  config       - Manage configuration
  db           - Inspect the run state database

Examples:
  noculars run-all                          # Run the full chain
  noculars run-agent --agent ab_testing     # Run one agent
  noculars status --json                    # Latest run, machine-readable
  noculars monitor --interval 30            # Live health dashboard`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonFlag, _ := cmd.Flags().GetBool("json")
		configPath, _ := cmd.Flags().GetString("config")

		// version and config init must work without a readable config file
		if cmd.Name() == "version" || cmd.Name() == "init" {
			return logger.Initialize(jsonFlag)
		}

		var cfg *config.Config
		var err error
		if configPath != "" {
			cfg, err = config.LoadFromFile(configPath)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		if cfg.Logging.Path != "" {
			err = logger.InitializeWithFile(jsonFlag || cfg.Logging.JSON, cfg.Logging.Path)
		} else {
			err = logger.Initialize(jsonFlag || cfg.Logging.JSON)
		}
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to the configuration file")
	rootCmd.PersistentFlags().Bool("json", false, "Machine-readable output")

	rootCmd.AddCommand(commands.RunAllCmd)
	rootCmd.AddCommand(commands.RunAgentCmd)
	rootCmd.AddCommand(commands.ResumeCmd)
	rootCmd.AddCommand(commands.StatusCmd)
	rootCmd.AddCommand(commands.MonitorCmd)
	rootCmd.AddCommand(commands.HealthCheckCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
