package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/noculars/config"
	"github.com/teranos/noculars/errors"
	"github.com/teranos/noculars/pipeline/registry"
)

// ConfigCmd manages the pipeline configuration file.
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage pipeline configuration",
	Long: `Manage the noculars.toml configuration file.

Examples:
  noculars config init       # Write a config file with the default agent chain
  noculars config show       # Show the effective configuration`,
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default configuration file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

func init() {
	ConfigCmd.AddCommand(configInitCmd)
	ConfigCmd.AddCommand(configShowCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := "noculars.toml"
	if len(args) == 1 {
		path = args[0]
	}
	if _, err := os.Stat(path); err == nil {
		return errors.Newf("%s already exists, not overwriting", path)
	}

	cfg, err := config.Default()
	if err != nil {
		return err
	}
	if err := config.Save(cfg, path); err != nil {
		return err
	}
	pterm.Success.Printf("Wrote default configuration to %s\n", path)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if jsonOutput(cmd) {
		out, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return errors.Wrap(err, "marshal config")
		}
		fmt.Println(string(out))
		return nil
	}

	pterm.DefaultSection.Println("Pipeline")
	fmt.Printf("Database:             %s\n", cfg.Database.Path)
	fmt.Printf("Python interpreter:   %s\n", cfg.Pipeline.PythonEnv)
	fmt.Printf("Max dependency age:   %s\n", cfg.Pipeline.MaxDependencyAge())
	if cfg.Pipeline.DeadlineSeconds > 0 {
		fmt.Printf("Overall deadline:     %s\n", cfg.Pipeline.Deadline())
	}
	fmt.Printf("Store write retries:  %d\n", cfg.Pipeline.StoreWriteRetries)

	pterm.DefaultSection.Println("Health thresholds")
	fmt.Printf("Window:               last %d attempts\n", cfg.Health.WindowRuns)
	fmt.Printf("Max error rate:       %.2f\n", cfg.Health.MaxErrorRate)
	fmt.Printf("Min success rate:     %.2f\n", cfg.Health.MinSuccessRate)

	pterm.DefaultSection.Println("Agents")
	rows := pterm.TableData{{"Agent", "Timeout", "Attempts", "Backoff", "Schedule", "Dependencies"}}
	for _, name := range orderedAgentNames(cfg) {
		ac := cfg.Agents[name]
		rows = append(rows, []string{
			name,
			fmt.Sprintf("%ds", ac.TimeoutSeconds),
			fmt.Sprintf("%d", ac.MaxRetries),
			fmt.Sprintf("%.0fs x%.1f", ac.BackoffBaseSeconds, ac.BackoffFactor),
			fmt.Sprintf("%ds", ac.ScheduleIntervalSeconds),
			fmt.Sprintf("%v", ac.Dependencies),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

// orderedAgentNames lists agents in registry declaration order. A config
// whose graph does not validate still prints, sorted by name.
func orderedAgentNames(cfg *config.Config) []string {
	if reg, err := registry.Load(cfg); err == nil {
		return reg.Names()
	}
	names := make([]string, 0, len(cfg.Agents))
	for name := range cfg.Agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
