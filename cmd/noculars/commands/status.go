package commands

import (
	"encoding/json"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/noculars/errors"
)

// StatusCmd shows the most recent pipeline run and its records.
var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the latest pipeline run",
	Long: `Show the latest pipeline run with per-agent attempts.

Examples:
  noculars status                       # Latest run
  noculars status --run-id <id>         # A specific run
  noculars status --json                # Machine-readable output`,
	RunE: runStatus,
}

var statusRunIDFlag string

func init() {
	StatusCmd.Flags().StringVar(&statusRunIDFlag, "run-id", "", "Show a specific run instead of the latest")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	conn, store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	var target string
	if statusRunIDFlag != "" {
		target = statusRunIDFlag
	} else {
		latest, err := store.LatestRun()
		if err != nil {
			return err
		}
		if latest == nil {
			if jsonOutput(cmd) {
				fmt.Println("null")
				return nil
			}
			pterm.Info.Println("No pipeline runs recorded yet")
			return nil
		}
		target = latest.ID
	}

	pipelineRun, err := store.GetRun(target)
	if err != nil {
		return err
	}
	records, err := store.LoadRun(target)
	if err != nil {
		return err
	}
	pipelineRun.Records = records

	if jsonOutput(cmd) {
		out, err := json.MarshalIndent(pipelineRun, "", "  ")
		if err != nil {
			return errors.Wrap(err, "marshal run")
		}
		fmt.Println(string(out))
		return nil
	}

	pterm.DefaultSection.Printf("Run %s", pipelineRun.ID)
	fmt.Printf("Status:   %s\n", pipelineRun.Status)
	fmt.Printf("Force:    %v\n", pipelineRun.Force)
	fmt.Printf("Started:  %s\n", pipelineRun.StartedAt.Format("2006-01-02 15:04:05 MST"))
	if pipelineRun.FinishedAt != nil {
		fmt.Printf("Finished: %s\n", pipelineRun.FinishedAt.Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Println()
	printRecords(pipelineRun)
	return nil
}
