package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/noculars/errors"
)

// HealthCheckCmd computes a one-shot health snapshot.
var HealthCheckCmd = &cobra.Command{
	Use:   "health-check",
	Short: "Check pipeline health once",
	Long: `Compute a single health snapshot from recorded run state.

The exit code is zero only when the pipeline as a whole is healthy, so the
command can back an external liveness probe.

Examples:
  noculars health-check
  noculars health-check --json`,
	RunE: runHealthCheck,
}

func runHealthCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	conn, store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	monitor, err := buildMonitor(cfg, store)
	if err != nil {
		return err
	}
	snap, err := monitor.Check()
	if err != nil {
		return err
	}

	if jsonOutput(cmd) {
		out, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return errors.Wrap(err, "marshal snapshot")
		}
		fmt.Println(string(out))
	} else {
		fmt.Println(renderSnapshot(snap, time.Duration(0)))
	}

	if !snap.Healthy {
		return errors.Newf("pipeline unhealthy: %d of %d agents healthy", snap.HealthyAgents, snap.TotalAgents)
	}
	if !jsonOutput(cmd) {
		pterm.Success.Println("Pipeline healthy")
	}
	return nil
}
