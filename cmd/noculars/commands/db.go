package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/noculars/errors"
)

// DbCmd groups run state database operations.
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the run state database",
	Long: `Inspect the SQLite run state database.

Examples:
  noculars db stats          # Run and record counts by status`,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show run state statistics",
	RunE:  runDbStats,
}

func init() {
	DbCmd.AddCommand(dbStatsCmd)
}

func runDbStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	conn, _, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	var totalRuns, totalRecords int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM pipeline_runs`).Scan(&totalRuns); err != nil {
		return errors.Wrap(err, "count runs")
	}
	if err := conn.QueryRow(`SELECT COUNT(*) FROM run_records`).Scan(&totalRecords); err != nil {
		return errors.Wrap(err, "count records")
	}

	pterm.DefaultSection.Println("Run state database")
	fmt.Printf("Path:          %s\n", cfg.Database.Path)
	fmt.Printf("Pipeline runs: %d\n", totalRuns)
	fmt.Printf("Run records:   %d\n", totalRecords)
	fmt.Println()

	rows, err := conn.Query(`
		SELECT status, COUNT(*) FROM run_records GROUP BY status ORDER BY COUNT(*) DESC`)
	if err != nil {
		return errors.Wrap(err, "count records by status")
	}
	defer rows.Close()

	table := pterm.TableData{{"Record Status", "Count"}}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return errors.Wrap(err, "scan status count")
		}
		table = append(table, []string{status, fmt.Sprintf("%d", count)})
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "iterate status counts")
	}
	return pterm.DefaultTable.WithHasHeader().WithData(table).Render()
}
