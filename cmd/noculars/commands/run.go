package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/noculars/errors"
	"github.com/teranos/noculars/pipeline/state"
)

// RunAllCmd executes the full agent chain in dependency order.
var RunAllCmd = &cobra.Command{
	Use:     "run-all",
	Aliases: []string{"run"},
	Short:   "Run the full analysis pipeline",
	Long: `Run every registered agent in dependency order.

Agents whose dependencies failed are skipped. Each agent gets its configured
per-attempt timeout and retry budget. The exit code is zero only when every
agent succeeded.

Examples:
  noculars run-all               # Run the full chain
  noculars run-all --force       # Ignore dependency gating
  noculars run-all --json        # Machine-readable run summary`,
	RunE: runAll,
}

// ResumeCmd continues a run interrupted by a crash or cancellation.
var ResumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Resume an interrupted pipeline run",
	Long: `Resume a pipeline run that did not reach a terminal status.

Attempts left running by the interrupted process are closed as failed and
count toward each agent's attempt cap. Agents that already succeeded are
not re-run.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

var forceFlag bool

func init() {
	RunAllCmd.Flags().BoolVar(&forceFlag, "force", false, "Bypass dependency gating (retry and timeout policy still apply)")
}

func runAll(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	conn, store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	eng, _, err := buildEngine(cfg, store)
	if err != nil {
		return err
	}

	run, err := eng.RunAll(signalContext(), forceFlag)
	if err != nil {
		return err
	}
	return reportRun(cmd, run)
}

func runResume(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	conn, store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	eng, _, err := buildEngine(cfg, store)
	if err != nil {
		return err
	}

	run, err := eng.Resume(signalContext(), args[0])
	if err != nil {
		return err
	}
	return reportRun(cmd, run)
}

// reportRun prints the finished run and maps its aggregate status to the
// process exit code: anything but a fully succeeded run is an error.
func reportRun(cmd *cobra.Command, run *state.PipelineRun) error {
	if jsonOutput(cmd) {
		out, err := json.MarshalIndent(run, "", "  ")
		if err != nil {
			return errors.Wrap(err, "marshal run")
		}
		fmt.Println(string(out))
	} else {
		printRun(run)
	}

	if run.Status != state.RunStatusSucceeded {
		return errors.Newf("pipeline run %s finished %s", run.ID, run.Status)
	}
	return nil
}

func printRun(run *state.PipelineRun) {
	switch run.Status {
	case state.RunStatusSucceeded:
		pterm.Success.Printf("Run %s succeeded\n", run.ID)
	case state.RunStatusPartiallyFailed:
		pterm.Warning.Printf("Run %s partially failed\n", run.ID)
	default:
		pterm.Error.Printf("Run %s failed\n", run.ID)
	}
	printRecords(run)
}

func printRecords(run *state.PipelineRun) {
	rows := pterm.TableData{{"Agent", "Attempt", "Status", "Duration", "Error"}}
	for _, rec := range run.Records {
		duration := ""
		if rec.DurationMs != nil {
			duration = fmt.Sprintf("%dms", *rec.DurationMs)
		}
		rows = append(rows, []string{
			rec.AgentName,
			fmt.Sprintf("%d", rec.Attempt),
			statusLabel(rec.Status),
			duration,
			rec.ErrorMessage,
		})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func statusLabel(s state.Status) string {
	switch s {
	case state.StatusSucceeded:
		return pterm.Green(string(s))
	case state.StatusFailed, state.StatusTimedOut:
		return pterm.Red(string(s))
	case state.StatusSkipped:
		return pterm.Yellow(string(s))
	default:
		return string(s)
	}
}

// signalContext returns a context canceled on SIGINT or SIGTERM so an
// interrupted run still persists its partial state before exiting.
func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		pterm.Warning.Println("Interrupt received, finishing current bookkeeping")
		cancel()
	}()
	return ctx
}
