package commands

import (
	"github.com/spf13/cobra"
)

// RunAgentCmd executes a single agent within a fresh run.
var RunAgentCmd = &cobra.Command{
	Use:   "run-agent",
	Short: "Run a single pipeline agent",
	Long: `Run one agent by name.

Dependency gating still applies: the agent's dependencies must have
succeeded recently enough in an earlier run, unless --force is set.

Examples:
  noculars run-agent --agent pattern_recognition
  noculars run-agent --agent insights_engine --force`,
	RunE: runAgent,
}

var (
	agentNameFlag  string
	agentForceFlag bool
)

func init() {
	RunAgentCmd.Flags().StringVar(&agentNameFlag, "agent", "", "Name of the agent to run (required)")
	RunAgentCmd.Flags().BoolVar(&agentForceFlag, "force", false, "Bypass dependency gating (retry and timeout policy still apply)")
	_ = RunAgentCmd.MarkFlagRequired("agent")
}

func runAgent(cmd *cobra.Command, args []string) error {
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

	run, err := eng.RunAgent(signalContext(), agentNameFlag, agentForceFlag)
	if err != nil {
		return err
	}
	return reportRun(cmd, run)
}
