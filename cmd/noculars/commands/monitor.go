package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/noculars/config"
	"github.com/teranos/noculars/logger"
	"github.com/teranos/noculars/pipeline/health"
)

// MonitorCmd renders a live health dashboard, refreshed on an interval.
var MonitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch pipeline health continuously",
	Long: `Render a live dashboard of per-agent health, refreshed until
interrupted. Threshold changes in the configuration file are picked up
without restarting.

Examples:
  noculars monitor                 # Refresh every 5 seconds
  noculars monitor --interval 30   # Refresh every 30 seconds`,
	RunE: runMonitor,
}

var monitorIntervalFlag int

func init() {
	MonitorCmd.Flags().IntVar(&monitorIntervalFlag, "interval", 5, "Refresh interval in seconds")
}

func runMonitor(cmd *cobra.Command, args []string) error {
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

	// Rebuild the monitor when the config file changes so new thresholds
	// feed a fresh snapshot stream.
	reloads := make(chan *health.Monitor, 1)
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		watcher, werr := config.NewWatcher(path)
		if werr != nil {
			logger.Logger.Warnw("Config watch unavailable", "error", werr.Error())
		} else {
			watcher.OnReload(func(next *config.Config) error {
				rebuilt, berr := buildMonitor(next, store)
				if berr != nil {
					logger.Logger.Warnw("Ignoring invalid config reload", "error", berr.Error())
					return berr
				}
				// Only the newest reload matters.
				select {
				case <-reloads:
				default:
				}
				reloads <- rebuilt
				logger.Logger.Infow("Monitor thresholds reloaded", "path", path)
				return nil
			})
			watcher.Start()
			defer watcher.Stop()
		}
	}

	ctx := signalContext()
	interval := time.Duration(monitorIntervalFlag) * time.Second
	area, err := pterm.DefaultArea.WithFullscreen().Start()
	if err != nil {
		return err
	}
	defer func() { _ = area.Stop() }()

	for {
		watchCtx, stopWatch := context.WithCancel(ctx)
		snaps := monitor.Watch(watchCtx, interval)

	stream:
		for {
			select {
			case snap, ok := <-snaps:
				if !ok {
					stopWatch()
					return nil
				}
				area.Update(renderSnapshot(snap, interval))
			case next := <-reloads:
				monitor = next
				break stream
			case <-ctx.Done():
				stopWatch()
				return nil
			}
		}
		stopWatch()
	}
}

func renderSnapshot(snap *health.Snapshot, interval time.Duration) string {
	header := pterm.Green("HEALTHY")
	if !snap.Healthy {
		header = pterm.Red("UNHEALTHY")
	}
	refresh := ""
	if interval > 0 {
		refresh = fmt.Sprintf(", every %s", interval)
	}
	out := fmt.Sprintf("Pipeline %s  (%d/%d agents healthy)  as of %s%s\n\n",
		header, snap.HealthyAgents, snap.TotalAgents,
		snap.Timestamp.Format("15:04:05"), refresh)

	rows := pterm.TableData{{"Agent", "Health", "Running", "Last Status", "Last Success", "Success", "Errors", "Note"}}
	for _, a := range snap.Agents {
		healthLabel := pterm.Green("ok")
		if !a.Healthy {
			healthLabel = pterm.Red("bad")
		}
		runningLabel := ""
		if a.Running {
			runningLabel = pterm.Cyan("yes")
		}
		lastSuccess := "never"
		if a.LastSuccess != nil {
			lastSuccess = a.LastSuccess.Format("15:04:05")
		}
		rows = append(rows, []string{
			a.Name,
			healthLabel,
			runningLabel,
			a.LastStatus,
			lastSuccess,
			fmt.Sprintf("%.0f%%", a.SuccessRate*100),
			fmt.Sprintf("%.0f%%", a.ErrorRate*100),
			a.Reason,
		})
	}
	table, _ := pterm.DefaultTable.WithHasHeader().WithData(rows).Srender()
	out += table

	if snap.Memory != nil {
		out += fmt.Sprintf("\n\nMemory: %.1f%% used (%d / %d MB)",
			snap.Memory.UsedPercent,
			snap.Memory.UsedBytes/1024/1024,
			snap.Memory.TotalBytes/1024/1024)
	}
	return out
}
