package commands

import (
	"database/sql"

	"github.com/spf13/cobra"

	"github.com/teranos/noculars/config"
	"github.com/teranos/noculars/db"
	"github.com/teranos/noculars/errors"
	"github.com/teranos/noculars/logger"
	"github.com/teranos/noculars/pipeline/engine"
	"github.com/teranos/noculars/pipeline/health"
	"github.com/teranos/noculars/pipeline/registry"
	"github.com/teranos/noculars/pipeline/state"
)

// loadConfig loads configuration, honoring the persistent --config flag.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// jsonOutput reports whether the persistent --json flag is set.
func jsonOutput(cmd *cobra.Command) bool {
	j, _ := cmd.Flags().GetBool("json")
	return j
}

// openStore opens and migrates the run state database and wraps it in a
// store. Callers own closing the returned connection.
func openStore(cfg *config.Config) (*sql.DB, *state.Store, error) {
	conn, err := db.Open(cfg.Database.Path, logger.Logger)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open run state database")
	}
	if err := db.Migrate(conn, logger.Logger); err != nil {
		conn.Close()
		return nil, nil, errors.Wrap(err, "migrate run state database")
	}
	return conn, state.NewStore(conn), nil
}

// buildEngine wires the registry, store, resolver and process invoker into
// an execution engine.
func buildEngine(cfg *config.Config, store *state.Store) (*engine.Engine, *registry.Registry, error) {
	reg, err := registry.Load(cfg)
	if err != nil {
		return nil, nil, err
	}
	invoker := engine.NewProcessInvoker(cfg.Pipeline.PythonEnv, "", logger.Logger)
	return engine.New(reg, store, invoker, &cfg.Pipeline, logger.Logger), reg, nil
}

// buildMonitor wires a read-only health monitor.
func buildMonitor(cfg *config.Config, store *state.Store) (*health.Monitor, error) {
	reg, err := registry.Load(cfg)
	if err != nil {
		return nil, err
	}
	return health.NewMonitor(reg, store, cfg.Health, logger.Logger), nil
}
