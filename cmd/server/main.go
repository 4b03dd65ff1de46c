/*
main.go - Application entry point

PURPOSE:
  Command-line entry for the leave engine: runs the HTTP server, applies
  database migrations and manages the intern roster.

COMMANDS:
  serve            Start the webhook + chat API server
  migrate          Apply (or --rollback) Postgres migrations
  intern create    Register an intern with entitlements
  intern show      Print an intern and their balances
  intern delete    Remove an intern and all their applications

STARTUP SEQUENCE (serve):
  1. Load configuration (file + LEAVE_* environment)
  2. Build the zap logger
  3. Open the store selected by database.driver
  4. Wire notifier, scheduler and engine
  5. Re-arm timers for applications still Pending
  6. Start the HTTP server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (http.shutdown_timeout)
  3. Disarm timers and wait for in-flight auto-approvals
  4. Close the store

EXAMPLES:
  leave-engine serve --config ./leave.yaml
  LEAVE_DATABASE_DRIVER=memory leave-engine serve
  leave-engine intern create --handle @alice --name "Alice Tan" \
      --supervisor-email boss@example.com --start 2025-01-06 --end 2025-06-27 \
      --annual 10 --medical 5

SEE ALSO:
  - config/config.go: Configuration keys and defaults
  - api/server.go: Router configuration
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/logging"
	"go.uber.org/zap"
)

// app carries what every command needs after PersistentPreRunE.
type app struct {
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "leave-engine",
		Short:         "Intern leave management",
		Long:          `Leave applications, supervisor decisions, auto-approval and balances for interns.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			a.cfg, a.logger = cfg, logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to a YAML config file")

	root.AddCommand(newServeCmd(a))
	root.AddCommand(newMigrateCmd(a))
	root.AddCommand(newInternCmd(a))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
