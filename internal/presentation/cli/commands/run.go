package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/scribesync/internal/application"
	"github.com/jbctechsolutions/scribesync/internal/domain/outbox"
)

// historyRetention is how long finished cycles are kept in the history table.
const historyRetention = 30 * 24 * time.Hour

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sync in the background until interrupted",
		Long: `Run the coordinator: sync every queue on an interval and whenever the
network comes back, and watch the spool directory if it is enabled.
Stops cleanly on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval > 0 {
				GetAppContext().Config.Coordinator.Interval = interval
			}
			return withContainer(cmd, func(c *application.Container) error {
				return runDaemon(cmd, c)
			})
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "sync interval (overrides coordinator.interval)")

	return cmd
}

func runDaemon(cmd *cobra.Command, c *application.Container) error {
	formatter := GetFormatter()
	ctx := cmd.Context()

	unsubscribe := c.Oracle().Subscribe(func(status outbox.ConnectionStatus) {
		if !formatter.IsJSON() {
			_ = formatter.Info("Network is %s", status)
		}
	})
	defer unsubscribe()

	if err := c.Start(ctx); err != nil {
		return err
	}

	if n, err := c.History().Prune(ctx, time.Now().Add(-historyRetention)); err != nil {
		c.Logger().Warn("could not prune sync history", "error", err)
	} else if n > 0 {
		c.Logger().Debug("pruned sync history", "records", n)
	}

	if !formatter.IsJSON() {
		_ = formatter.Success("Syncing %d queue(s) every %s (Ctrl+C to stop)",
			len(c.QueueNames()), c.Config().Coordinator.Interval)
		if c.Spool() != nil {
			_ = formatter.Item("Spool", c.Config().Spool.Directory)
		}
	}

	<-ctx.Done()

	c.Stop()
	if !formatter.IsJSON() {
		_ = formatter.Info("Stopped")
	}
	return nil
}
