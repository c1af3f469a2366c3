package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/scribesync/internal/application"
	"github.com/jbctechsolutions/scribesync/internal/domain/outbox"
	"github.com/jbctechsolutions/scribesync/internal/presentation/cli/output"
)

// SyncResult is the outcome of one queue's cycle.
type SyncResult struct {
	Queue     string `json:"queue"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
}

// SyncOutput is the JSON output of the sync command.
type SyncOutput struct {
	Connectivity string       `json:"connectivity"`
	Results      []SyncResult `json:"results"`
}

// NewSyncCmd creates the sync command.
func NewSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync [queue...]",
		Short: "Run one sync cycle now",
		Long: `Check connectivity, then run one sync cycle for each named queue (or all
queues) in turn. Queues whose minimum connection quality is not met are
skipped. Items that fail stay queued for the next cycle.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, func(c *application.Container) error {
				names := args
				if len(names) == 0 {
					names = c.QueueNames()
				}
				return runSync(cmd, c, names)
			})
		},
	}
}

func runSync(cmd *cobra.Command, c *application.Container, names []string) error {
	formatter := GetFormatter()
	ctx := cmd.Context()

	engines := make([]*application.UploadEngine, 0, len(names))
	for _, name := range names {
		engine, err := c.Engine(name)
		if err != nil {
			return err
		}
		engines = append(engines, engine)
	}

	status := c.CheckConnectivity(ctx)
	out := SyncOutput{Connectivity: status.String()}
	if !formatter.IsJSON() && status == outbox.StatusOffline {
		_ = formatter.Warning("Offline; nothing will be uploaded")
	}

	failures := 0
	for _, engine := range engines {
		var p outbox.Progress
		var err error
		if formatter.IsJSON() {
			p, err = engine.Sync(ctx)
		} else {
			bar := output.NewProgressBar(formatter.Writer(), engine.Name(), output.ColorSupported(formatter.Writer()))
			unsubscribe := engine.Subscribe(bar.Listen)
			p, err = engine.Sync(ctx)
			unsubscribe()
			bar.Finish()
		}

		result := SyncResult{Queue: engine.Name(), Total: p.Total, Completed: p.Completed, Failed: p.Failed}
		if err != nil {
			result.Error = err.Error()
			failures++
		}
		out.Results = append(out.Results, result)

		if ctx.Err() != nil {
			break
		}
	}

	if formatter.IsJSON() {
		if err := formatter.JSON(out); err != nil {
			return err
		}
	} else {
		printSyncResults(formatter, out.Results)
	}

	if failures > 0 {
		return fmt.Errorf("%d queue(s) stopped early", failures)
	}
	return nil
}

func printSyncResults(formatter *output.Formatter, results []SyncResult) {
	for _, r := range results {
		switch {
		case r.Error != "":
			_ = formatter.Error("%s: %s (%d/%d uploaded)", r.Queue, r.Error, r.Completed, r.Total)
		case r.Total == 0:
			_ = formatter.Info("%s: nothing to upload", r.Queue)
		case r.Failed > 0:
			_ = formatter.Warning("%s: %d/%d uploaded, %d failed (retries exhausted; see queue list --exhausted)", r.Queue, r.Completed, r.Total, r.Failed)
		default:
			_ = formatter.Success("%s: %d/%d uploaded", r.Queue, r.Completed, r.Total)
		}
	}
}
