package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/scribesync/internal/application"
	"github.com/jbctechsolutions/scribesync/internal/infrastructure/storage"
	"github.com/jbctechsolutions/scribesync/internal/presentation/cli/output"
)

// QueueStatus summarizes one queue for the status command.
type QueueStatus struct {
	Name      string     `json:"name"`
	Pending   int        `json:"pending"`
	Exhausted int        `json:"exhausted"`
	LastSync  *CycleView `json:"last_sync,omitempty"`
}

// CycleView is the CLI representation of a recorded sync cycle.
type CycleView struct {
	Queue      string    `json:"queue"`
	Outcome    string    `json:"outcome"`
	Total      int       `json:"total"`
	Completed  int       `json:"completed"`
	Failed     int       `json:"failed"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMs int64     `json:"duration_ms"`
}

// StatusOutput is the JSON output of the status command.
type StatusOutput struct {
	Connectivity string        `json:"connectivity"`
	Remote       string        `json:"remote"`
	Queues       []QueueStatus `json:"queues"`
	History      []CycleView   `json:"history,omitempty"`
}

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	var history int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show connectivity and queue depths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, func(c *application.Container) error {
				return runStatus(cmd, c, history)
			})
		},
	}

	cmd.Flags().IntVarP(&history, "history", "n", 0, "also show the last n sync cycles")

	return cmd
}

func runStatus(cmd *cobra.Command, c *application.Container, history int) error {
	formatter := GetFormatter()
	ctx := cmd.Context()

	out := StatusOutput{
		Connectivity: c.CheckConnectivity(ctx).String(),
		Remote:       c.Config().Remote.BaseURL,
	}

	for _, name := range c.QueueNames() {
		q, err := c.Queue(name)
		if err != nil {
			return err
		}
		pending, err := q.Count(ctx)
		if err != nil {
			return fmt.Errorf("failed to count %s: %w", name, err)
		}
		exhausted, err := q.ListExhausted(ctx, c.Config().Queues[name].MaxRetries)
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", name, err)
		}
		last, err := c.History().Recent(ctx, name, 1)
		if err != nil {
			return err
		}

		qs := QueueStatus{Name: name, Pending: pending, Exhausted: len(exhausted)}
		if len(last) > 0 {
			v := newCycleView(last[0])
			qs.LastSync = &v
		}
		out.Queues = append(out.Queues, qs)
	}

	if history > 0 {
		records, err := c.History().Recent(ctx, "", history)
		if err != nil {
			return err
		}
		for _, rec := range records {
			out.History = append(out.History, newCycleView(rec))
		}
	}

	if formatter.IsJSON() {
		return formatter.JSON(out)
	}

	_ = formatter.Header("Status")
	_ = formatter.Item("Network", out.Connectivity)
	_ = formatter.Item("Remote", out.Remote)
	_ = formatter.Println("")

	rows := make([][]string, 0, len(out.Queues))
	for _, qs := range out.Queues {
		last := "never"
		if qs.LastSync != nil {
			last = qs.LastSync.FinishedAt.Local().Format(time.DateTime) + " " + qs.LastSync.Outcome
		}
		rows = append(rows, []string{qs.Name, strconv.Itoa(qs.Pending), strconv.Itoa(qs.Exhausted), last})
	}
	if err := formatter.Table(output.TableData{
		Columns: []output.TableColumn{
			{Header: "QUEUE"},
			{Header: "PENDING", Align: output.AlignRight},
			{Header: "EXHAUSTED", Align: output.AlignRight},
			{Header: "LAST SYNC"},
		},
		Rows: rows,
	}); err != nil {
		return err
	}

	if len(out.History) == 0 {
		return nil
	}
	_ = formatter.Println("")
	rows = rows[:0]
	for _, v := range out.History {
		rows = append(rows, []string{
			v.FinishedAt.Local().Format(time.DateTime),
			v.Queue,
			v.Outcome,
			fmt.Sprintf("%d/%d", v.Completed, v.Total),
			v.Error,
		})
	}
	return formatter.Table(output.TableData{
		Columns: []output.TableColumn{
			{Header: "FINISHED"},
			{Header: "QUEUE"},
			{Header: "OUTCOME"},
			{Header: "UPLOADED", Align: output.AlignRight},
			{Header: "ERROR"},
		},
		Rows: rows,
	})
}

func newCycleView(rec storage.CycleRecord) CycleView {
	return CycleView{
		Queue:      rec.Queue,
		Outcome:    string(rec.Outcome),
		Total:      rec.Total,
		Completed:  rec.Completed,
		Failed:     rec.Failed,
		Error:      rec.Error,
		FinishedAt: rec.FinishedAt,
		DurationMs: rec.Duration().Milliseconds(),
	}
}
