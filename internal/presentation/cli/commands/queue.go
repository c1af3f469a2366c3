package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/scribesync/internal/application"
	"github.com/jbctechsolutions/scribesync/internal/domain/outbox"
	"github.com/jbctechsolutions/scribesync/internal/presentation/cli/output"
)

// NewQueueCmd creates the queue command and its subcommands.
func NewQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage queued items",
	}

	cmd.AddCommand(newQueueListCmd())
	cmd.AddCommand(newQueueRetryCmd())
	cmd.AddCommand(newQueueDropCmd())

	return cmd
}

func newQueueListCmd() *cobra.Command {
	var exhausted bool

	cmd := &cobra.Command{
		Use:   "list [queue]",
		Short: "List queued items",
		Long: `List items waiting in the outbox, across every queue or only the named one.
With --exhausted, only items that used up their automatic retries are shown.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, func(c *application.Container) error {
				names := c.QueueNames()
				if len(args) == 1 {
					names = args
				}
				return runQueueList(cmd, c, names, exhausted)
			})
		},
	}

	cmd.Flags().BoolVar(&exhausted, "exhausted", false, "show only items with no automatic retries left")

	return cmd
}

func runQueueList(cmd *cobra.Command, c *application.Container, names []string, exhausted bool) error {
	formatter := GetFormatter()
	ctx := cmd.Context()

	views := []itemView{}
	for _, name := range names {
		q, err := c.Queue(name)
		if err != nil {
			return err
		}

		var items []*outbox.Upload
		if exhausted {
			items, err = q.ListExhausted(ctx, c.Config().Queues[name].MaxRetries)
		} else {
			items, err = q.ListPending(ctx)
		}
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", name, err)
		}
		for _, u := range items {
			views = append(views, newItemView(u))
		}
	}

	if formatter.IsJSON() {
		return formatter.JSON(views)
	}

	if len(views) == 0 {
		return formatter.Info("No queued items")
	}

	rows := make([][]string, 0, len(views))
	for _, v := range views {
		rows = append(rows, []string{v.ID, v.Queue, v.File, strconv.Itoa(v.Retries), v.LastError})
	}
	return formatter.Table(output.TableData{
		Columns: []output.TableColumn{
			{Header: "ID"},
			{Header: "QUEUE"},
			{Header: "FILE"},
			{Header: "RETRIES", Align: output.AlignRight},
			{Header: "LAST ERROR"},
		},
		Rows: rows,
	})
}

func newQueueRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Reset an item's retry count so it is attempted again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, func(c *application.Container) error {
				q, u, err := c.FindItem(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if err := q.ResetRetries(cmd.Context(), u.ID); err != nil {
					return fmt.Errorf("failed to reset %s: %w", u.ID, err)
				}
				return reportItemAction(u, "retry")
			})
		},
	}
}

func newQueueDropCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drop <id>",
		Short: "Remove an item from its queue without uploading it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, func(c *application.Container) error {
				q, u, err := c.FindItem(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if err := q.RemoveItem(cmd.Context(), u.ID); err != nil {
					return fmt.Errorf("failed to drop %s: %w", u.ID, err)
				}
				return reportItemAction(u, "drop")
			})
		},
	}
}

func reportItemAction(u *outbox.Upload, action string) error {
	formatter := GetFormatter()
	if formatter.IsJSON() {
		return formatter.JSON(map[string]string{"id": u.ID, "queue": u.Kind, "action": action})
	}
	switch action {
	case "retry":
		return formatter.Success("%s will be retried on the next %s sync", u.ID, u.Kind)
	default:
		return formatter.Success("Dropped %s from %s", u.ID, u.Kind)
	}
}
