package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/scribesync/internal/application"
	"github.com/jbctechsolutions/scribesync/internal/domain/outbox"
	"github.com/jbctechsolutions/scribesync/internal/infrastructure/spool"
)

// NewEnqueueCmd creates the enqueue command.
func NewEnqueueCmd() *cobra.Command {
	var metadata map[string]string

	cmd := &cobra.Command{
		Use:   "enqueue <queue> <file>...",
		Short: "Queue files for upload",
		Long: `Add files to a queue's outbox. The files are uploaded from where they are,
so they must stay in place until delivered.`,
		Example: `  scribesync enqueue recordings ~/Recordings/standup.webm
  scribesync enqueue documents report.pdf --meta project=atlas`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, func(c *application.Container) error {
				return runEnqueue(cmd, c, args[0], args[1:], metadata)
			})
		},
	}

	cmd.Flags().StringToStringVar(&metadata, "meta", nil, "metadata sent with each upload (key=value)")

	return cmd
}

func runEnqueue(cmd *cobra.Command, c *application.Container, queue string, files []string, metadata map[string]string) error {
	formatter := GetFormatter()

	q, err := c.Queue(queue)
	if err != nil {
		return err
	}

	views := make([]itemView, 0, len(files))
	for _, path := range files {
		u, err := spool.NewUploadFromFile(queue, path)
		if err != nil {
			return fmt.Errorf("cannot queue %s: %w", path, err)
		}
		for k, v := range metadata {
			u.Metadata[k] = v
		}
		if err := q.Enqueue(cmd.Context(), u); err != nil {
			return fmt.Errorf("cannot queue %s: %w", path, err)
		}
		views = append(views, newItemView(u))
	}

	if formatter.IsJSON() {
		return formatter.JSON(views)
	}
	for _, v := range views {
		_ = formatter.Success("Queued %s in %s (%s)", v.File, queue, v.ID)
	}
	return nil
}

// itemView is the CLI representation of a queued upload.
type itemView struct {
	ID          string            `json:"id"`
	Queue       string            `json:"queue"`
	File        string            `json:"file"`
	ContentType string            `json:"content_type"`
	SizeBytes   int64             `json:"size_bytes"`
	Retries     int               `json:"retries"`
	LastError   string            `json:"last_error,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   string            `json:"created_at"`
}

func newItemView(u *outbox.Upload) itemView {
	return itemView{
		ID:          u.ID,
		Queue:       u.Kind,
		File:        u.FilePath,
		ContentType: u.ContentType,
		SizeBytes:   u.SizeBytes,
		Retries:     u.RetryCount,
		LastError:   u.LastError,
		Metadata:    u.Metadata,
		CreatedAt:   u.CreatedAt.UTC().Format(time.RFC3339),
	}
}
