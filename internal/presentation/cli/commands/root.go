// Package commands implements the CLI commands for scribesync.
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/scribesync/internal/application"
	"github.com/jbctechsolutions/scribesync/internal/infrastructure/config"
	"github.com/jbctechsolutions/scribesync/internal/presentation/cli/output"
)

// Version information - set at build time via ldflags.
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// GlobalFlags holds the global CLI flags.
type GlobalFlags struct {
	ConfigFile string
	Output     string
	Verbose    bool
	Offline    bool
}

// AppContext holds the application runtime context.
type AppContext struct {
	Config    *config.Config
	ConfigDir string
	Formatter *output.Formatter
	Flags     *GlobalFlags
}

var (
	globalFlags GlobalFlags
	appCtx      *AppContext
	appCtxMu    sync.RWMutex // Protects appCtx for thread-safe access
)

// NewRootCmd creates the root command for the scribesync CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "scribesync",
		Short: "scribesync - offline-first background upload sync",
		Long: `scribesync keeps local work queued on disk and delivers it to a remote
service whenever the network allows.

Each queue (recordings, documents, ...) has its own outbox and sync engine.
Items survive restarts, are retried with backoff, and are delivered only when
connectivity meets the queue's minimum quality.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip initialization for help, version, init, and completion commands
			switch cmd.Name() {
			case "help", "version", "completion", "init":
				return nil
			}
			return initializeApp(cmd)
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&globalFlags.ConfigFile, "config", "c", "", "config file path (default: ~/.scribesync/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&globalFlags.Output, "output", "o", "text", "output format: text, json")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.Offline, "offline", false, "treat the network as unavailable")

	rootCmd.AddCommand(NewVersionCmd())
	rootCmd.AddCommand(NewInitCmd())
	rootCmd.AddCommand(NewEnqueueCmd())
	rootCmd.AddCommand(NewQueueCmd())
	rootCmd.AddCommand(NewSyncCmd())
	rootCmd.AddCommand(NewRunCmd())
	rootCmd.AddCommand(NewStatusCmd())

	return rootCmd
}

// initializeApp loads configuration and prepares the formatter.
// The container is opened per command by withContainer.
func initializeApp(cmd *cobra.Command) error {
	formatter, err := newFormatter(cmd)
	if err != nil {
		return err
	}

	dir, path, err := configLocation()
	if err != nil {
		return err
	}

	loader, err := config.NewLoader(dir)
	if err != nil {
		return fmt.Errorf("failed to create config loader: %w", err)
	}
	cfg, err := loader.Load(path)
	if err != nil {
		return err
	}

	appCtxMu.Lock()
	appCtx = &AppContext{
		Config:    cfg,
		ConfigDir: dir,
		Formatter: formatter,
		Flags:     &globalFlags,
	}
	appCtxMu.Unlock()

	return nil
}

// newFormatter builds a formatter for cmd's output stream from the global flags.
func newFormatter(cmd *cobra.Command) (*output.Formatter, error) {
	format, err := output.ParseFormat(globalFlags.Output)
	if err != nil {
		return nil, err
	}
	w := cmd.OutOrStdout()
	return output.NewFormatter(
		output.WithWriter(w),
		output.WithFormat(format),
		output.WithColor(format != output.FormatJSON && output.ColorSupported(w)),
	), nil
}

// configLocation returns the configuration directory and file path.
// An explicit --config places the directory (and the token salt) next to the file.
func configLocation() (dir, path string, err error) {
	if globalFlags.ConfigFile != "" {
		path, err := config.ExpandPath(globalFlags.ConfigFile)
		if err != nil {
			return "", "", err
		}
		return filepath.Dir(path), path, nil
	}

	loader, err := config.NewLoader("")
	if err != nil {
		return "", "", fmt.Errorf("failed to create config loader: %w", err)
	}
	return loader.ConfigDir(), loader.DefaultConfigPath(), nil
}

// withContainer opens the application container for the duration of fn.
func withContainer(cmd *cobra.Command, fn func(*application.Container) error) error {
	app := GetAppContext()
	if app == nil {
		return fmt.Errorf("application not initialized")
	}

	container, err := application.NewContainer(app.Config, application.Options{
		ConfigDir: app.ConfigDir,
		Verbose:   app.Flags.Verbose,
		Offline:   app.Flags.Offline,
		LogOutput: cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer func() { _ = container.Close() }()

	return fn(container)
}

// GetAppContext returns the current application context.
// Returns nil if the app hasn't been initialized.
func GetAppContext() *AppContext {
	appCtxMu.RLock()
	defer appCtxMu.RUnlock()
	return appCtx
}

// GetFormatter returns the output formatter.
// Creates a default formatter if app context is not initialized.
func GetFormatter() *output.Formatter {
	appCtxMu.RLock()
	ctx := appCtx
	appCtxMu.RUnlock()

	if ctx != nil {
		return ctx.Formatter
	}
	return output.NewFormatter()
}

// Execute runs the root command, cancelling its context on SIGINT or SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCmd().ExecuteContext(ctx)
	interrupted := ctx.Err() != nil
	stop()

	if err != nil {
		_ = output.NewFormatter(output.WithWriter(os.Stderr)).Error("%s", err.Error())
		if interrupted {
			os.Exit(130) // Standard exit code for SIGINT
		}
		os.Exit(1)
	}
}
