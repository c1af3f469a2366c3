package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/scribesync/internal/infrastructure/config"
	"github.com/jbctechsolutions/scribesync/internal/infrastructure/crypto"
)

// InitResult is the JSON output of the init command.
type InitResult struct {
	ConfigPath  string   `json:"config_path"`
	BaseURL     string   `json:"base_url"`
	TokenStored bool     `json:"token_stored"`
	Spool       string   `json:"spool,omitempty"`
	Queues      []string `json:"queues"`
}

type initOptions struct {
	force    bool
	baseURL  string
	token    string
	spoolDir string
}

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	var opts initOptions

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Long: `Write a configuration file with the default queues.

The service token, if given, is encrypted with a key derived from this
machine and a salt stored next to the configuration file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "overwrite an existing configuration")
	cmd.Flags().StringVar(&opts.baseURL, "base-url", "", "remote service base URL")
	cmd.Flags().StringVar(&opts.token, "token", "", "service token, stored encrypted")
	cmd.Flags().StringVar(&opts.spoolDir, "spool-dir", "", "enable the drop folder at this directory")

	return cmd
}

func runInit(cmd *cobra.Command, opts initOptions) error {
	formatter, err := newFormatter(cmd)
	if err != nil {
		return err
	}

	dir, path, err := configLocation()
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil && !opts.force {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
	}

	cfg := config.NewDefaultConfig()
	if opts.baseURL != "" {
		cfg.Remote.BaseURL = opts.baseURL
	}
	if opts.spoolDir != "" {
		cfg.Spool.Enabled = true
		cfg.Spool.Directory = opts.spoolDir
	}
	if opts.token != "" {
		enc, err := crypto.NewEncryptor(dir)
		if err != nil {
			return fmt.Errorf("failed to create encryptor: %w", err)
		}
		cfg.Remote.TokenEncrypted, err = enc.Encrypt(opts.token)
		if err != nil {
			return fmt.Errorf("failed to encrypt token: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	loader, err := config.NewLoader(dir)
	if err != nil {
		return err
	}
	if err := loader.Save(cfg, path); err != nil {
		return err
	}

	result := InitResult{
		ConfigPath:  path,
		BaseURL:     cfg.Remote.BaseURL,
		TokenStored: cfg.Remote.TokenEncrypted != "",
		Queues:      cfg.QueueNames(),
	}
	if cfg.Spool.Enabled {
		result.Spool = cfg.Spool.Directory
	}

	if formatter.IsJSON() {
		return formatter.JSON(result)
	}

	_ = formatter.Success("Wrote %s", result.ConfigPath)
	_ = formatter.Item("Remote", result.BaseURL)
	if result.TokenStored {
		_ = formatter.Item("Token", "stored (encrypted)")
	}
	if result.Spool != "" {
		_ = formatter.Item("Spool", result.Spool)
	}
	for _, name := range result.Queues {
		q := cfg.Queues[name]
		_ = formatter.Item("Queue "+name, q.Endpoint)
	}
	return nil
}
