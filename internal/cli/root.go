// Package cli implements the kioku command line.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperjump/kioku/internal/config"
	"github.com/hyperjump/kioku/pkg/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultConfigPath = "/usr/local/etc/kioku/config.yaml"

type options struct {
	configPath string
	debug      bool
}

// loadConfig loads config from path. When path is the default, config.yaml in the current directory
// wins if it exists, so running from a project dir picks up the project's config.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// setup loads the config and builds a logger honoring --debug.
func (o *options) setup() (*config.Config, string, *zap.Logger, error) {
	cfg, path, err := loadConfig(o.configPath)
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to load config: %w", err)
	}
	if o.debug {
		cfg.Debug = true
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, path, logger, nil
}

// NewRootCommand builds the kioku command tree.
func NewRootCommand(version string) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "kioku",
		Short: "kioku - vector memory for chat front-ends",
		Long: `kioku stores chunked conversation text as embeddings, partitioned by collection,
embedding source and model, and answers nearest-neighbor queries over one or many collections.

Example usage:
  kioku server                                   # Serve the HTTP API
  kioku insert --collection chat-1 --file c.jsonl
  kioku query --collection chat-1 "what did we decide"
  kioku status`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfigPath, "config file path")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newServerCommand(opts),
		newInsertCommand(opts),
		newListCommand(opts),
		newDeleteCommand(opts),
		newQueryCommand(opts),
		newPurgeCommand(opts),
		newPurgeAllCommand(opts),
		newStatusCommand(opts),
		newVersionCommand(version),
	)
	return root
}

// Execute runs the command tree and returns the process exit code.
func Execute(version string) int {
	if err := NewRootCommand(version).Execute(); err != nil {
		return 1
	}
	return 0
}

func newVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kioku version %s\n", version)
		},
	}
}
